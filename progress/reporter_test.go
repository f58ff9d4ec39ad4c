package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_PublishValidation(t *testing.T) {
	reporter := New(DefaultConfig())
	defer reporter.Shutdown()

	testCases := []struct {
		name   string
		update Update
	}{
		{name: "missing session", update: Update{Step: "build", Status: StatusStarting}},
		{name: "missing step", update: Update{SessionID: "s1", Status: StatusStarting}},
		{name: "missing status", update: Update{SessionID: "s1", Step: "build"}},
		{name: "unknown status", update: Update{SessionID: "s1", Step: "build", Status: "paused"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, reporter.Publish(tc.update))
		})
	}
}

func TestReporter_Defaults(t *testing.T) {
	reporter := New(DefaultConfig())
	defer reporter.Shutdown()
	sub := reporter.Subscribe(Filter{})
	defer sub.Close()

	require.NoError(t, reporter.Publish(Update{SessionID: "s1", Step: "build", Status: StatusStarting, Progress: -2}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	update, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, update.Progress)
	assert.False(t, update.Timestamp.IsZero())
}

func TestReporter_FilteredFanOut(t *testing.T) {
	reporter := New(DefaultConfig())
	defer reporter.Shutdown()

	all := reporter.Subscribe(Filter{})
	bySession := reporter.Subscribe(Filter{SessionID: "s1"})
	byStep := reporter.Subscribe(Filter{Step: "scan"})
	byStatus := reporter.Subscribe(Filter{Status: StatusFailed})
	defer all.Close()
	defer bySession.Close()
	defer byStep.Close()
	defer byStatus.Close()

	require.NoError(t, reporter.Publish(Update{SessionID: "s1", Step: "build", Status: StatusStarting}))
	require.NoError(t, reporter.Publish(Update{SessionID: "s2", Step: "scan", Status: StatusFailed}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := all.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "build", first.Step)
	second, err := all.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scan", second.Step)

	only, err := bySession.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", only.SessionID)

	scan, err := byStep.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scan", scan.Step)

	failed, err := byStatus.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
}

func TestReporter_ListenerIsolation(t *testing.T) {
	reporter := New(DefaultConfig())
	defer reporter.Shutdown()

	var delivered int32
	var wg sync.WaitGroup
	wg.Add(1)
	reporter.OnUpdate(func(Update) {
		panic("listener exploded")
	})
	unsubscribe := reporter.OnUpdate(func(Update) {
		atomic.AddInt32(&delivered, 1)
		wg.Done()
	})
	defer unsubscribe()

	require.NoError(t, reporter.Publish(Update{SessionID: "s1", Step: "build", Status: StatusCompleted}))
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered))
}

func TestReporter_HistoryBoundedAndEvicted(t *testing.T) {
	config := DefaultConfig()
	config.HistoryLimit = 3
	reporter := New(config)
	defer reporter.Shutdown()

	for i := 0; i < 5; i++ {
		require.NoError(t, reporter.Publish(Update{SessionID: "s1", Step: "build", Status: StatusInProgress}))
	}
	history := reporter.History("s1")
	assert.Len(t, history, 3)

	// Pretend the session went idle beyond the TTL, then sweep.
	old := clock.NowFunc
	clock.NowFunc = func() time.Time { return old().Add(2 * time.Hour) }
	defer func() { clock.NowFunc = old }()
	reporter.evictIdle()
	assert.Empty(t, reporter.History("s1"))
}
