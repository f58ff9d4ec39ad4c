package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResult_StatusLaw(t *testing.T) {
	testCases := []struct {
		name      string
		completed []string
		failed    []string
		expect    Status
	}{
		{name: "all completed", completed: []string{"a", "b"}, expect: StatusCompleted},
		{name: "nothing ran", expect: StatusCompleted},
		{name: "all failed", failed: []string{"a"}, expect: StatusFailed},
		{name: "mixed", completed: []string{"a"}, failed: []string{"b"}, expect: StatusPartial},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := NewResult("i1", "s1", time.Now())
			for _, step := range tc.completed {
				result.RecordCompleted(step, nil)
			}
			for _, step := range tc.failed {
				result.RecordFailed(step, errors.New("boom"))
			}
			result.Finalize(time.Now())
			assert.Equal(t, tc.expect, result.Status)
		})
	}
}

func TestResult_Fraction(t *testing.T) {
	result := NewResult("i1", "s1", time.Now())
	assert.Equal(t, 0.0, result.Fraction())
	result.RecordCompleted("a", nil)
	assert.Equal(t, 0.5, result.Fraction())
	result.RecordFailed("b", errors.New("boom"))
	result.RecordSkipped("c")
	// 1 completed out of 3 settled + 1 in flight
	assert.InDelta(t, 0.25, result.Fraction(), 1e-9)
}

func TestResult_ConcurrentRecording(t *testing.T) {
	result := NewResult("i1", "s1", time.Now())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				result.RecordCompleted("even", i)
			} else {
				result.RecordFailed("odd", errors.New("boom"))
			}
		}(i)
	}
	wg.Wait()
	completed, failed, _ := result.Counts()
	assert.Equal(t, 25, completed)
	assert.Equal(t, 25, failed)
	assert.Len(t, result.Errors, 25)
}

func TestFuture_SettleOnce(t *testing.T) {
	future := NewFuture()
	assert.False(t, future.Settled())

	first := NewResult("i1", "s1", time.Now())
	future.Settle(first, nil)
	future.Settle(NewResult("i2", "s1", time.Now()), errors.New("late"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := future.Wait(ctx)
	assert.NoError(t, err)
	assert.Same(t, first, result)
}

func TestCancelToken(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.IsCancelled())
	token.Cancel()
	token.Cancel()
	assert.True(t, token.IsCancelled())
	select {
	case <-token.Done():
	default:
		t.Fatal("done channel not closed")
	}
}
