package fs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/model/execution"
	"github.com/stepflow/stepflow/service/dao"
)

func TestService_CRUD(t *testing.T) {
	service := New("mem://localhost/stepflow/archive")
	ctx := context.Background()

	result := execution.NewResult("inst-1", "sess-1", time.Now().UTC())
	result.RecordCompleted("build", "ok")
	result.Finalize(time.Now().UTC())

	require.NoError(t, service.Save(ctx, result))

	loaded, err := service.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "inst-1", loaded.InstanceID)
	assert.Equal(t, execution.StatusCompleted, loaded.Status)
	assert.Equal(t, []string{"build"}, loaded.CompletedSteps)

	results, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, service.Delete(ctx, "inst-1"))
	_, err = service.Load(ctx, "inst-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestService_Validation(t *testing.T) {
	service := New("mem://localhost/stepflow/archive-validation")
	ctx := context.Background()

	assert.ErrorIs(t, service.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, service.Save(ctx, &execution.Result{}), dao.ErrInvalidID)

	_, err := service.Load(ctx, "")
	assert.ErrorIs(t, err, dao.ErrInvalidID)

	assert.ErrorIs(t, service.Delete(ctx, "missing"), dao.ErrNotFound)
}
