package session

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/factory"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
)

func TestSessionRepository(t *testing.T) {
	testScope := tally.NewTestScope("testing", make(map[string]string, 0))
	t.Run("should Set and Get successfully", func(t *testing.T) {
		info := entity.SessionInfo{UUID: factory.UUID(), Server: "gopls", State: entity.SessionStateHealthy}

		repository := New(testScope)

		err := repository.Set(context.Background(), info)
		require.NoError(t, err)
		val, err := repository.Get(context.Background(), info.UUID)
		require.NoError(t, err)
		assert.Equal(t, info, val)
	})

	t.Run("should fail to get something that was not Set", func(t *testing.T) {
		repository := New(testScope)

		id := uuid.Must(uuid.NewV4())
		_, err := repository.Get(context.Background(), id)
		require.Error(t, err)
		var nf *errors.UUIDNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, id, nf.UUID)

		found, ok := errors.NotFoundUUID(err)
		assert.True(t, ok)
		assert.Equal(t, id, found)
	})

	t.Run("should reject records without uuid", func(t *testing.T) {
		repository := New(testScope)
		assert.Error(t, repository.Set(context.Background(), entity.SessionInfo{}))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repository := New(tally.NoopScope)

	info := entity.SessionInfo{UUID: factory.UUID()}
	require.NoError(t, repository.Set(ctx, info))
	require.NoError(t, repository.Delete(ctx, info.UUID))

	_, err := repository.Get(ctx, info.UUID)
	assert.Error(t, err)
}

func TestListAndCount(t *testing.T) {
	ctx := context.Background()
	testScope := tally.NewTestScope("", nil)
	repository := New(testScope)

	now := time.Now()
	crashed := entity.SessionInfo{UUID: factory.UUID(), Server: "gopls", State: entity.SessionStateCrashed, StartedAt: now.Add(-time.Minute)}
	healthy := entity.SessionInfo{UUID: factory.UUID(), Server: "gopls", State: entity.SessionStateHealthy, StartedAt: now, Restarts: 1}
	starting := entity.SessionInfo{UUID: factory.UUID(), Server: "pyright", State: entity.SessionStateStarting, StartedAt: now.Add(-time.Second)}
	for _, info := range []entity.SessionInfo{crashed, healthy, starting} {
		require.NoError(t, repository.Set(ctx, info))
	}

	list, err := repository.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, healthy.UUID, list[0].UUID)
	assert.Equal(t, crashed.UUID, list[2].UUID)

	count, err := repository.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	gauges := testScope.Snapshot().Gauges()
	require.Contains(t, gauges, "active_sessions+")
	assert.Equal(t, float64(2), gauges["active_sessions+"].Value())
}
