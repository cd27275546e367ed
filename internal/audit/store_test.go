package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, limit int) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewStore(rdb, limit, time.Hour), mr
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestStoreAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t, 3)

	for i, outcome := range []Outcome{OutcomeFailure, OutcomeSuccess, OutcomeFailure, OutcomeSuccess} {
		require.NoError(t, store.Append(ctx, &Event{
			ID:         string(rune('a' + i)),
			Username:   "alice",
			UserID:     1,
			Outcome:    outcome,
			OccurredAt: time.Unix(int64(1_700_000_000+i), 0).UTC(),
		}))
	}

	events, err := store.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "d", events[0].ID)
	assert.Equal(t, "b", events[2].ID)

	assert.Equal(t, time.Hour, mr.TTL(userKey(1)))

	events, err = store.Recent(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, OutcomeSuccess, events[0].Outcome)
}

func TestStoreSkipsAnonymousEvents(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t, 0)

	require.NoError(t, store.Append(ctx, &Event{ID: "x", Username: "ghost", Outcome: OutcomeFailure}))
	assert.Empty(t, mr.Keys())
	assert.Error(t, store.Append(ctx, nil))
}

func TestStoreRecentEmpty(t *testing.T) {
	store, _ := setupStore(t, 0)

	events, err := store.Recent(context.Background(), 99, 5)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestProcessLoginTask(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t, 0)

	body, err := json.Marshal(Event{ID: "evt-1", Username: "alice", UserID: 1, Outcome: OutcomeSuccess})
	require.NoError(t, err)

	require.NoError(t, processLoginTask(ctx, store, quietLogger(), asynq.NewTask(taskTypeLogin, body)))

	events, err := store.Recent(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
}

func TestProcessLoginTaskInvalidPayload(t *testing.T) {
	store, _ := setupStore(t, 0)

	err := processLoginTask(context.Background(), store, quietLogger(), asynq.NewTask(taskTypeLogin, []byte("not-json")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	body, _ := json.Marshal(Event{Username: "alice", UserID: 1})
	err = processLoginTask(context.Background(), store, quietLogger(), asynq.NewTask(taskTypeLogin, body))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
