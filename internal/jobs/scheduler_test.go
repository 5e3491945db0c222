package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/testutil"
)

func TestScheduler_EnqueuesPreviousDay(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	s := NewScheduler(rdb, "audit:events", "0 15 0 * * *", zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 10, 18, 0, 15, 0, 0, time.UTC) }

	s.enqueueArchive()

	msgs, err := rdb.XRange(context.Background(), "audit:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, TaskTypeArchive, msgs[0].Values["type"])
	assert.Equal(t, "2026-10-17", msgs[0].Values["day"])
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	s := NewScheduler(rdb, "audit:events", "not a cron spec", zerolog.Nop())

	assert.Error(t, s.Start())
}

func TestScheduler_DisabledWithoutStream(t *testing.T) {
	s := NewScheduler(nil, "", "0 15 0 * * *", zerolog.Nop())

	require.NoError(t, s.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestScheduler_StartAndStop(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	s := NewScheduler(rdb, "audit:events", "0 15 0 * * *", zerolog.Nop())

	require.NoError(t, s.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
