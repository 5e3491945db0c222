package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/models"
)

var client = models.ClientInfo{IPAddress: "10.0.0.1", Location: "DE", UserAgent: "curl"}

func TestNewEvent(t *testing.T) {
	event := NewEvent(EventLoginSuccess, "u1", client, map[string]any{"anomaly": false})
	require.NotNil(t, event.ActorID)
	assert.Equal(t, "u1", *event.ActorID)
	assert.Equal(t, "10.0.0.1", event.ClientIP)
	assert.Equal(t, "DE", event.Location)
	assert.False(t, event.CreatedAt.IsZero())

	anonymous := NewEvent(EventShareLinkUsed, "", client, nil)
	assert.Nil(t, anonymous.ActorID)
}

func TestStreamRecorder_Record(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	recorder := NewStreamRecorder(rdb, "audit:events", zerolog.Nop())
	recorder.Record(context.Background(), NewEvent(EventLogout, "u1", client, map[string]any{"found": true}))

	entries, err := rdb.XRange(context.Background(), "audit:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TaskTypeAudit, entries[0].Values["type"])

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &decoded))
	assert.Equal(t, EventLogout, decoded.Type)
	assert.Equal(t, true, decoded.Details["found"])
}

func TestStreamRecorder_SwallowsFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	var buf bytes.Buffer
	recorder := NewStreamRecorder(rdb, "audit:events", zerolog.New(&buf))

	assert.NotPanics(t, func() {
		recorder.Record(context.Background(), NewEvent(EventLogout, "", client, nil))
	})
	assert.Contains(t, buf.String(), "publish audit event failed")
}

type failingStore struct {
	calls int
}

func (s *failingStore) Insert(context.Context, models.AuditEvent) error {
	s.calls++
	return errors.New("db down")
}

func TestStoreRecorder_SwallowsFailures(t *testing.T) {
	store := &failingStore{}
	var buf bytes.Buffer
	recorder := NewStoreRecorder(store, zerolog.New(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.Record(ctx, NewEvent(EventAdminSetup, "u1", client, nil))

	assert.Equal(t, 1, store.calls)
	assert.Contains(t, buf.String(), "store audit event failed")
}
