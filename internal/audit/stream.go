package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TaskTypeAudit = "audit"

// StreamRecorder appends events to a Redis stream; the worker persists them.
type StreamRecorder struct {
	client *redis.Client
	stream string
	log    zerolog.Logger
}

func NewStreamRecorder(client *redis.Client, stream string, log zerolog.Logger) *StreamRecorder {
	return &StreamRecorder{client: client, stream: stream, log: log}
}

func (r *StreamRecorder) Record(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Warn().Err(err).Str("event_type", event.Type).Msg("encode audit event failed")
		return
	}

	ctx, cancel := detach(ctx, 2*time.Second)
	defer cancel()

	if err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"type":    TaskTypeAudit,
			"payload": string(payload),
		},
	}).Err(); err != nil {
		r.log.Warn().Err(err).Str("event_type", event.Type).Msg("publish audit event failed")
	}
}
