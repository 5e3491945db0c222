package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"opsdesk/internal/audit"
	"opsdesk/internal/jobs"
	"opsdesk/internal/models"
)

type AuditStore interface {
	Insert(ctx context.Context, event models.AuditEvent) error
	ListBetween(ctx context.Context, from, to time.Time) ([]models.AuditEvent, error)
}

type ObjectWriter interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

type Options struct {
	Stream        string
	ArchiveBucket string
	StreamMaxAge  time.Duration
}

// Processor persists audit events from the stream and runs the daily
// archive export.
type Processor struct {
	events  AuditStore
	objects ObjectWriter
	queue   *redis.Client
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

type TaskPayload struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Day     string `json:"day"`
}

func NewProcessor(events AuditStore, objects ObjectWriter, queue *redis.Client, opts Options, logger zerolog.Logger) *Processor {
	return &Processor{
		events:  events,
		objects: objects,
		queue:   queue,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case audit.TaskTypeAudit:
		return p.handleAudit(ctx, payload)
	case jobs.TaskTypeArchive:
		return p.handleArchive(ctx, payload)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *Processor) handleAudit(ctx context.Context, payload TaskPayload) error {
	var event models.AuditEvent
	if err := json.Unmarshal([]byte(payload.Payload), &event); err != nil {
		// A malformed event will never decode; ack it instead of retrying forever.
		p.logger.Error().Err(err).Msg("drop malformed audit event")
		return nil
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = p.now().UTC()
	}
	return p.events.Insert(ctx, event)
}

func (p *Processor) handleArchive(ctx context.Context, payload TaskPayload) error {
	day, err := time.ParseInLocation(jobs.DayLayout, payload.Day, time.UTC)
	if err != nil {
		p.logger.Error().Err(err).Str("day", payload.Day).Msg("drop archive task with bad day")
		return nil
	}

	events, err := p.events.ListBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("encode audit event %d: %w", event.ID, err)
		}
	}

	if err := p.objects.EnsureBucket(ctx, p.opts.ArchiveBucket); err != nil {
		return err
	}
	key := ArchiveKey(day)
	if err := p.objects.PutObject(ctx, p.opts.ArchiveBucket, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return err
	}

	p.logger.Info().
		Str("key", key).
		Int("events", len(events)).
		Msg("audit archive written")

	return p.trimStream(ctx)
}

// trimStream drops stream entries older than StreamMaxAge. Stream IDs start
// with a millisecond timestamp, so MINID trims by age.
func (p *Processor) trimStream(ctx context.Context) error {
	if p.queue == nil || p.opts.StreamMaxAge <= 0 {
		return nil
	}
	cutoff := p.now().Add(-p.opts.StreamMaxAge).UnixMilli()
	trimmed, err := p.queue.XTrimMinID(ctx, p.opts.Stream, strconv.FormatInt(cutoff, 10)+"-0").Result()
	if err != nil {
		return fmt.Errorf("trim stream: %w", err)
	}
	if trimmed > 0 {
		p.logger.Info().Int64("trimmed", trimmed).Str("stream", p.opts.Stream).Msg("audit stream trimmed")
	}
	return nil
}

func ArchiveKey(day time.Time) string {
	return "audit/" + day.Format("2006/01/02") + ".jsonl"
}
