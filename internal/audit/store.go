package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"opsdesk/internal/models"
)

type Store interface {
	Insert(ctx context.Context, event models.AuditEvent) error
}

// StoreRecorder writes events straight to the relational store.
type StoreRecorder struct {
	store Store
	log   zerolog.Logger
}

func NewStoreRecorder(store Store, log zerolog.Logger) *StoreRecorder {
	return &StoreRecorder{store: store, log: log}
}

func (r *StoreRecorder) Record(ctx context.Context, event Event) {
	ctx, cancel := detach(ctx, 3*time.Second)
	defer cancel()

	if err := r.store.Insert(ctx, event); err != nil {
		r.log.Warn().Err(err).Str("event_type", event.Type).Msg("store audit event failed")
	}
}
