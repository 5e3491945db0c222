package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	TaskTypeArchive = "archive"
	DayLayout       = "2006-01-02"
)

// Scheduler enqueues periodic maintenance onto the audit stream for the
// worker to pick up.
type Scheduler struct {
	cron   *cron.Cron
	queue  *redis.Client
	stream string
	spec   string
	log    zerolog.Logger
	now    func() time.Time
}

func NewScheduler(queue *redis.Client, stream, archiveSpec string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	return &Scheduler{
		cron:   c,
		queue:  queue,
		stream: stream,
		spec:   archiveSpec,
		log:    log,
		now:    time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.stream == "" || s.spec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.enqueueArchive); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) enqueueArchive() {
	day := s.now().UTC().AddDate(0, 0, -1).Format(DayLayout)
	if err := s.enqueueTask(map[string]any{
		"type": TaskTypeArchive,
		"day":  day,
	}); err != nil {
		s.log.Error().Err(err).Str("day", day).Msg("enqueue audit archive failed")
		return
	}
	s.log.Info().Str("day", day).Msg("audit archive enqueued")
}

func (s *Scheduler) enqueueTask(payload map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: payload,
	}).Err()
}
