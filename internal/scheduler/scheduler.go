package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mpetrov/jobpool/internal/model"
	"github.com/mpetrov/jobpool/internal/orchestrator"
)

// runner is the slice of the orchestrator the scheduler drives.
type runner interface {
	CollectAll(ctx context.Context) orchestrator.Stats
	CollectFromSource(ctx context.Context, src model.Source) orchestrator.Stats
}

// passStore is what the scheduler needs from the store between passes.
type passStore interface {
	QuotaExhausted(now time.Time) (bool, error)
	RecordRefresh() error
}

// Rotation cycles scheduled passes through a keyword list instead of
// re-collecting every source. Each pass queries the API provider for
// one keyword and advances the cursor, so a day of hourly passes walks
// the whole list without burning the daily quota on duplicate pulls.
type Rotation struct {
	Enabled  bool
	Keywords []string
}

// Scheduler owns the main loop: an immediate pass at startup, then one
// pass per interval, plus manual passes via Kick. The rotation cursor
// lives here, not in the store; it resets with the process.
type Scheduler struct {
	runner   runner
	store    passStore
	interval time.Duration
	rotation Rotation
	cursor   int
	kick     chan struct{}
	logger   *slog.Logger
}

// New creates a scheduler running one collection pass per interval.
func New(r runner, store passStore, interval time.Duration, rotation Rotation, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   r,
		store:    store,
		interval: interval,
		rotation: rotation,
		kick:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Kick requests an immediate pass. It never blocks; a pass already
// pending coalesces with this one.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run starts the loop and returns nil when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"interval", s.interval.String(),
		"rotation", s.rotation.Enabled,
	)

	s.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-s.kick:
			s.pass(ctx)
		case <-time.After(s.interval):
			s.pass(ctx)
		}
	}
}

// pass runs one collection cycle. A pass that panics is logged and
// absorbed so the loop keeps ticking.
func (s *Scheduler) pass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("collection pass panicked", "panic", r)
		}
	}()

	exhausted, err := s.store.QuotaExhausted(time.Now())
	if err != nil {
		s.logger.Error("checking quota state failed", "error", err)
	} else if exhausted {
		s.logger.Warn("skipping pass, api quota exhausted until tomorrow")
		return
	}

	if s.rotation.Enabled && len(s.rotation.Keywords) > 0 {
		s.rotationPass(ctx)
		return
	}
	s.runner.CollectAll(ctx)
}

// rotationPass collects the keyword under the cursor as an ephemeral
// API source, then advances.
func (s *Scheduler) rotationPass(ctx context.Context) {
	keyword := s.rotation.Keywords[s.cursor%len(s.rotation.Keywords)]
	s.cursor++

	s.logger.Info("rotation pass", "keyword", keyword)
	s.runner.CollectFromSource(ctx, model.Source{
		Type:     model.SourceAPI,
		Locator:  keyword,
		Name:     "rotation: " + keyword,
		Provider: model.ProviderAdzuna,
	})

	if err := s.store.RecordRefresh(); err != nil {
		s.logger.Error("recording refresh failed", "error", err)
	}
}
