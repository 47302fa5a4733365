// Package retention purges projects that have not been touched for longer
// than the configured retention period.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Alyfish/spacestest-v0-mvp/internal/platform/logger"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/repository"
)

// DefaultSchedule runs the purge nightly at 03:00.
const DefaultSchedule = "0 0 3 * * *"

// Projects is the slice of the workflow service the purge needs. Deleting
// through the service takes the project lock, re-checks the cutoff against the
// committed snapshot and removes stored images.
type Projects interface {
	List(ctx context.Context) ([]repository.Summary, error)
	DeleteIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

type Scheduler struct {
	projects Projects
	maxAge   time.Duration
	spec     string
	log      *logger.Logger
	now      func() time.Time

	cron *cron.Cron
}

func NewScheduler(projects Projects, maxAge time.Duration, spec string, log *logger.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		projects: projects,
		maxAge:   maxAge,
		spec:     spec,
		log:      log.With("component", "retention"),
		now:      time.Now,
	}
}

// Start registers the purge job and starts the cron runner.
func (s *Scheduler) Start() error {
	if s.maxAge <= 0 {
		return fmt.Errorf("retention period must be positive, got %s", s.maxAge)
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("schedule retention job %q: %w", s.spec, err)
	}
	s.cron = c
	c.Start()
	s.log.Info("retention scheduler started", "schedule", s.spec, "max_age", s.maxAge.String())
	return nil
}

// Stop halts the scheduler and waits for a running purge to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	n, err := s.Purge(ctx)
	if err != nil {
		s.log.Error("retention purge failed", "error", err, "deleted", n)
		return
	}
	s.log.Info("retention purge completed", "deleted", n)
}

// Purge deletes every project whose last update is older than the retention
// period and returns how many were removed. Projects with a mutation in flight
// are left for the next run.
func (s *Scheduler) Purge(ctx context.Context) (int, error) {
	items, err := s.projects.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list projects: %w", err)
	}
	cutoff := s.now().Add(-s.maxAge)

	deleted := 0
	var errs []error
	for _, it := range items {
		if !it.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		ok, err := s.projects.DeleteIfStale(ctx, it.ID, cutoff)
		switch {
		case err == nil && ok:
			deleted++
			s.log.Debug("expired project deleted", "project_id", it.ID, "updated_at", it.UpdatedAt)
		case err == nil:
			s.log.Debug("project updated since listing, kept", "project_id", it.ID)
		case errors.Is(err, domain.ErrProjectNotFound):
		case errors.Is(err, domain.ErrProjectBusy):
			s.log.Warn("expired project busy, skipping", "project_id", it.ID)
		default:
			errs = append(errs, fmt.Errorf("delete %s: %w", it.ID, err))
		}
	}
	return deleted, errors.Join(errs...)
}
