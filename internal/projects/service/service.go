// Package service runs the design workflow: every client action is authorized
// against the project's status and gates, executed against the AI ports, and
// committed as one snapshot under the project's lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Alyfish/spacestest-v0-mvp/internal/api/http/middleware"
	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/catalog"
	"github.com/Alyfish/spacestest-v0-mvp/internal/observability"
	"github.com/Alyfish/spacestest-v0-mvp/internal/platform/logger"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/repository"
)

// ImageStore persists project images and resolves references, including
// remote product image URLs.
type ImageStore interface {
	Save(ctx context.Context, projectID, name string, data []byte) (string, error)
	Load(ctx context.Context, ref string) ([]byte, error)
	DeleteProject(ctx context.Context, projectID string) error
}

type Deps struct {
	Store   repository.ContextStore
	Images  ImageStore
	Caps    capabilities.Set
	Locker  Locker
	Catalog *catalog.Catalog
	Metrics *observability.Metrics
	Log     *logger.Logger
	Now     func() time.Time
}

// Service is safe for concurrent use; mutations of one project are serialized
// by the Locker.
type Service struct {
	store   repository.ContextStore
	images  ImageStore
	caps    capabilities.Set
	locker  Locker
	catalog *catalog.Catalog
	metrics *observability.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func New(d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("service: context store is required")
	}
	if d.Images == nil {
		return nil, errors.New("service: image store is required")
	}
	if d.Locker == nil {
		return nil, errors.New("service: locker is required")
	}
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		store:   d.Store,
		images:  d.Images,
		caps:    d.Caps,
		locker:  d.Locker,
		catalog: d.Catalog,
		metrics: d.Metrics,
		log:     d.Log.With("service", "DesignWorkflow"),
		now:     d.Now,
	}, nil
}

// Catalog exposes the palettes and styles the service validates against.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// logger returns a request-scoped logger.
func (s *Service) logger(ctx context.Context) *logger.Logger {
	if rid := middleware.GetRequestID(ctx); rid != "" {
		return s.log.With("request_id", rid)
	}
	return s.log
}

func (s *Service) Create(ctx context.Context) (*domain.Project, error) {
	p := domain.NewProject(s.now())
	if err := s.store.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.logger(ctx).Info("project created", "project_id", p.ID)
	return p, nil
}

// Get reads the last committed snapshot without taking the lock.
func (s *Service) Get(ctx context.Context, id string) (*domain.Project, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]repository.Summary, error) {
	return s.store.List(ctx)
}

// Gates evaluates the readiness predicates of the committed snapshot.
func (s *Service) Gates(ctx context.Context, id string) (domain.Gates, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Gates{}, err
	}
	return p.Gates(), nil
}

// Delete removes the project and its stored images.
func (s *Service) Delete(ctx context.Context, id string) error {
	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return s.deleteLocked(ctx, id)
}

// DeleteIfStale deletes the project only if, under the lock, its last update
// is still before cutoff. It reports whether the project was deleted.
func (s *Service) DeleteIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !p.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	if err := s.deleteLocked(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) deleteLocked(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log := s.logger(ctx).With("project_id", id)
	if err := s.images.DeleteProject(ctx, id); err != nil {
		log.Warn("failed to delete project images (ignored)", "error", err)
	}
	log.Info("project deleted")
	return nil
}

// mutation edits a private clone of the project and reports whether the
// action's target status should be applied.
type mutation func(ctx context.Context, p *domain.Project) (advance bool, err error)

// mutate runs one action all-or-nothing: lock, load, authorize, edit a clone,
// advance, commit. Any error leaves the committed snapshot untouched.
func (s *Service) mutate(ctx context.Context, id string, action domain.Action, fn mutation) (*domain.Project, error) {
	started := time.Now()
	log := s.logger(ctx).With("project_id", id, "action", string(action))

	p, err := s.run(ctx, id, action, fn, log)
	if err != nil {
		reason := failureReason(err)
		s.metrics.IncActionFailure(string(action), reason)
		s.metrics.ObserveAction(string(action), "error", time.Since(started))
		if reason == "internal" || reason == "capability_"+string(capabilities.KindUpstream) {
			log.Error("action failed", "reason", reason, "error", err)
		} else {
			log.Warn("action rejected", "reason", reason, "error", err)
		}
		return nil, err
	}
	s.metrics.ObserveAction(string(action), "ok", time.Since(started))
	return p, nil
}

func (s *Service) run(ctx context.Context, id string, action domain.Action, fn mutation, log *logger.Logger) (*domain.Project, error) {
	waitStart := time.Now()
	release, err := s.locker.Acquire(ctx, id)
	s.metrics.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.Authorize(current, action); err != nil {
		return nil, err
	}

	next := current.Clone()
	advance, err := fn(ctx, next)
	if err != nil {
		return nil, err
	}
	if advance {
		domain.Advance(next, action)
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.store.Put(ctx, next); err != nil {
		return nil, fmt.Errorf("commit %s: %w", action, err)
	}
	if next.Status != current.Status {
		s.metrics.ObserveTransition(string(current.Status), string(next.Status))
		log.Info("project status changed", "from", current.Status, "to", next.Status)
	}
	return next, nil
}

// failureReason buckets an error for metrics and log levels.
func failureReason(err error) string {
	var ce *capabilities.CapabilityError
	switch {
	case errors.Is(err, domain.ErrProjectNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPrecondition):
		return "precondition"
	case errors.Is(err, domain.ErrProjectBusy):
		return "busy"
	case errors.Is(err, domain.ErrRecommendationCount):
		return "recommendation_count"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.As(err, &ce):
		return "capability_" + string(ce.Kind)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
