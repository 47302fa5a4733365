package service

import (
	"context"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// pathStrategy describes one recommendation generation path. Paths differ only
// in what they read and where they write; generation and normalization are
// shared.
type pathStrategy struct {
	path   domain.Path
	action domain.Action
	prompt func(c *domain.Context) string
	// images returns image references for the vision port, primary first. No
	// references means the path reasons over text only.
	images func(c *domain.Context) []string
	store  func(c *domain.Context, recs []string)
}

var (
	markerPath = pathStrategy{
		path:   domain.PathMarker,
		action: domain.ActionGenerateMarkerRecs,
		prompt: markerPrompt,
		images: func(c *domain.Context) []string {
			if c.LabelledBaseImage != "" {
				return []string{c.LabelledBaseImage}
			}
			return []string{c.BaseImage}
		},
		store: func(c *domain.Context, recs []string) { c.MarkerRecommendations = recs },
	}

	inspirationPath = pathStrategy{
		path:   domain.PathInspiration,
		action: domain.ActionGenerateInspirationRecs,
		prompt: inspirationPrompt,
		images: func(c *domain.Context) []string {
			return append([]string{c.BaseImage}, c.InspirationImages...)
		},
		store: func(c *domain.Context, recs []string) { c.InspirationRecommendations = recs },
	}

	productPath = pathStrategy{
		path:   domain.PathProduct,
		action: domain.ActionGenerateProductRecs,
		prompt: productPrompt,
		images: func(*domain.Context) []string { return nil },
		store:  func(c *domain.Context, recs []string) { c.ProductRecommendations = recs },
	}
)

// GenerateMarkerRecommendations runs the marker path: fixes anchored on the
// user's markers.
func (s *Service) GenerateMarkerRecommendations(ctx context.Context, id string) (*domain.Project, error) {
	return s.generate(ctx, id, markerPath)
}

// GenerateInspirationRecommendations runs the inspiration path. Regenerating
// once past its target status leaves status unchanged.
func (s *Service) GenerateInspirationRecommendations(ctx context.Context, id string) (*domain.Project, error) {
	return s.generate(ctx, id, inspirationPath)
}

// GenerateProductRecommendations runs the product synthesis path.
func (s *Service) GenerateProductRecommendations(ctx context.Context, id string) (*domain.Project, error) {
	return s.generate(ctx, id, productPath)
}

func (s *Service) generate(ctx context.Context, id string, st pathStrategy) (*domain.Project, error) {
	p, err := s.mutate(ctx, id, st.action, func(ctx context.Context, p *domain.Project) (bool, error) {
		recs, err := s.recommend(ctx, p, st)
		if err != nil {
			return false, err
		}
		st.store(&p.Context, recs)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	// Regeneration leaves existing selections alone, even vanished ones.
	if stale := domain.StaleSelections(&p.Context); len(stale) > 0 {
		s.logger(ctx).Warn("selected recommendations no longer generated",
			"project_id", id, "path", string(st.path), "stale", stale)
	}
	return p, nil
}

type recommendationReply struct {
	Recommendations []string `json:"recommendations"`
	Reasoning       string   `json:"reasoning"`
}

// recommend asks the path's port for a list and normalizes it to exactly
// RecommendationCount items. A short list gets one top-up request; a long one
// keeps its first items.
func (s *Service) recommend(ctx context.Context, p *domain.Project, st pathStrategy) ([]string, error) {
	imgs, err := s.loadImages(ctx, st.images(&p.Context))
	if err != nil {
		return nil, err
	}
	schema := capabilities.RecommendationSchema(string(st.path) + "_recommendations")
	ask := func(prompt string) ([]string, error) {
		return s.askList(ctx, prompt, schema, imgs)
	}

	prompt := st.prompt(&p.Context)
	first, err := ask(prompt)
	if err != nil {
		return nil, err
	}
	recs := domain.NormalizeRecommendations(first)

	if short := domain.RecommendationCount - len(recs); short > 0 {
		s.logger(ctx).Info("recommendation list short, retrying",
			"project_id", p.ID, "path", string(st.path), "got", len(recs))
		more, err := ask(topUpPrompt(prompt, recs, short))
		if err != nil {
			return nil, err
		}
		recs = domain.MergeRecommendations(recs, more)
		if len(recs) < domain.RecommendationCount {
			s.metrics.IncRecommendationRetry(string(st.path), "short")
			return nil, &domain.RecommendationCountError{
				Path: string(st.path),
				Got:  len(recs),
				Want: domain.RecommendationCount,
			}
		}
		s.metrics.IncRecommendationRetry(string(st.path), "recovered")
	}
	return recs[:domain.RecommendationCount], nil
}

// askList sends a prompt to the text port, or to the vision port when images
// are attached.
func (s *Service) askList(ctx context.Context, prompt string, schema capabilities.Schema, imgs [][]byte) ([]string, error) {
	var (
		res  capabilities.StructuredResult
		err  error
		port = capabilities.PortText
	)
	if len(imgs) == 0 {
		if s.caps.Text == nil {
			return nil, capabilities.Unconfigured(port)
		}
		res, err = s.caps.Text.Complete(ctx, prompt, schema)
	} else {
		port = capabilities.PortVision
		if s.caps.Vision == nil {
			return nil, capabilities.Unconfigured(port)
		}
		res, err = s.caps.Vision.Analyze(ctx, imgs[0], prompt, schema, imgs[1:]...)
	}
	if err != nil {
		return nil, err
	}
	var reply recommendationReply
	if err := res.Decode(&reply); err != nil {
		return nil, capabilities.Wrap(port, err)
	}
	return reply.Recommendations, nil
}
