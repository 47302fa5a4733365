package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/imaging"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// MaxInspirationImages bounds the inspiration images kept per project.
const MaxInspirationImages = 10

type emptinessReply struct {
	IsEmpty    bool    `json:"is_empty"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// UploadBaseImage stores the room photo. When isEmptyRoom is nil the room is
// classified by the vision port.
func (s *Service) UploadBaseImage(ctx context.Context, id string, data []byte, isEmptyRoom *bool) (*domain.Project, error) {
	ext, err := imaging.Sniff(data)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, domain.ActionUploadBaseImage, func(ctx context.Context, p *domain.Project) (bool, error) {
		empty := false
		if isEmptyRoom != nil {
			empty = *isEmptyRoom
		} else {
			reply, err := s.classifyRoom(ctx, data)
			if err != nil {
				return false, err
			}
			empty = reply.IsEmpty
			s.logger(ctx).Info("room emptiness classified",
				"project_id", id, "is_empty", reply.IsEmpty, "confidence", reply.Confidence)
		}

		ref, err := s.images.Save(ctx, id, imageName("base", ext), data)
		if err != nil {
			return false, fmt.Errorf("save base image: %w", err)
		}
		p.Context.BaseImage = ref
		p.Context.IsBaseImageEmptyRoom = empty
		p.Context.LabelledBaseImage = ""
		return true, nil
	})
}

func (s *Service) classifyRoom(ctx context.Context, image []byte) (emptinessReply, error) {
	var reply emptinessReply
	if s.caps.Vision == nil {
		return reply, capabilities.Unconfigured(capabilities.PortVision)
	}
	res, err := s.caps.Vision.Analyze(ctx, image, roomEmptinessPrompt, capabilities.RoomEmptinessSchema)
	if err != nil {
		return reply, err
	}
	if err := res.Decode(&reply); err != nil {
		return reply, capabilities.Wrap(capabilities.PortVision, err)
	}
	return reply, nil
}

// SelectSpaceType records the room type. An empty room has nothing to mark, so
// its marker list is settled as empty.
func (s *Service) SelectSpaceType(ctx context.Context, id, spaceType string) (*domain.Project, error) {
	spaceType = strings.TrimSpace(spaceType)
	if spaceType == "" {
		return nil, domain.InvalidInput("space_type is required")
	}
	return s.mutate(ctx, id, domain.ActionSelectSpaceType, func(ctx context.Context, p *domain.Project) (bool, error) {
		p.Context.SpaceType = spaceType
		if p.Context.IsBaseImageEmptyRoom {
			p.Context.ImprovementMarkers = []domain.Marker{}
			p.Context.LabelledBaseImage = ""
		}
		return true, nil
	})
}

// SaveImprovementMarkers replaces the marker set and renders the labelled image
// the marker path reasons over. Previous marker recommendations are dropped.
func (s *Service) SaveImprovementMarkers(ctx context.Context, id string, in []domain.MarkerInput) (*domain.Project, error) {
	markers, err := domain.NormalizeMarkers(in)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, domain.ActionSaveImprovementMarkers, func(ctx context.Context, p *domain.Project) (bool, error) {
		labelled := ""
		if len(markers) > 0 {
			base, err := s.images.Load(ctx, p.Context.BaseImage)
			if err != nil {
				return false, fmt.Errorf("load base image: %w", err)
			}
			png, err := imaging.RenderLabelled(base, markers)
			if err != nil {
				return false, err
			}
			if labelled, err = s.images.Save(ctx, id, imageName("labelled", ".png"), png); err != nil {
				return false, fmt.Errorf("save labelled image: %w", err)
			}
		}
		p.Context.ImprovementMarkers = markers
		p.Context.LabelledBaseImage = labelled
		p.Context.MarkerRecommendations = nil
		return true, nil
	})
}

type ColorSchemeRequest struct {
	PaletteName string   `json:"palette_name"`
	Colors      []string `json:"colors"`
	LetAIDecide bool     `json:"let_ai_decide"`
}

// ApplyColorScheme analyzes how a palette fits the room. Applying supersedes a
// previous skip.
func (s *Service) ApplyColorScheme(ctx context.Context, id string, req ColorSchemeRequest) (*domain.Project, error) {
	name, colors := strings.TrimSpace(req.PaletteName), req.Colors
	if !req.LetAIDecide {
		pal, ok := s.catalog.Palette(name)
		if !ok {
			return nil, domain.InvalidInput("unknown color palette %q", req.PaletteName)
		}
		name = pal.Name
		if len(colors) == 0 {
			colors = pal.Colors
		}
	}
	colors = domain.NormalizeRecommendations(colors)

	return s.mutate(ctx, id, domain.ActionApplyColorScheme, func(ctx context.Context, p *domain.Project) (bool, error) {
		prompt := colorAnalysisPrompt(p.Context.SpaceType, name, colors, req.LetAIDecide)
		analysis, err := s.analyzeBase(ctx, p, prompt, capabilities.ColorAnalysisSchema)
		if err != nil {
			return false, err
		}
		p.Context.Color = domain.AppliedFlow(analysis)
		p.Context.ColorScheme = map[string]any{
			"palette_name":  name,
			"colors":        colors,
			"let_ai_decide": req.LetAIDecide,
		}
		return false, nil
	})
}

func (s *Service) SkipColorAnalysis(ctx context.Context, id string) (*domain.Project, error) {
	return s.mutate(ctx, id, domain.ActionSkipColorAnalysis, func(ctx context.Context, p *domain.Project) (bool, error) {
		p.Context.Color = domain.SkippedFlow()
		p.Context.ColorScheme = nil
		return false, nil
	})
}

type StyleRequest struct {
	StyleName   string `json:"style_name"`
	LetAIDecide bool   `json:"let_ai_decide"`
}

// ApplyStyle analyzes how a design style fits the room, coordinating with the
// current color scheme.
func (s *Service) ApplyStyle(ctx context.Context, id string, req StyleRequest) (*domain.Project, error) {
	name := strings.TrimSpace(req.StyleName)
	if !req.LetAIDecide {
		st, ok := s.catalog.Style(name)
		if !ok {
			return nil, domain.InvalidInput("unknown design style %q", req.StyleName)
		}
		name = st.Name
	}

	return s.mutate(ctx, id, domain.ActionApplyStyle, func(ctx context.Context, p *domain.Project) (bool, error) {
		prompt := styleAnalysisPrompt(p.Context.SpaceType, name, schemeColors(p.Context.ColorScheme), req.LetAIDecide)
		analysis, err := s.analyzeBase(ctx, p, prompt, capabilities.StyleAnalysisSchema)
		if err != nil {
			return false, err
		}
		p.Context.Style = domain.AppliedFlow(analysis)
		p.Context.DesignStyle = map[string]any{
			"style_name":    name,
			"let_ai_decide": req.LetAIDecide,
		}
		return false, nil
	})
}

func (s *Service) SkipStyleAnalysis(ctx context.Context, id string) (*domain.Project, error) {
	return s.mutate(ctx, id, domain.ActionSkipStyleAnalysis, func(ctx context.Context, p *domain.Project) (bool, error) {
		p.Context.Style = domain.SkippedFlow()
		p.Context.DesignStyle = nil
		return false, nil
	})
}

// analyzeBase runs a vision analysis over the base image.
func (s *Service) analyzeBase(ctx context.Context, p *domain.Project, prompt string, schema capabilities.Schema) (domain.Analysis, error) {
	if s.caps.Vision == nil {
		return nil, capabilities.Unconfigured(capabilities.PortVision)
	}
	base, err := s.images.Load(ctx, p.Context.BaseImage)
	if err != nil {
		return nil, fmt.Errorf("load base image: %w", err)
	}
	res, err := s.caps.Vision.Analyze(ctx, base, prompt, schema)
	if err != nil {
		return nil, err
	}
	var a domain.Analysis
	if err := res.Decode(&a); err != nil {
		return nil, capabilities.Wrap(capabilities.PortVision, err)
	}
	if len(a) == 0 {
		return nil, &capabilities.CapabilityError{
			Kind:    capabilities.KindMalformedResponse,
			Port:    capabilities.PortVision,
			Message: schema.Name + " returned an empty object",
		}
	}
	return a, nil
}

// UpdatePreferredStores replaces the store list, trimmed and de-duplicated in
// order.
func (s *Service) UpdatePreferredStores(ctx context.Context, id string, stores []string) (*domain.Project, error) {
	stores = domain.NormalizeRecommendations(stores)
	return s.mutate(ctx, id, domain.ActionUpdatePreferredStores, func(ctx context.Context, p *domain.Project) (bool, error) {
		p.Context.PreferredStores = stores
		return false, nil
	})
}

// UploadInspirationImages appends images and withdraws an earlier skip.
func (s *Service) UploadInspirationImages(ctx context.Context, id string, images [][]byte) (*domain.Project, error) {
	if len(images) == 0 {
		return nil, domain.InvalidInput("at least one inspiration image is required")
	}
	exts := make([]string, len(images))
	for i, img := range images {
		ext, err := imaging.Sniff(img)
		if err != nil {
			return nil, fmt.Errorf("inspiration image %d: %w", i+1, err)
		}
		exts[i] = ext
	}

	return s.mutate(ctx, id, domain.ActionUploadInspirationImages, func(ctx context.Context, p *domain.Project) (bool, error) {
		if n := len(p.Context.InspirationImages) + len(images); n > MaxInspirationImages {
			return false, domain.InvalidInput("at most %d inspiration images allowed, got %d", MaxInspirationImages, n)
		}
		for i, img := range images {
			ref, err := s.images.Save(ctx, id, imageName("inspiration", exts[i]), img)
			if err != nil {
				return false, fmt.Errorf("save inspiration image: %w", err)
			}
			p.Context.InspirationImages = append(p.Context.InspirationImages, ref)
		}
		p.Context.InspirationImagesSkipped = false
		return true, nil
	})
}

// SkipInspirationImages resolves the inspiration sub-flow without images,
// which unlocks the product path.
func (s *Service) SkipInspirationImages(ctx context.Context, id string) (*domain.Project, error) {
	return s.mutate(ctx, id, domain.ActionSkipInspirationImages, func(ctx context.Context, p *domain.Project) (bool, error) {
		p.Context.InspirationImages = nil
		p.Context.InspirationRecommendations = nil
		p.Context.InspirationImagesSkipped = true
		return true, nil
	})
}

func schemeColors(scheme map[string]any) []string {
	switch v := scheme["colors"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, c := range v {
			if s, ok := c.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
