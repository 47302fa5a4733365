package service

import (
	"context"
	"encoding/base64"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// GenerateImage renders the room with the most recently selected product.
// Every call overwrites the previous image.
func (s *Service) GenerateImage(ctx context.Context, id string) (*domain.Project, error) {
	return s.mutate(ctx, id, domain.ActionGenerateImage, func(ctx context.Context, p *domain.Project) (bool, error) {
		c := &p.Context
		product := latestSelection(c.SelectedProducts)

		refs := []string{c.BaseImage}
		if product.ImageURL != "" {
			refs = append(refs, product.ImageURL)
		}
		prompt := visualizationPrompt(c, product)
		img, err := s.render(ctx, prompt, refs)
		if err != nil {
			return false, err
		}
		c.GeneratedImageBase64 = base64.StdEncoding.EncodeToString(img)
		c.GenerationPrompt = prompt
		return true, nil
	})
}

// InspirationRedesign renders the room toward the inspiration images and
// recommendations instead of a specific product. It ends in a terminal state
// outside the product-search tail.
func (s *Service) InspirationRedesign(ctx context.Context, id string) (*domain.Project, error) {
	return s.mutate(ctx, id, domain.ActionInspirationRedesign, func(ctx context.Context, p *domain.Project) (bool, error) {
		c := &p.Context
		refs := append([]string{c.BaseImage}, c.InspirationImages...)
		prompt := redesignPrompt(c)
		img, err := s.render(ctx, prompt, refs)
		if err != nil {
			return false, err
		}
		c.InspirationGeneratedImageBase64 = base64.StdEncoding.EncodeToString(img)
		c.InspirationGenerationPrompt = prompt
		return true, nil
	})
}

func (s *Service) render(ctx context.Context, prompt string, refs []string) ([]byte, error) {
	if s.caps.Images == nil {
		return nil, capabilities.Unconfigured(capabilities.PortImage)
	}
	imgs, err := s.loadImages(ctx, refs)
	if err != nil {
		return nil, err
	}
	out, err := s.caps.Images.Generate(ctx, prompt, imgs)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &capabilities.CapabilityError{
			Kind:    capabilities.KindMalformedResponse,
			Port:    capabilities.PortImage,
			Message: "generator returned no image",
		}
	}
	return out, nil
}
