package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/imaging"
)

// maxParallelLoads bounds concurrent image reads for one action.
const maxParallelLoads = 4

// loadImages reads refs concurrently, preserving order. Remote references are
// product images from the search provider, so their failures are reported as
// upstream capability errors.
func (s *Service) loadImages(ctx context.Context, refs []string) ([][]byte, error) {
	out := make([][]byte, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := s.images.Load(gctx, ref)
			if err != nil && imaging.IsRemote(ref) {
				return capabilities.Wrap(capabilities.PortProducts, err)
			}
			if err != nil {
				return fmt.Errorf("load image %s: %w", ref, err)
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// imageName returns a fresh file name so a write never replaces an image the
// committed snapshot still points at.
func imageName(kind, ext string) string {
	return kind + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + ext
}
