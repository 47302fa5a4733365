package capabilities

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// WithRateLimit returns a Set whose ports share one token bucket. A call that
// cannot get a token before ctx ends fails with a rate_limit error.
func WithRateLimit(s Set, limiter *rate.Limiter) Set {
	if limiter == nil {
		return s
	}
	return Set{
		Text:     limitedText{next: s.Text, l: limiter},
		Vision:   limitedVision{next: s.Vision, l: limiter},
		Images:   limitedImages{next: s.Images, l: limiter},
		Products: limitedProducts{next: s.Products, l: limiter},
	}
}

func wait(ctx context.Context, l *rate.Limiter, port string) error {
	if err := l.Wait(ctx); err != nil {
		return &CapabilityError{Kind: KindRateLimit, Port: port, Message: "rate limiter: " + err.Error(), Err: err}
	}
	return nil
}

type limitedText struct {
	next TextReasoner
	l    *rate.Limiter
}

func (t limitedText) Complete(ctx context.Context, prompt string, schema Schema) (StructuredResult, error) {
	if err := wait(ctx, t.l, PortText); err != nil {
		return StructuredResult{}, err
	}
	return t.next.Complete(ctx, prompt, schema)
}

type limitedVision struct {
	next VisionAnalyzer
	l    *rate.Limiter
}

func (v limitedVision) Analyze(ctx context.Context, image []byte, prompt string, schema Schema, extra ...[]byte) (StructuredResult, error) {
	if err := wait(ctx, v.l, PortVision); err != nil {
		return StructuredResult{}, err
	}
	return v.next.Analyze(ctx, image, prompt, schema, extra...)
}

type limitedImages struct {
	next ImageGenerator
	l    *rate.Limiter
}

func (g limitedImages) Generate(ctx context.Context, prompt string, refs [][]byte) ([]byte, error) {
	if err := wait(ctx, g.l, PortImage); err != nil {
		return nil, err
	}
	return g.next.Generate(ctx, prompt, refs)
}

type limitedProducts struct {
	next ProductSearcher
	l    *rate.Limiter
}

func (p limitedProducts) Search(ctx context.Context, query string) ([]domain.Product, error) {
	if err := wait(ctx, p.l, PortProducts); err != nil {
		return nil, err
	}
	return p.next.Search(ctx, query)
}
