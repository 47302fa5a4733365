package capabilities

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alyfish/spacestest-v0-mvp/internal/observability"
	"github.com/Alyfish/spacestest-v0-mvp/internal/platform/logger"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// Instrument wraps every port with a span, a duration histogram, a structured
// log line and error normalization into *CapabilityError. Nil ports become
// ports that fail with an unavailable error.
func Instrument(s Set, m *observability.Metrics, log *logger.Logger) Set {
	if log == nil {
		log = logger.Nop()
	}
	in := &instrumenter{
		tracer: otel.Tracer(observability.TracerName),
		m:      m,
		log:    log,
	}
	return Set{
		Text:     instrumentedText{next: s.Text, in: in},
		Vision:   instrumentedVision{next: s.Vision, in: in},
		Images:   instrumentedImages{next: s.Images, in: in},
		Products: instrumentedProducts{next: s.Products, in: in},
	}
}

type instrumenter struct {
	tracer trace.Tracer
	m      *observability.Metrics
	log    *logger.Logger
}

func (in *instrumenter) start(ctx context.Context, port string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := in.tracer.Start(ctx, "capability."+port, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (in *instrumenter) finish(span trace.Span, port string, started time.Time, err error) error {
	defer span.End()
	d := time.Since(started)
	if err == nil {
		in.m.ObserveCapability(port, "ok", d)
		in.log.Debug("capability call", "port", port, "duration_ms", d.Milliseconds())
		return nil
	}
	err = Wrap(port, err)
	var ce *CapabilityError
	errors.As(err, &ce)
	in.m.ObserveCapability(port, "error", d)
	in.m.IncCapabilityFailure(port, string(ce.Kind))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(ce.Kind))
	in.log.Warn("capability call failed", "port", port, "kind", ce.Kind, "duration_ms", d.Milliseconds(), "error", err)
	return err
}

type instrumentedText struct {
	next TextReasoner
	in   *instrumenter
}

func (t instrumentedText) Complete(ctx context.Context, prompt string, schema Schema) (StructuredResult, error) {
	if t.next == nil {
		return StructuredResult{}, Unconfigured(PortText)
	}
	ctx, span, started := t.in.start(ctx, PortText, attribute.String("schema", schema.Name), attribute.Int("prompt_len", len(prompt)))
	res, err := t.next.Complete(ctx, prompt, schema)
	return res, t.in.finish(span, PortText, started, err)
}

type instrumentedVision struct {
	next VisionAnalyzer
	in   *instrumenter
}

func (v instrumentedVision) Analyze(ctx context.Context, image []byte, prompt string, schema Schema, extra ...[]byte) (StructuredResult, error) {
	if v.next == nil {
		return StructuredResult{}, Unconfigured(PortVision)
	}
	ctx, span, started := v.in.start(ctx, PortVision, attribute.String("schema", schema.Name), attribute.Int("images", 1+len(extra)))
	res, err := v.next.Analyze(ctx, image, prompt, schema, extra...)
	return res, v.in.finish(span, PortVision, started, err)
}

type instrumentedImages struct {
	next ImageGenerator
	in   *instrumenter
}

func (g instrumentedImages) Generate(ctx context.Context, prompt string, refs [][]byte) ([]byte, error) {
	if g.next == nil {
		return nil, Unconfigured(PortImage)
	}
	ctx, span, started := g.in.start(ctx, PortImage, attribute.Int("refs", len(refs)))
	out, err := g.next.Generate(ctx, prompt, refs)
	if err == nil && len(out) == 0 {
		err = &CapabilityError{Kind: KindMalformedResponse, Message: "empty image"}
	}
	return out, g.in.finish(span, PortImage, started, err)
}

type instrumentedProducts struct {
	next ProductSearcher
	in   *instrumenter
}

func (p instrumentedProducts) Search(ctx context.Context, query string) ([]domain.Product, error) {
	if p.next == nil {
		return nil, Unconfigured(PortProducts)
	}
	ctx, span, started := p.in.start(ctx, PortProducts, attribute.String("query", query))
	out, err := p.next.Search(ctx, query)
	if err == nil {
		span.SetAttributes(attribute.Int("results", len(out)))
	}
	return out, p.in.finish(span, PortProducts, started, err)
}
