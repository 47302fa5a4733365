package capabilities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Alyfish/spacestest-v0-mvp/internal/observability"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

type stubText struct {
	err error
}

func (s stubText) Complete(ctx context.Context, prompt string, schema Schema) (StructuredResult, error) {
	if s.err != nil {
		return StructuredResult{}, s.err
	}
	return StructuredResult{Raw: []byte(`{"recommendations":["a"]}`)}, nil
}

type stubProducts struct{}

func (stubProducts) Search(ctx context.Context, query string) ([]domain.Product, error) {
	return []domain.Product{{Title: query}}, nil
}

func TestWrap(t *testing.T) {
	t.Run("deadline becomes timeout", func(t *testing.T) {
		err := Wrap(PortText, context.DeadlineExceeded)
		assert.True(t, IsKind(err, KindTimeout))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("keeps existing kind and fills port", func(t *testing.T) {
		err := Wrap(PortImage, &CapabilityError{Kind: KindRateLimit, Message: "slow"})
		var ce *CapabilityError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, KindRateLimit, ce.Kind)
		assert.Equal(t, PortImage, ce.Port)
	})

	t.Run("anything else is upstream", func(t *testing.T) {
		assert.True(t, IsKind(Wrap(PortVision, errors.New("boom")), KindUpstream))
		assert.NoError(t, Wrap(PortVision, nil))
	})
}

func TestFromStatus(t *testing.T) {
	assert.Equal(t, KindRateLimit, FromStatus(PortText, 429, "").Kind)
	assert.Equal(t, KindTimeout, FromStatus(PortText, 504, "").Kind)
	assert.Equal(t, KindUnavailable, FromStatus(PortText, 503, "").Kind)
	assert.Equal(t, KindUpstream, FromStatus(PortText, 500, "").Kind)
}

func TestStructuredResult_Decode(t *testing.T) {
	var v map[string]any
	assert.True(t, IsKind(StructuredResult{}.Decode(&v), KindMalformedResponse))
	assert.True(t, IsKind(StructuredResult{Raw: []byte("{")}.Decode(&v), KindMalformedResponse))
	require.NoError(t, StructuredResult{Raw: []byte(`{"a":1}`)}.Decode(&v))
}

func TestInstrument(t *testing.T) {
	m := observability.MustNewMetrics(prometheus.NewRegistry())

	t.Run("normalizes adapter errors", func(t *testing.T) {
		s := Instrument(Set{Text: stubText{err: errors.New("connection reset")}}, m, nil)
		_, err := s.Text.Complete(t.Context(), "p", RecommendationSchema("recs"))
		var ce *CapabilityError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, PortText, ce.Port)
		assert.Equal(t, KindUpstream, ce.Kind)
	})

	t.Run("missing ports are unavailable", func(t *testing.T) {
		s := Instrument(Set{}, m, nil)
		_, err := s.Images.Generate(t.Context(), "p", nil)
		assert.True(t, IsKind(err, KindUnavailable))
		_, err = s.Vision.Analyze(t.Context(), nil, "p", RoomEmptinessSchema)
		assert.True(t, IsKind(err, KindUnavailable))
	})

	t.Run("passes results through", func(t *testing.T) {
		s := Instrument(Set{Products: stubProducts{}}, m, nil)
		out, err := s.Products.Search(t.Context(), "rug")
		require.NoError(t, err)
		assert.Equal(t, "rug", out[0].Title)
	})
}

func TestWithRateLimit(t *testing.T) {
	t.Run("exhausted bucket fails as rate limit", func(t *testing.T) {
		s := WithRateLimit(Set{Text: stubText{}}, rate.NewLimiter(rate.Every(time.Hour), 1))

		_, err := s.Text.Complete(t.Context(), "p", RecommendationSchema("recs"))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		_, err = s.Text.Complete(ctx, "p", RecommendationSchema("recs"))
		assert.True(t, IsKind(err, KindRateLimit))
	})

	t.Run("nil limiter is a pass-through", func(t *testing.T) {
		in := Set{Text: stubText{}}
		assert.Equal(t, in, WithRateLimit(in, nil))
	})
}
