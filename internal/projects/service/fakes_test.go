package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/imaging"
	"github.com/Alyfish/spacestest-v0-mvp/internal/observability"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/repository"
)

// reply turns a scripted value into a port result; errors are returned as-is.
func reply(v any) (capabilities.StructuredResult, error) {
	if err, ok := v.(error); ok {
		return capabilities.StructuredResult{}, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return capabilities.StructuredResult{}, err
	}
	return capabilities.StructuredResult{Raw: raw}, nil
}

func recs(items ...string) map[string]any {
	return map[string]any{"recommendations": items, "reasoning": "scripted"}
}

func sixFor(prefix string) map[string]any {
	items := make([]string, domain.RecommendationCount)
	for i := range items {
		items[i] = fmt.Sprintf("%s recommendation %d", prefix, i+1)
	}
	return recs(items...)
}

type portCall struct {
	Prompt string
	Schema string
	Images [][]byte
}

// script is a FIFO of replies shared by the fake ports. When empty, the port
// falls back to a default reply for the schema.
type script struct {
	mu      sync.Mutex
	calls   []portCall
	replies []any
}

func (s *script) push(v ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, v...)
}

func (s *script) next(call portCall, fallback func(schema string) any) (capabilities.StructuredResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	var v any
	if len(s.replies) > 0 {
		v, s.replies = s.replies[0], s.replies[1:]
	} else {
		v = fallback(call.Schema)
	}
	s.mu.Unlock()
	return reply(v)
}

func (s *script) Calls() []portCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]portCall(nil), s.calls...)
}

func (s *script) last() portCall {
	c := s.Calls()
	if len(c) == 0 {
		return portCall{}
	}
	return c[len(c)-1]
}

type fakeVision struct{ script }

func (f *fakeVision) Analyze(ctx context.Context, img []byte, prompt string, schema capabilities.Schema, extra ...[]byte) (capabilities.StructuredResult, error) {
	images := append([][]byte{img}, extra...)
	return f.next(portCall{Prompt: prompt, Schema: schema.Name, Images: images}, visionDefault)
}

func visionDefault(schema string) any {
	switch schema {
	case capabilities.RoomEmptinessSchema.Name:
		return map[string]any{"is_empty": false, "confidence": 0.9, "reasoning": "a sofa is visible"}
	case capabilities.ColorAnalysisSchema.Name:
		return map[string]any{
			"palette_name":       "Coastal Calm",
			"primary_colors":     []string{"#FFFFFF", "#A9C6D4"},
			"accent_colors":      []string{"#2F4F6F"},
			"lighting_notes":     "soft north light",
			"application_advice": "paint the feature wall",
		}
	case capabilities.StyleAnalysisSchema.Name:
		return map[string]any{
			"style_name":                "Scandinavian",
			"materials":                 []string{"oak", "wool"},
			"furniture_characteristics": "low and simple",
			"key_changes":               []string{"lighter wood"},
		}
	default:
		return sixFor(strings.TrimSuffix(schema, "_recommendations"))
	}
}

type fakeText struct{ script }

func (f *fakeText) Complete(ctx context.Context, prompt string, schema capabilities.Schema) (capabilities.StructuredResult, error) {
	return f.next(portCall{Prompt: prompt, Schema: schema.Name}, func(string) any {
		return recs("replace sofa", "add floor lamp", "add area rug", "swap coffee table", "add wall shelf", "replace curtains")
	})
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []portCall
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, refs [][]byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, portCall{Prompt: prompt, Images: refs})
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf("generated-%d", len(f.calls))), nil
}

type fakeProducts struct {
	mu      sync.Mutex
	queries []string
	results []domain.Product
	err     error
}

func (f *fakeProducts) Search(ctx context.Context, query string) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type testEnv struct {
	svc      *Service
	store    *repository.RedisStore
	images   *imaging.FileStore
	imageDir string
	locker   *LocalLocker
	vision   *fakeVision
	text     *fakeText
	gen      *fakeGenerator
	products *fakeProducts
	metrics  *observability.Metrics
	registry *prometheus.Registry
	redis    *redis.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	dir := t.TempDir()
	images, err := imaging.NewFileStore(dir, nil)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()

	env := &testEnv{
		store:    repository.NewRedisStore(client, 0),
		images:   images,
		imageDir: dir,
		locker:   NewLocalLocker(0),
		vision:   &fakeVision{},
		text:     &fakeText{},
		gen:      &fakeGenerator{},
		products: &fakeProducts{},
		metrics:  observability.MustNewMetrics(reg),
		registry: reg,
		redis:    client,
	}
	env.svc, err = New(Deps{
		Store:  env.store,
		Images: env.images,
		Caps: capabilities.Set{
			Text:     env.text,
			Vision:   env.vision,
			Images:   env.gen,
			Products: env.products,
		},
		Locker:  env.locker,
		Metrics: env.metrics,
	})
	require.NoError(t, err)
	return env
}

func roomPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 180, G: 170, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func boolPtr(b bool) *bool { return &b }

// Workflow builders. Each returns the project id in the named state.

func (e *testEnv) withSpaceType(t *testing.T, empty bool) string {
	t.Helper()
	ctx := t.Context()
	p, err := e.svc.Create(ctx)
	require.NoError(t, err)
	_, err = e.svc.UploadBaseImage(ctx, p.ID, roomPNG(t), boolPtr(empty))
	require.NoError(t, err)
	_, err = e.svc.SelectSpaceType(ctx, p.ID, "bedroom")
	require.NoError(t, err)
	return p.ID
}

func (e *testEnv) resolveStyling(t *testing.T, id string) {
	t.Helper()
	ctx := t.Context()
	_, err := e.svc.SkipColorAnalysis(ctx, id)
	require.NoError(t, err)
	_, err = e.svc.SkipStyleAnalysis(ctx, id)
	require.NoError(t, err)
	_, err = e.svc.UpdatePreferredStores(ctx, id, []string{"IKEA"})
	require.NoError(t, err)
}

func (e *testEnv) withMarkerRecs(t *testing.T, markers ...domain.MarkerInput) string {
	t.Helper()
	id := e.withSpaceType(t, false)
	_, err := e.svc.SaveImprovementMarkers(t.Context(), id, markers)
	require.NoError(t, err)
	e.resolveStyling(t, id)
	_, err = e.svc.GenerateMarkerRecommendations(t.Context(), id)
	require.NoError(t, err)
	return id
}

func (e *testEnv) withProductRecs(t *testing.T) string {
	t.Helper()
	id := e.withMarkerRecs(t, domain.MarkerInput{Description: "add rug", Position: domain.Position{X: 0.2, Y: 0.8}})
	_, err := e.svc.SkipInspirationImages(t.Context(), id)
	require.NoError(t, err)
	_, err = e.svc.GenerateProductRecommendations(t.Context(), id)
	require.NoError(t, err)
	return id
}

func (e *testEnv) withSelection(t *testing.T) string {
	t.Helper()
	id := e.withProductRecs(t)
	_, err := e.svc.SelectRecommendation(t.Context(), id, "replace sofa")
	require.NoError(t, err)
	return id
}

func (e *testEnv) snapshot(t *testing.T, id string) *domain.Project {
	t.Helper()
	p, err := e.store.Get(t.Context(), id)
	require.NoError(t, err)
	return p
}
