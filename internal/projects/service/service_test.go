package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alyfish/spacestest-v0-mvp/internal/api/http/middleware"
	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.ErrorContains(t, err, "context store")

	env := newTestEnv(t)
	_, err = New(Deps{Store: env.store})
	assert.ErrorContains(t, err, "image store")

	_, err = New(Deps{Store: env.store, Images: env.images})
	assert.ErrorContains(t, err, "locker")
}

func TestService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := middleware.WithRequestID(t.Context(), "req-1")

	p, err := env.svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, p.Status)

	got, err := env.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	list, err := env.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = env.svc.UploadBaseImage(ctx, p.ID, roomPNG(t), boolPtr(false))
	require.NoError(t, err)
	dir := filepath.Join(env.imageDir, "projects", p.ID)
	_, err = os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, p.ID))
	_, err = env.svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	_, err = env.svc.SkipColorAnalysis(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestService_UploadBaseImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	t.Run("classifies the room when emptiness is not supplied", func(t *testing.T) {
		p, err := env.svc.Create(ctx)
		require.NoError(t, err)
		env.vision.push(map[string]any{"is_empty": true, "confidence": 0.8, "reasoning": "bare floor"})

		got, err := env.svc.UploadBaseImage(ctx, p.ID, roomPNG(t), nil)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusBaseImageUploaded, got.Status)
		assert.True(t, got.Context.IsBaseImageEmptyRoom)
		assert.Equal(t, capabilities.RoomEmptinessSchema.Name, env.vision.last().Schema)

		stored, err := env.images.Load(ctx, got.Context.BaseImage)
		require.NoError(t, err)
		assert.Equal(t, roomPNG(t), stored)
	})

	t.Run("rejects non-images before touching the project", func(t *testing.T) {
		p, err := env.svc.Create(ctx)
		require.NoError(t, err)
		_, err = env.svc.UploadBaseImage(ctx, p.ID, []byte("not an image"), boolPtr(false))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Equal(t, domain.StatusNew, env.snapshot(t, p.ID).Status)
	})

	t.Run("classification failure commits nothing", func(t *testing.T) {
		p, err := env.svc.Create(ctx)
		require.NoError(t, err)
		env.vision.push(&capabilities.CapabilityError{Kind: capabilities.KindTimeout, Port: capabilities.PortVision, Message: "slow"})

		_, err = env.svc.UploadBaseImage(ctx, p.ID, roomPNG(t), nil)
		assert.True(t, capabilities.IsKind(err, capabilities.KindTimeout))
		snap := env.snapshot(t, p.ID)
		assert.Equal(t, domain.StatusNew, snap.Status)
		assert.Empty(t, snap.Context.BaseImage)
	})
}

func TestService_EmptyRoomSettlesMarkers(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id := env.withSpaceType(t, true)
	p := env.snapshot(t, id)
	assert.Equal(t, domain.StatusSpaceTypeSelected, p.Status)
	require.NotNil(t, p.Context.ImprovementMarkers)
	assert.Empty(t, p.Context.ImprovementMarkers)
	assert.True(t, p.Gates().MarkersResolved)

	_, err := env.svc.GenerateMarkerRecommendations(ctx, id)
	var pe *domain.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"color_analysis", "style_analysis", "preferred_stores"}, pe.Missing)

	env.resolveStyling(t, id)
	p, err = env.svc.GenerateMarkerRecommendations(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMarkerRecommendationsReady, p.Status)
	assert.Len(t, p.Context.MarkerRecommendations, domain.RecommendationCount)
	assert.Contains(t, env.vision.last().Prompt, "The room is empty")
}

func TestService_MarkerRecommendationsCoverMarkers(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id := env.withSpaceType(t, false)
	p, err := env.svc.SaveImprovementMarkers(ctx, id, []domain.MarkerInput{
		{Description: "add rug", Position: domain.Position{X: 0.2, Y: 0.8}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusImprovementMarkersSaved, p.Status)
	assert.Equal(t, "red", p.Context.ImprovementMarkers[0].Color)
	require.NotEmpty(t, p.Context.LabelledBaseImage)
	labelled, err := env.images.Load(ctx, p.Context.LabelledBaseImage)
	require.NoError(t, err)

	env.resolveStyling(t, id)
	env.vision.push(recs(
		"Lay a wool rug under the bed to soften the floor.",
		"Add a bedside lamp for reading.",
		"Hang linen curtains to diffuse light.",
		"Place a bench at the foot of the bed.",
		"Add a mirror to bounce light.",
		"Use a plant to add life to the corner.",
	))

	p, err = env.svc.GenerateMarkerRecommendations(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMarkerRecommendationsReady, p.Status)
	require.Len(t, p.Context.MarkerRecommendations, domain.RecommendationCount)

	hasRug := false
	for _, r := range p.Context.MarkerRecommendations {
		hasRug = hasRug || strings.Contains(strings.ToLower(r), "rug")
	}
	assert.True(t, hasRug)

	call := env.vision.last()
	assert.Contains(t, call.Prompt, "Marker 1 (red) at 20% from left, 80% from top: add rug")
	assert.Contains(t, call.Prompt, "Preferred stores: IKEA")
	assert.Contains(t, call.Prompt, "cover every marker")
	require.Len(t, call.Images, 1)
	assert.True(t, bytes.Equal(labelled, call.Images[0]), "marker path reasons over the labelled image")
}

func TestService_SkipThenApply(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	id := env.withSpaceType(t, false)

	p, err := env.svc.SkipColorAnalysis(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.Context.Color.IsSkipped())

	p, err = env.svc.ApplyColorScheme(ctx, id, ColorSchemeRequest{PaletteName: "coastal-calm"})
	require.NoError(t, err)
	assert.False(t, p.Context.Color.IsSkipped())
	assert.Equal(t, domain.Applied, p.Context.Color.State())
	assert.Equal(t, "Coastal Calm", p.Context.ColorScheme["palette_name"])
	assert.Equal(t, domain.StatusSpaceTypeSelected, p.Status, "styling never moves status")
	assert.Contains(t, env.vision.last().Prompt, `"Coastal Calm" palette`)

	// Survives a round trip through the store.
	snap := env.snapshot(t, id)
	assert.False(t, snap.Context.Color.IsSkipped())
	assert.Equal(t, "Coastal Calm", snap.Context.Color.Analysis()["palette_name"])

	p, err = env.svc.ApplyStyle(ctx, id, StyleRequest{StyleName: "Scandinavian"})
	require.NoError(t, err)
	assert.Equal(t, domain.Applied, p.Context.Style.State())
	assert.Contains(t, env.vision.last().Prompt, "Coordinate with the selected color palette: #FFFFFF")

	p, err = env.svc.SkipStyleAnalysis(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.Context.Style.IsSkipped())
	assert.Nil(t, p.Context.DesignStyle)

	t.Run("unknown palette", func(t *testing.T) {
		_, err := env.svc.ApplyColorScheme(ctx, id, ColorSchemeRequest{PaletteName: "neon"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("let ai decide skips the catalog", func(t *testing.T) {
		p, err := env.svc.ApplyColorScheme(ctx, id, ColorSchemeRequest{LetAIDecide: true})
		require.NoError(t, err)
		assert.Equal(t, true, p.Context.ColorScheme["let_ai_decide"])
		assert.Contains(t, env.vision.last().Prompt, "choose the best colors")
	})
}

func TestService_UpdatePreferredStores(t *testing.T) {
	env := newTestEnv(t)
	id := env.withSpaceType(t, false)

	p, err := env.svc.UpdatePreferredStores(t.Context(), id, []string{" IKEA ", "West Elm", "ikea", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"IKEA", "West Elm"}, p.Context.PreferredStores)
	assert.True(t, p.Gates().StoresResolved)
}

func TestService_SelectRecommendationBeforeReady(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id := env.withMarkerRecs(t)
	_, err := env.svc.UploadInspirationImages(ctx, id, [][]byte{roomPNG(t)})
	require.NoError(t, err)
	before := env.snapshot(t, id)
	require.Equal(t, domain.StatusInspirationImagesUploaded, before.Status)

	_, err = env.svc.SelectRecommendation(ctx, id, "replace sofa")
	var pe *domain.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ActionSelectRecommendation, pe.Action)

	after := env.snapshot(t, id)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Empty(t, after.Context.SelectedProductRecommendations)
}

func TestService_InspirationPath(t *testing.T) {
	t.Run("short list retried once then rejected", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := t.Context()
		id := env.withMarkerRecs(t)
		_, err := env.svc.UploadInspirationImages(ctx, id, [][]byte{roomPNG(t)})
		require.NoError(t, err)

		env.vision.push(
			recs("Add a jute rug.", "Paint the wall sage.", "Swap to rattan chairs.", "Hang a round mirror."),
			recs("add a jute rug.", "Introduce brass lamps."),
		)
		calls := len(env.vision.Calls())

		_, err = env.svc.GenerateInspirationRecommendations(ctx, id)
		var rce *domain.RecommendationCountError
		require.ErrorAs(t, err, &rce)
		assert.Equal(t, 5, rce.Got)
		assert.Equal(t, string(domain.PathInspiration), rce.Path)

		sent := env.vision.Calls()[calls:]
		require.Len(t, sent, 2)
		assert.Contains(t, sent[1].Prompt, "Produce 2 more distinct items")
		assert.Contains(t, sent[1].Prompt, "- Hang a round mirror.")

		snap := env.snapshot(t, id)
		assert.Empty(t, snap.Context.InspirationRecommendations)
		assert.Equal(t, domain.StatusInspirationImagesUploaded, snap.Status)
		require.NoError(t, testutil.GatherAndCompare(env.registry, strings.NewReader(`
# HELP spaces_workflow_recommendation_retries_total Top-up retries issued when a generation path came back short.
# TYPE spaces_workflow_recommendation_retries_total counter
spaces_workflow_recommendation_retries_total{outcome="short",path="inspiration"} 1
`), "spaces_workflow_recommendation_retries_total"))
	})

	t.Run("short list recovered by the retry", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := t.Context()
		id := env.withMarkerRecs(t, domain.MarkerInput{Description: "fix lighting", Position: domain.Position{X: 0.5, Y: 0.1}})
		_, err := env.svc.UploadInspirationImages(ctx, id, [][]byte{roomPNG(t), roomPNG(t)})
		require.NoError(t, err)

		env.vision.push(
			recs("A", "B", "", "b", "C", "D"),
			recs("E", "F", "G"),
		)
		p, err := env.svc.GenerateInspirationRecommendations(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, p.Context.InspirationRecommendations)
		assert.Equal(t, domain.StatusInspirationRecommendationsReady, p.Status)

		call := env.vision.last()
		assert.Len(t, call.Images, 3, "base image plus both inspiration images")
		assert.Contains(t, call.Prompt, "Treat them as constraints")
	})

	t.Run("long list truncated without retry", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := t.Context()
		id := env.withMarkerRecs(t)
		_, err := env.svc.UploadInspirationImages(ctx, id, [][]byte{roomPNG(t)})
		require.NoError(t, err)

		env.vision.push(recs("1", "2", "3", "4", "5", "6", "7", "8"))
		calls := len(env.vision.Calls())
		p, err := env.svc.GenerateInspirationRecommendations(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, p.Context.InspirationRecommendations)
		assert.Len(t, env.vision.Calls(), calls+1)
	})
}

func TestService_ProductPath(t *testing.T) {
	t.Run("reconciles markers with inspiration", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := t.Context()
		id := env.withMarkerRecs(t, domain.MarkerInput{Description: "add rug", Position: domain.Position{X: 0.2, Y: 0.8}})
		_, err := env.svc.UploadInspirationImages(ctx, id, [][]byte{roomPNG(t)})
		require.NoError(t, err)
		_, err = env.svc.GenerateInspirationRecommendations(ctx, id)
		require.NoError(t, err)

		p, err := env.svc.GenerateProductRecommendations(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProductRecommendationsReady, p.Status)
		assert.Len(t, p.Context.ProductRecommendations, domain.RecommendationCount)

		prompt := env.text.last().Prompt
		assert.Contains(t, prompt, "High Priority User Requests:\n- add rug")
		assert.Contains(t, prompt, "Visual Target:\n- inspiration recommendation 1")
		assert.Contains(t, prompt, "Room Status: Furnished room")
		assert.Contains(t, prompt, "2-4 words")
	})

	t.Run("no reconciliation without inspiration", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.withProductRecs(t)
		assert.Equal(t, domain.StatusProductRecommendationsReady, env.snapshot(t, id).Status)

		prompt := env.text.last().Prompt
		assert.NotContains(t, prompt, "High Priority User Requests")
		assert.Contains(t, prompt, "Marker 1 (red)")
	})

	t.Run("blocked until inspiration resolves", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.withMarkerRecs(t)
		_, err := env.svc.GenerateProductRecommendations(t.Context(), id)
		assert.ErrorIs(t, err, domain.ErrPrecondition)
	})

	t.Run("capability failure leaves the list untouched", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := t.Context()
		id := env.withProductRecs(t)
		before := env.snapshot(t, id)

		env.text.push(&capabilities.CapabilityError{Kind: capabilities.KindRateLimit, Port: capabilities.PortText, Message: "slow down"})
		_, err := env.svc.GenerateProductRecommendations(ctx, id)
		assert.True(t, capabilities.IsKind(err, capabilities.KindRateLimit))

		after := env.snapshot(t, id)
		assert.Equal(t, before.Context.ProductRecommendations, after.Context.ProductRecommendations)
		assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
		require.NoError(t, testutil.GatherAndCompare(env.registry, strings.NewReader(`
# HELP spaces_workflow_action_failures_total Workflow actions that failed, by error class.
# TYPE spaces_workflow_action_failures_total counter
spaces_workflow_action_failures_total{action="generate_product_recommendations",reason="capability_rate_limit"} 1
`), "spaces_workflow_action_failures_total"))
	})
}

func TestService_RegenerationNeverMovesStatusBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id := env.withMarkerRecs(t)
	_, err := env.svc.UploadInspirationImages(ctx, id, [][]byte{roomPNG(t)})
	require.NoError(t, err)
	_, err = env.svc.GenerateInspirationRecommendations(ctx, id)
	require.NoError(t, err)
	_, err = env.svc.GenerateProductRecommendations(ctx, id)
	require.NoError(t, err)
	_, err = env.svc.SelectRecommendation(ctx, id, "replace sofa")
	require.NoError(t, err)

	env.vision.push(sixFor("fresh"))
	p, err := env.svc.GenerateInspirationRecommendations(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProductRecommendationSelected, p.Status)
	assert.Equal(t, "fresh recommendation 1", p.Context.InspirationRecommendations[0])

	env.text.push(recs("add mirror", "add plant", "add bench", "add sconce", "add ottoman", "add throw"))
	p, err = env.svc.GenerateProductRecommendations(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProductRecommendationSelected, p.Status)
	// Stale selections are kept and flagged rather than dropped.
	assert.Equal(t, []string{"replace sofa"}, p.Context.SelectedProductRecommendations)
	assert.Equal(t, []string{"replace sofa"}, domain.StaleSelections(&p.Context))

	// More inspiration is only accepted before product recommendations.
	_, err = env.svc.UploadInspirationImages(ctx, id, [][]byte{roomPNG(t)})
	assert.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestService_SelectRecommendation(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	id := env.withProductRecs(t)

	p, err := env.svc.SelectRecommendation(ctx, id, "  REPLACE SOFA ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProductRecommendationSelected, p.Status)
	assert.Equal(t, []string{"replace sofa"}, p.Context.SelectedProductRecommendations)

	p, err = env.svc.SelectRecommendation(ctx, id, "add floor lamp")
	require.NoError(t, err)
	assert.Equal(t, []string{"replace sofa", "add floor lamp"}, p.Context.SelectedProductRecommendations)

	_, err = env.svc.SelectRecommendation(ctx, id, "buy a boat")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.svc.SelectRecommendation(ctx, id, "replace sofa")
	require.NoError(t, err)
	p, err = env.svc.SelectRecommendation(ctx, id, "add floor lamp")
	require.NoError(t, err)
	assert.Empty(t, p.Context.SelectedProductRecommendations)
	assert.Equal(t, domain.StatusProductRecommendationSelected, p.Status, "deselecting never reverts status")

	_, err = env.svc.SearchProducts(ctx, id)
	assert.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestService_SearchAndGenerate(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	id := env.withSelection(t)

	// A product image stored locally stands in for a retailer image.
	productRef, err := env.images.Save(ctx, id, "product.png", roomPNG(t))
	require.NoError(t, err)

	env.products.results = []domain.Product{
		{Title: "Oslo 3-Seat Sofa", URL: "https://shop.example/sofa-1?utm=a", ImageURL: "", IsProductPage: true},
		{Title: "Oslo 3-Seat Sofa", URL: "https://SHOP.example/sofa-1#reviews", IsProductPage: true},
		{Title: "Sofa styling ideas", URL: "https://blog.example/ideas", IsProductPage: true},
		{Title: "Linen Sectional", URL: "https://shop.example/sectional", ImageURL: productRef, IsProductPage: true},
		{Title: "Velvet Loveseat", URL: "https://shop.example/loveseat", IsProductPage: false},
		{Title: "Floor Lamp", URL: "https://shop.example/lamp", IsProductPage: true},
	}

	p, err := env.svc.SearchProducts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProductSearchComplete, p.Status)
	require.Len(t, p.Context.ProductSearchResults, 2)
	assert.Equal(t, "https://shop.example/sofa-1?utm=a", p.Context.ProductSearchResults[0].URL)
	assert.Equal(t, "Linen Sectional", p.Context.ProductSearchResults[1].Title)
	assert.Equal(t, "replace sofa bedroom IKEA -decor -ideas", p.Context.ProductSearchQuery)

	p, err = env.svc.SearchProducts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProductSearchComplete, p.Status)

	p, err = env.svc.SelectProduct(ctx, id, SelectProductRequest{
		URL:              "https://shop.example/sectional",
		GenerationPrompt: "keep the window clear",
		DesignStyle:      map[string]any{"style_name": "Scandinavian"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProductSelected, p.Status)
	require.Len(t, p.Context.SelectedProducts, 1)
	assert.Equal(t, "Linen Sectional", p.Context.SelectedProducts[0].Title, "title filled from the search result")
	assert.Equal(t, productRef, p.Context.SelectedProducts[0].ImageURL, "image filled from the search result")
	assert.Equal(t, "Scandinavian", p.Context.DesignStyle["style_name"])

	p, err = env.svc.SelectProduct(ctx, id, SelectProductRequest{
		URL:               "https://shop.example/sectional",
		Title:             "Linen Sectional, grey",
		ImageURL:          productRef,
		KeepOriginalStyle: true,
		DesignStyle:       map[string]any{"style_name": "Industrial"},
	})
	require.NoError(t, err)
	require.Len(t, p.Context.SelectedProducts, 1, "re-selection updates in place")
	assert.Equal(t, "Linen Sectional, grey", p.Context.SelectedProducts[0].Title)
	assert.Equal(t, "Scandinavian", p.Context.DesignStyle["style_name"], "keep original ignores the new style")

	p, err = env.svc.GenerateImage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusImageGenerated, p.Status)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("generated-1")), p.Context.GeneratedImageBase64)
	assert.Contains(t, p.Context.GenerationPrompt, "Linen Sectional, grey")
	assert.Contains(t, p.Context.GenerationPrompt, "Keep the room's original style.")
	require.Len(t, env.gen.calls, 1)
	assert.Len(t, env.gen.calls[0].Images, 2, "base image and product image")

	p, err = env.svc.GenerateImage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("generated-2")), p.Context.GeneratedImageBase64)
	assert.Equal(t, domain.StatusImageGenerated, p.Status)

	t.Run("generator failure keeps the last image", func(t *testing.T) {
		env.gen.err = &capabilities.CapabilityError{Kind: capabilities.KindUpstream, Port: capabilities.PortImage, Message: "boom"}
		defer func() { env.gen.err = nil }()
		_, err := env.svc.GenerateImage(ctx, id)
		assert.Error(t, err)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("generated-2")),
			env.snapshot(t, id).Context.GeneratedImageBase64)
	})
}

func TestService_SelectProductValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.withSelection(t)

	_, err := env.svc.SelectProduct(t.Context(), id, SelectProductRequest{URL: "https://shop.example/x"})
	assert.ErrorIs(t, err, domain.ErrPrecondition, "no search results yet")

	_, err = env.svc.SelectProduct(t.Context(), id, SelectProductRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_SelectProductImageURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	id := env.withSelection(t)

	var hits atomic.Int32
	retailer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(retailer.Close)

	env.products.results = []domain.Product{
		{Title: "Linen Sectional", URL: "https://shop.example/sectional", ImageURL: retailer.URL + "/sectional.jpg", IsProductPage: true},
	}
	_, err := env.svc.SearchProducts(ctx, id)
	require.NoError(t, err)

	t.Run("unknown image url is rejected", func(t *testing.T) {
		before := env.snapshot(t, id)
		_, err := env.svc.SelectProduct(ctx, id, SelectProductRequest{
			URL:      "https://shop.example/sectional",
			ImageURL: "http://169.254.169.254/latest/meta-data",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Equal(t, before, env.snapshot(t, id))
	})

	t.Run("remote fetch failure is an upstream capability error", func(t *testing.T) {
		_, err := env.svc.SelectProduct(ctx, id, SelectProductRequest{
			URL:      "https://shop.example/sectional",
			ImageURL: retailer.URL + "/sectional.jpg",
		})
		require.NoError(t, err)

		_, err = env.svc.GenerateImage(ctx, id)
		require.Error(t, err)
		assert.True(t, capabilities.IsKind(err, capabilities.KindUpstream))
		assert.EqualValues(t, 1, hits.Load())
		assert.Empty(t, env.gen.calls)
		assert.Equal(t, domain.StatusProductSelected, env.snapshot(t, id).Status)
	})
}

func TestService_InspirationRedesign(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	id := env.withSelection(t)

	p, err := env.svc.InspirationRedesign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInspirationRedesignComplete, p.Status)
	assert.NotEmpty(t, p.Context.InspirationGeneratedImageBase64)
	assert.Contains(t, p.Context.InspirationGenerationPrompt, "FURNITURE REPLACEMENTS:\n- replace sofa")
	assert.Empty(t, p.Context.GeneratedImageBase64)

	p, err = env.svc.InspirationRedesign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInspirationRedesignComplete, p.Status)

	_, err = env.svc.SearchProducts(ctx, id)
	assert.ErrorIs(t, err, domain.ErrPrecondition, "the redesign terminal is off the search tail")
}

func TestService_BusyProjectRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	id := env.withSpaceType(t, false)

	release, err := env.locker.Acquire(ctx, id)
	require.NoError(t, err)

	_, err = env.svc.SkipColorAnalysis(ctx, id)
	var busy *domain.ProjectBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, id, busy.ProjectID)

	// Reads use the committed snapshot and are not blocked.
	_, err = env.svc.Get(ctx, id)
	require.NoError(t, err)

	release()
	_, err = env.svc.SkipColorAnalysis(ctx, id)
	require.NoError(t, err)
}

func TestService_UnconfiguredPorts(t *testing.T) {
	env := newTestEnv(t)
	svc, err := New(Deps{Store: env.store, Images: env.images, Locker: env.locker})
	require.NoError(t, err)

	p, err := svc.Create(t.Context())
	require.NoError(t, err)
	_, err = svc.UploadBaseImage(t.Context(), p.ID, roomPNG(t), nil)
	assert.True(t, capabilities.IsKind(err, capabilities.KindUnavailable))
}

func TestFailureReason(t *testing.T) {
	cases := map[string]error{
		"not_found":                     domain.ErrProjectNotFound,
		"precondition":                  &domain.PreconditionError{},
		"busy":                          &domain.ProjectBusyError{},
		"recommendation_count":          &domain.RecommendationCountError{},
		"invalid_input":                 domain.InvalidInput("x"),
		"capability_malformed_response": &capabilities.CapabilityError{Kind: capabilities.KindMalformedResponse},
		"canceled":                      context.Canceled,
		"internal":                      errors.New("disk full"),
	}
	for want, err := range cases {
		assert.Equal(t, want, failureReason(err), want)
	}
}

func TestService_DeleteIfStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return clock }

	p, err := env.svc.Create(ctx)
	require.NoError(t, err)
	cutoff := clock.Add(time.Hour)

	// Touched after the purge listed it as expired.
	clock = clock.Add(2 * time.Hour)
	_, err = env.svc.UploadBaseImage(ctx, p.ID, roomPNG(t), boolPtr(false))
	require.NoError(t, err)

	ok, err := env.svc.DeleteIfStale(ctx, p.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = env.svc.Get(ctx, p.ID)
	require.NoError(t, err)

	ok, err = env.svc.DeleteIfStale(ctx, p.ID, clock.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = env.svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)

	_, err = env.svc.DeleteIfStale(ctx, "missing", cutoff)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}
