package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Analysis is an opaque structured AI output (color or style guidance).
type Analysis map[string]any

// Resolution is the state of an optional sub-flow.
type Resolution int

const (
	Unresolved Resolution = iota
	Applied
	Skipped
)

func (r Resolution) String() string {
	switch r {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	default:
		return "unresolved"
	}
}

// SubFlow is the tagged variant {Unresolved, Applied(Analysis), Skipped} for
// the color and style steps. Apply and skip are mutually exclusive by
// construction.
type SubFlow struct {
	state    Resolution
	analysis Analysis
}

// AppliedFlow returns a sub-flow resolved with an analysis.
func AppliedFlow(a Analysis) SubFlow {
	if a == nil {
		a = Analysis{}
	}
	return SubFlow{state: Applied, analysis: a}
}

// SkippedFlow returns a sub-flow resolved by an explicit skip.
func SkippedFlow() SubFlow { return SubFlow{state: Skipped} }

func (f SubFlow) State() Resolution  { return f.state }
func (f SubFlow) Analysis() Analysis { return f.analysis }
func (f SubFlow) Resolved() bool     { return f.state != Unresolved }
func (f SubFlow) IsSkipped() bool    { return f.state == Skipped }

// Position is a normalized image coordinate in [0,1].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Marker is a user-placed improvement request on the base image.
type Marker struct {
	ID          string   `json:"id"`
	Position    Position `json:"position"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
}

// Product is one ranked product search result.
type Product struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	ImageURL      string   `json:"image_url,omitempty"`
	Store         string   `json:"store,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	PriceText     string   `json:"price_text,omitempty"`
	Source        string   `json:"source_api,omitempty"`
	IsProductPage bool     `json:"is_product_page"`
}

// SelectedProduct is a product chosen for image generation.
type SelectedProduct struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	ImageURL   string    `json:"image_url"`
	SelectedAt time.Time `json:"selected_at"`
}

// Context is the accumulating per-project document. Known keys are typed;
// anything else round-trips through Extra.
type Context struct {
	BaseImage            string
	IsBaseImageEmptyRoom bool
	SpaceType            string
	ImprovementMarkers   []Marker
	LabelledBaseImage    string

	Color       SubFlow
	ColorScheme map[string]any
	Style       SubFlow
	DesignStyle map[string]any

	PreferredStores []string

	InspirationImages          []string
	InspirationImagesSkipped   bool
	InspirationRecommendations []string

	MarkerRecommendations          []string
	ProductRecommendations         []string
	SelectedProductRecommendations []string

	ProductSearchQuery   string
	ProductSearchResults []Product
	SelectedProducts     []SelectedProduct

	KeepOriginalColors     bool
	KeepOriginalStyle      bool
	CustomGenerationPrompt string
	GeneratedImageBase64   string
	GenerationPrompt       string

	InspirationGeneratedImageBase64 string
	InspirationGenerationPrompt     string

	Extra map[string]json.RawMessage
}

// contextWire is the persisted/serialized shape of Context.
type contextWire struct {
	BaseImage            *string  `json:"base_image"`
	IsBaseImageEmptyRoom bool     `json:"is_base_image_empty_room"`
	SpaceType            *string  `json:"space_type"`
	ImprovementMarkers   []Marker `json:"improvement_markers"`
	LabelledBaseImage    *string  `json:"labelled_base_image"`

	ColorScheme          map[string]any `json:"color_scheme"`
	ColorAnalysis        Analysis       `json:"color_analysis"`
	ColorAnalysisSkipped bool           `json:"color_analysis_skipped"`
	DesignStyle          map[string]any `json:"design_style"`
	StyleAnalysis        Analysis       `json:"style_analysis"`
	StyleAnalysisSkipped bool           `json:"style_analysis_skipped"`

	PreferredStores []string `json:"preferred_stores"`

	InspirationImages          []string `json:"inspiration_images"`
	InspirationImagesSkipped   bool     `json:"inspiration_images_skipped"`
	InspirationRecommendations []string `json:"inspiration_recommendations"`

	MarkerRecommendations          []string `json:"marker_recommendations"`
	ProductRecommendations         []string `json:"product_recommendations"`
	SelectedProductRecommendations []string `json:"selected_product_recommendations"`

	ProductSearchQuery   string            `json:"product_search_query,omitempty"`
	ProductSearchResults []Product         `json:"product_search_results"`
	SelectedProducts     []SelectedProduct `json:"selected_products"`

	KeepOriginalColors     bool    `json:"keep_original_colors"`
	KeepOriginalStyle      bool    `json:"keep_original_style"`
	CustomGenerationPrompt string  `json:"custom_generation_prompt,omitempty"`
	GeneratedImageBase64   *string `json:"generated_image_base64"`
	GenerationPrompt       *string `json:"generation_prompt"`

	InspirationGeneratedImageBase64 string `json:"inspiration_generated_image_base64,omitempty"`
	InspirationGenerationPrompt     string `json:"inspiration_generation_prompt,omitempty"`
}

var knownContextKeys = map[string]struct{}{
	"base_image": {}, "is_base_image_empty_room": {}, "space_type": {},
	"improvement_markers": {}, "labelled_base_image": {},
	"color_scheme": {}, "color_analysis": {}, "color_analysis_skipped": {},
	"design_style": {}, "style_analysis": {}, "style_analysis_skipped": {},
	"preferred_stores": {},
	"inspiration_images": {}, "inspiration_images_skipped": {}, "inspiration_recommendations": {},
	"marker_recommendations": {}, "product_recommendations": {}, "selected_product_recommendations": {},
	"product_search_query": {}, "product_search_results": {}, "selected_products": {},
	"keep_original_colors": {}, "keep_original_style": {}, "custom_generation_prompt": {},
	"generated_image_base64": {}, "generation_prompt": {},
	"inspiration_generated_image_base64": {}, "inspiration_generation_prompt": {},
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

// MarshalJSON flattens the sub-flow variants back into the context keys of
// record (color_analysis / color_analysis_skipped and so on).
func (c Context) MarshalJSON() ([]byte, error) {
	w := contextWire{
		BaseImage:                       strPtr(c.BaseImage),
		IsBaseImageEmptyRoom:            c.IsBaseImageEmptyRoom,
		SpaceType:                       strPtr(c.SpaceType),
		ImprovementMarkers:              nonNil(c.ImprovementMarkers),
		LabelledBaseImage:               strPtr(c.LabelledBaseImage),
		ColorScheme:                     c.ColorScheme,
		ColorAnalysisSkipped:            c.Color.IsSkipped(),
		DesignStyle:                     c.DesignStyle,
		StyleAnalysisSkipped:            c.Style.IsSkipped(),
		PreferredStores:                 nonNil(c.PreferredStores),
		InspirationImages:               nonNil(c.InspirationImages),
		InspirationImagesSkipped:        c.InspirationImagesSkipped,
		InspirationRecommendations:      nonNil(c.InspirationRecommendations),
		MarkerRecommendations:           nonNil(c.MarkerRecommendations),
		ProductRecommendations:          nonNil(c.ProductRecommendations),
		SelectedProductRecommendations:  nonNil(c.SelectedProductRecommendations),
		ProductSearchQuery:              c.ProductSearchQuery,
		ProductSearchResults:            nonNil(c.ProductSearchResults),
		SelectedProducts:                nonNil(c.SelectedProducts),
		KeepOriginalColors:              c.KeepOriginalColors,
		KeepOriginalStyle:               c.KeepOriginalStyle,
		CustomGenerationPrompt:          c.CustomGenerationPrompt,
		GeneratedImageBase64:            strPtr(c.GeneratedImageBase64),
		GenerationPrompt:                strPtr(c.GenerationPrompt),
		InspirationGeneratedImageBase64: c.InspirationGeneratedImageBase64,
		InspirationGenerationPrompt:     c.InspirationGenerationPrompt,
	}
	if c.Color.State() == Applied {
		w.ColorAnalysis = c.Color.Analysis()
	}
	if c.Style.State() == Applied {
		w.StyleAnalysis = c.Style.Analysis()
	}

	known, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(c.Extra)+len(knownContextKeys))
	for k, v := range c.Extra {
		if _, ok := knownContextKeys[k]; ok {
			continue
		}
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON validates the known keys and keeps unknown ones in Extra. A
// document carrying both an analysis and a skip flag resolves to Applied.
func (c *Context) UnmarshalJSON(data []byte) error {
	var w contextWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode context: %w", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decode context keys: %w", err)
	}

	out := Context{
		BaseImage:                       strVal(w.BaseImage),
		IsBaseImageEmptyRoom:            w.IsBaseImageEmptyRoom,
		SpaceType:                       strVal(w.SpaceType),
		ImprovementMarkers:              w.ImprovementMarkers,
		LabelledBaseImage:               strVal(w.LabelledBaseImage),
		ColorScheme:                     w.ColorScheme,
		DesignStyle:                     w.DesignStyle,
		PreferredStores:                 w.PreferredStores,
		InspirationImages:               w.InspirationImages,
		InspirationImagesSkipped:        w.InspirationImagesSkipped,
		InspirationRecommendations:      w.InspirationRecommendations,
		MarkerRecommendations:           w.MarkerRecommendations,
		ProductRecommendations:          w.ProductRecommendations,
		SelectedProductRecommendations:  w.SelectedProductRecommendations,
		ProductSearchQuery:              w.ProductSearchQuery,
		ProductSearchResults:            w.ProductSearchResults,
		SelectedProducts:                w.SelectedProducts,
		KeepOriginalColors:              w.KeepOriginalColors,
		KeepOriginalStyle:               w.KeepOriginalStyle,
		CustomGenerationPrompt:          w.CustomGenerationPrompt,
		GeneratedImageBase64:            strVal(w.GeneratedImageBase64),
		GenerationPrompt:                strVal(w.GenerationPrompt),
		InspirationGeneratedImageBase64: w.InspirationGeneratedImageBase64,
		InspirationGenerationPrompt:     w.InspirationGenerationPrompt,
	}
	out.Color = flowFromWire(w.ColorAnalysis, w.ColorAnalysisSkipped)
	out.Style = flowFromWire(w.StyleAnalysis, w.StyleAnalysisSkipped)

	for k, v := range all {
		if _, ok := knownContextKeys[k]; ok {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = v
	}

	*c = out
	return nil
}

func flowFromWire(a Analysis, skipped bool) SubFlow {
	switch {
	case a != nil:
		return AppliedFlow(a)
	case skipped:
		return SkippedFlow()
	default:
		return SubFlow{}
	}
}

// Clone deep-copies the slices and maps owned by the context. Analyses and
// scheme snapshots are replaced wholesale on update, never mutated, so they are
// copied one level deep.
func (c Context) Clone() Context {
	cp := c
	cp.ImprovementMarkers = cloneSlice(c.ImprovementMarkers)
	cp.PreferredStores = cloneSlice(c.PreferredStores)
	cp.InspirationImages = cloneSlice(c.InspirationImages)
	cp.InspirationRecommendations = cloneSlice(c.InspirationRecommendations)
	cp.MarkerRecommendations = cloneSlice(c.MarkerRecommendations)
	cp.ProductRecommendations = cloneSlice(c.ProductRecommendations)
	cp.SelectedProductRecommendations = cloneSlice(c.SelectedProductRecommendations)
	cp.ProductSearchResults = cloneSlice(c.ProductSearchResults)
	cp.SelectedProducts = cloneSlice(c.SelectedProducts)
	cp.ColorScheme = cloneMap(c.ColorScheme)
	cp.DesignStyle = cloneMap(c.DesignStyle)
	if c.Color.analysis != nil {
		cp.Color.analysis = Analysis(cloneMap(map[string]any(c.Color.analysis)))
	}
	if c.Style.analysis != nil {
		cp.Style.analysis = Analysis(cloneMap(map[string]any(c.Style.analysis)))
	}
	if c.Extra != nil {
		cp.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			cp.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return cp
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
