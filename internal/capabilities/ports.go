package capabilities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// Port names used in errors, logs and metrics.
const (
	PortText     = "text"
	PortVision   = "vision"
	PortImage    = "image"
	PortProducts = "products"
)

// Schema declares the expected shape of a structured completion.
type Schema struct {
	Name       string
	Definition map[string]any
}

// StructuredResult is the raw JSON object a reasoner returned.
type StructuredResult struct {
	Raw json.RawMessage
}

// Decode unmarshals the result into v. A decode failure is a malformed
// response from the provider.
func (r StructuredResult) Decode(v any) error {
	if len(r.Raw) == 0 {
		return &CapabilityError{Kind: KindMalformedResponse, Message: "empty structured result"}
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return &CapabilityError{Kind: KindMalformedResponse, Message: fmt.Sprintf("decode structured result: %v", err), Err: err}
	}
	return nil
}

// TextReasoner produces structured output from a text prompt.
type TextReasoner interface {
	Complete(ctx context.Context, prompt string, schema Schema) (StructuredResult, error)
}

// VisionAnalyzer produces structured output from an image and a prompt. extra
// images are additional references placed after the primary one.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, image []byte, prompt string, schema Schema, extra ...[]byte) (StructuredResult, error)
}

// ImageGenerator renders an image from a prompt and reference images.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, refs [][]byte) ([]byte, error)
}

// ProductSearcher returns ranked products for a query.
type ProductSearcher interface {
	Search(ctx context.Context, query string) ([]domain.Product, error)
}

// Set bundles the four ports the workflow depends on.
type Set struct {
	Text     TextReasoner
	Vision   VisionAnalyzer
	Images   ImageGenerator
	Products ProductSearcher
}

// RecommendationSchema is the list-of-strings contract shared by the three
// generation paths.
func RecommendationSchema(name string) Schema {
	return Schema{
		Name: name,
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"recommendations": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"reasoning": map[string]any{"type": "string"},
			},
			"required":             []string{"recommendations", "reasoning"},
			"additionalProperties": false,
		},
	}
}

// RoomEmptinessSchema is the vision contract for the empty-room check.
var RoomEmptinessSchema = Schema{
	Name: "room_emptiness_check",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_empty":   map[string]any{"type": "boolean"},
			"confidence": map[string]any{"type": "number"},
			"reasoning":  map[string]any{"type": "string"},
		},
		"required":             []string{"is_empty", "confidence", "reasoning"},
		"additionalProperties": false,
	},
}

// ColorAnalysisSchema describes palette guidance returned for a room.
var ColorAnalysisSchema = Schema{
	Name: "color_analysis",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"palette_name":       map[string]any{"type": "string"},
			"primary_colors":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"accent_colors":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"lighting_notes":     map[string]any{"type": "string"},
			"application_advice": map[string]any{"type": "string"},
		},
		"required":             []string{"palette_name", "primary_colors", "accent_colors", "lighting_notes", "application_advice"},
		"additionalProperties": false,
	},
}

// StyleAnalysisSchema describes style guidance returned for a room.
var StyleAnalysisSchema = Schema{
	Name: "style_analysis",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"style_name":                map[string]any{"type": "string"},
			"materials":                 map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"furniture_characteristics": map[string]any{"type": "string"},
			"key_changes":               map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"style_name", "materials", "furniture_characteristics", "key_changes"},
		"additionalProperties": false,
	},
}
