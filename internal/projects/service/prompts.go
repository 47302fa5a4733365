package service

import (
	"fmt"
	"strings"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

const roomEmptinessPrompt = `Look at this room photo and decide whether the room is empty.
A room is empty when it has no furniture apart from fixed fittings (built-in cabinets, radiators, light fixtures).
Return is_empty, a confidence between 0 and 1, and one sentence of reasoning.`

func colorAnalysisPrompt(spaceType, palette string, colors []string, letAIDecide bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this %s image and provide color application guidance.\n\n", spaceType)
	if letAIDecide {
		b.WriteString("The user wants you to choose the best colors for this space. Analyze the room and select an optimal palette.\n")
	} else {
		fmt.Fprintf(&b, "The user selected the %q palette with colors: %s.\n", palette, strings.Join(colors, ", "))
		b.WriteString("Use these colors as a starting point and adapt them where they do not suit the room.\n")
	}
	b.WriteString(`
Apply the 60-30-10 rule: primary colors for dominant surfaces, secondary colors to complement, accents for interest.
Include HEX codes. Describe how natural and artificial light in this room affects the palette.
Keep walls, doors, flooring and ceiling structurally unchanged.`)
	return b.String()
}

func styleAnalysisPrompt(spaceType, style string, colors []string, letAIDecide bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this %s image and provide style application guidance.\n\n", spaceType)
	if letAIDecide {
		b.WriteString("Recommend the best interior design style for this room given its architecture, lighting and existing elements.\n")
	} else {
		fmt.Fprintf(&b, "The user selected the %q style. Explain how to transform this room into that style.\n", style)
	}
	if len(colors) > 0 {
		fmt.Fprintf(&b, "Coordinate with the selected color palette: %s\n", strings.Join(colors, ", "))
	}
	b.WriteString(`
Name the materials, the furniture characteristics and the key changes for THIS room.
Keep all structural aspects constant; only change furniture, decor and accessories.`)
	return b.String()
}

// pct renders a normalized coordinate as a percentage of the image size.
func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func writeMarkers(b *strings.Builder, markers []domain.Marker) {
	for i, m := range markers {
		fmt.Fprintf(b, "Marker %d (%s) at %s from left, %s from top: %s\n",
			i+1, m.Color, pct(m.Position.X), pct(m.Position.Y), m.Description)
	}
}

func writeColor(b *strings.Builder, c *domain.Context) {
	a := c.Color.Analysis()
	if a == nil {
		return
	}
	b.WriteString("\nColor guidance:\n")
	if v := analysisString(a, "palette_name"); v != "" {
		fmt.Fprintf(b, "- Palette: %s\n", v)
	}
	if v := analysisList(a, "primary_colors"); len(v) > 0 {
		fmt.Fprintf(b, "- Primary colors: %s\n", strings.Join(v, ", "))
	}
	if v := analysisString(a, "lighting_notes"); v != "" {
		fmt.Fprintf(b, "- Lighting notes: %s\n", v)
	}
}

func writeStyle(b *strings.Builder, c *domain.Context) {
	a := c.Style.Analysis()
	if a == nil {
		return
	}
	b.WriteString("\nStyle guidance:\n")
	if v := analysisString(a, "style_name"); v != "" {
		fmt.Fprintf(b, "- Style: %s\n", v)
	}
	if v := analysisList(a, "materials"); len(v) > 0 {
		fmt.Fprintf(b, "- Materials: %s\n", strings.Join(v, ", "))
	}
	if v := analysisString(a, "furniture_characteristics"); v != "" {
		fmt.Fprintf(b, "- Furniture: %s\n", v)
	}
}

func markerPrompt(c *domain.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an interior designer reviewing a photo of a %s.\n", c.SpaceType)
	if len(c.ImprovementMarkers) == 0 {
		b.WriteString("The room is empty. Recommend how to furnish it from scratch.\n")
	} else {
		b.WriteString("The user placed numbered, colored markers on the image to flag areas to improve. These are high-priority requests:\n\n")
		writeMarkers(&b, c.ImprovementMarkers)
	}
	writeColor(&b, c)
	writeStyle(&b, c)
	if len(c.PreferredStores) > 0 {
		fmt.Fprintf(&b, "\nPreferred stores: %s\n", strings.Join(c.PreferredStores, ", "))
	}
	fmt.Fprintf(&b, "\nWrite exactly %d recommendations. Each is 1-2 sentences and fixes a specific marked area.", domain.RecommendationCount)
	if len(c.ImprovementMarkers) > 0 {
		b.WriteString(" Across the list, cover every marker's request at least once and mention what it asks for.")
	}
	return b.String()
}

func inspirationPrompt(c *domain.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The first image is the user's %s. The remaining %d images are inspiration the user wants to move toward.\n",
		c.SpaceType, len(c.InspirationImages))
	writeColor(&b, c)
	writeStyle(&b, c)
	if len(c.ImprovementMarkers) > 0 {
		b.WriteString("\nThe user also flagged these areas. Treat them as constraints, not the focus:\n")
		writeMarkers(&b, c.ImprovementMarkers)
	}
	fmt.Fprintf(&b, "\nWrite exactly %d recommendations. Each is 1-2 sentences describing one change that brings the room toward the inspiration images' aesthetic.", domain.RecommendationCount)
	return b.String()
}

func productPrompt(c *domain.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Space type: %s\n", c.SpaceType)
	if c.IsBaseImageEmptyRoom {
		b.WriteString("Room Status: Empty room\n")
	} else {
		b.WriteString("Room Status: Furnished room\n")
	}
	if len(c.ImprovementMarkers) > 0 {
		b.WriteString("\nImprovement markers:\n")
		writeMarkers(&b, c.ImprovementMarkers)
	}
	writeColor(&b, c)
	writeStyle(&b, c)
	// The reconcile block already carries the inspiration list as its visual target.
	if block := reconcileBlock(c); block != "" {
		b.WriteString("\n")
		b.WriteString(block)
	} else if len(c.InspirationRecommendations) > 0 {
		b.WriteString("\nInspiration recommendations:\n")
		for _, r := range c.InspirationRecommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	fmt.Fprintf(&b, "\nWrite exactly %d product actions. Each is 2-4 words, an imperative naming one product, for example \"replace sofa\" or \"add floor lamp\".", domain.RecommendationCount)
	return b.String()
}

// reconcileBlock merges functional fixes and aesthetic direction. It is only
// produced when both are present.
func reconcileBlock(c *domain.Context) string {
	if len(c.ImprovementMarkers) == 0 || len(c.InspirationRecommendations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("High Priority User Requests:\n")
	for _, m := range c.ImprovementMarkers {
		fmt.Fprintf(&b, "- %s\n", m.Description)
	}
	b.WriteString("\nVisual Target:\n")
	for _, r := range c.InspirationRecommendations {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString("\nReconcile the requests with the visual target: every product action must fix a requested area in the target aesthetic. Do not treat them as two competing lists.\n")
	return b.String()
}

// topUpPrompt asks for the missing items without repeating what we have.
func topUpPrompt(base string, have []string, need int) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nYou already proposed:\n")
	for _, h := range have {
		fmt.Fprintf(&b, "- %s\n", h)
	}
	fmt.Fprintf(&b, "\nProduce %d more distinct items that do not repeat any of the above. Return only the new items.", need)
	return b.String()
}

func searchQuery(c *domain.Context) string {
	parts := []string{c.SelectedProductRecommendations[0]}
	if v := analysisString(c.Style.Analysis(), "style_name"); v != "" {
		parts = append(parts, v)
	}
	if c.SpaceType != "" {
		parts = append(parts, c.SpaceType)
	}
	if len(c.PreferredStores) > 0 {
		parts = append(parts, c.PreferredStores[0])
	}
	return strings.Join(parts, " ") + " -decor -ideas"
}

func designContext(c *domain.Context) string {
	var b strings.Builder
	if len(c.InspirationRecommendations) > 0 {
		b.WriteString("INSPIRATION GOALS:\n")
		for _, r := range firstN(c.InspirationRecommendations, 5) {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if len(c.ImprovementMarkers) > 0 {
		b.WriteString("AREAS TO IMPROVE:\n")
		for _, m := range c.ImprovementMarkers {
			fmt.Fprintf(&b, "- %s\n", m.Description)
		}
	}
	writeColor(&b, c)
	writeStyle(&b, c)
	if b.Len() == 0 {
		return "General modern upgrade\n"
	}
	return b.String()
}

const photorealism = `Keep walls, ceiling height, windows, doors and flooring exactly as they are, and keep the original camera angle and lens.
Light must come only from the existing windows and lamps. Materials need real texture: wood grain, fabric weave, honest reflections.
The result must look like a real photograph taken by the same camera in the same room, not a 3D render.`

func visualizationPrompt(c *domain.Context, product domain.SelectedProduct) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Edit the first image, a photo of a %s, so it contains the product shown in the second image: %s.\n\n", c.SpaceType, product.Title)
	b.WriteString(designContext(c))
	if c.KeepOriginalColors {
		b.WriteString("\nKeep the room's original colors.\n")
	} else if name, _ := c.ColorScheme["palette_name"].(string); name != "" {
		fmt.Fprintf(&b, "\nUse the %s palette: %s.\n", name, strings.Join(schemeColors(c.ColorScheme), ", "))
	}
	if c.KeepOriginalStyle {
		b.WriteString("Keep the room's original style.\n")
	} else if name, _ := c.DesignStyle["style_name"].(string); name != "" {
		fmt.Fprintf(&b, "Style the room as %s.\n", name)
	}
	if c.CustomGenerationPrompt != "" {
		fmt.Fprintf(&b, "\nUser instructions: %s\n", c.CustomGenerationPrompt)
	}
	b.WriteString("\n")
	b.WriteString(photorealism)
	return b.String()
}

func redesignPrompt(c *domain.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Redesign the first image, a photo of a %s, by replacing furniture and decor.", c.SpaceType)
	if len(c.InspirationImages) > 0 {
		b.WriteString(" The other images are the inspiration to follow.")
	}
	b.WriteString("\n\n")
	b.WriteString(designContext(c))

	source := c.SelectedProductRecommendations
	if len(source) == 0 {
		source = c.ProductRecommendations
	}
	b.WriteString("\nFURNITURE REPLACEMENTS:\n")
	if len(source) == 0 {
		b.WriteString("None specified\n")
	}
	for _, r := range firstN(source, 5) {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString("\nRemove loose clutter and visible cables.\n\n")
	b.WriteString(photorealism)
	return b.String()
}

func firstN(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func analysisString(a domain.Analysis, key string) string {
	s, _ := a[key].(string)
	return strings.TrimSpace(s)
}

// analysisList reads a list of strings, or of swatches with a hex field.
func analysisList(a domain.Analysis, key string) []string {
	if ss, ok := a[key].([]string); ok {
		return ss
	}
	raw, _ := a[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case map[string]any:
			if hex, _ := t["hex"].(string); hex != "" {
				out = append(out, hex)
			}
		}
	}
	return out
}
