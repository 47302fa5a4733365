package domain

// Gates are the readiness predicates derived from a project snapshot.
type Gates struct {
	ColorResolved       bool `json:"color_resolved"`
	StyleResolved       bool `json:"style_resolved"`
	StoresResolved      bool `json:"stores_resolved"`
	InspirationResolved bool `json:"inspiration_resolved"`
	MarkersResolved     bool `json:"markers_resolved"`

	MarkerPathUnlocked      bool `json:"marker_path_unlocked"`
	InspirationPathUnlocked bool `json:"inspiration_path_unlocked"`
	ProductPathUnlocked     bool `json:"product_path_unlocked"`
}

// EvaluateGates is pure; it reads the snapshot and never caches.
func EvaluateGates(p *Project) Gates {
	if p == nil {
		return Gates{}
	}
	c := &p.Context
	g := Gates{
		ColorResolved:       c.Color.Resolved(),
		StyleResolved:       c.Style.Resolved(),
		StoresResolved:      len(c.PreferredStores) > 0,
		InspirationResolved: len(c.InspirationRecommendations) > 0 || c.InspirationImagesSkipped,
	}
	// An empty room needs no spatial fixes.
	g.MarkersResolved = p.Status.Reached(StatusImprovementMarkersSaved) ||
		(c.IsBaseImageEmptyRoom && p.Status.Reached(StatusSpaceTypeSelected))
	g.MarkerPathUnlocked = g.ColorResolved && g.StyleResolved && g.StoresResolved
	g.InspirationPathUnlocked = g.ColorResolved && g.StyleResolved && len(c.InspirationImages) > 0
	g.ProductPathUnlocked = g.InspirationResolved && g.ColorResolved && g.StyleResolved
	return g
}

// MissingForMarkerPath lists the unresolved sub-flows blocking the marker path.
func (g Gates) MissingForMarkerPath() []string {
	var out []string
	if !g.ColorResolved {
		out = append(out, "color_analysis")
	}
	if !g.StyleResolved {
		out = append(out, "style_analysis")
	}
	if !g.StoresResolved {
		out = append(out, "preferred_stores")
	}
	return out
}

func (g Gates) missingForInspirationPath(c *Context) []string {
	var out []string
	if !g.ColorResolved {
		out = append(out, "color_analysis")
	}
	if !g.StyleResolved {
		out = append(out, "style_analysis")
	}
	if len(c.InspirationImages) == 0 {
		out = append(out, "inspiration_images")
	}
	return out
}

func (g Gates) missingForProductPath() []string {
	var out []string
	if !g.InspirationResolved {
		out = append(out, "inspiration_recommendations")
	}
	if !g.ColorResolved {
		out = append(out, "color_analysis")
	}
	if !g.StyleResolved {
		out = append(out, "style_analysis")
	}
	return out
}
