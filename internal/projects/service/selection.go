package service

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// MaxSearchResults bounds the stored product search results.
const MaxSearchResults = 8

// SelectRecommendation toggles one recommendation in the selection. Status
// advances only while the selection is non-empty and never moves back.
func (s *Service) SelectRecommendation(ctx context.Context, id, rec string) (*domain.Project, error) {
	rec = strings.TrimSpace(rec)
	if rec == "" {
		return nil, domain.InvalidInput("recommendation is required")
	}
	return s.mutate(ctx, id, domain.ActionSelectRecommendation, func(ctx context.Context, p *domain.Project) (bool, error) {
		c := &p.Context
		// Deselecting is always allowed, even for a recommendation that has
		// since been regenerated away.
		if !domain.ContainsFold(c.SelectedProductRecommendations, rec) {
			canonical, ok := findFold(c.ProductRecommendations, rec)
			if !ok {
				canonical, ok = findFold(c.InspirationRecommendations, rec)
			}
			if !ok {
				return false, domain.InvalidInput("%q is not a current recommendation", rec)
			}
			rec = canonical
		}
		c.SelectedProductRecommendations = domain.ToggleSelection(c.SelectedProductRecommendations, rec)
		return len(c.SelectedProductRecommendations) > 0, nil
	})
}

func findFold(list []string, s string) (string, bool) {
	for _, it := range list {
		if strings.EqualFold(strings.TrimSpace(it), s) {
			return it, true
		}
	}
	return "", false
}

// SearchProducts searches for the first selected recommendation and stores the
// filtered, ranked results. Refreshing does not move status.
func (s *Service) SearchProducts(ctx context.Context, id string) (*domain.Project, error) {
	return s.mutate(ctx, id, domain.ActionSearchProducts, func(ctx context.Context, p *domain.Project) (bool, error) {
		if s.caps.Products == nil {
			return false, capabilities.Unconfigured(capabilities.PortProducts)
		}
		query := searchQuery(&p.Context)
		found, err := s.caps.Products.Search(ctx, query)
		if err != nil {
			return false, err
		}
		results := filterProducts(found, targetType(p.Context.SelectedProductRecommendations[0]))
		s.logger(ctx).Info("product search completed",
			"project_id", id, "query", query, "found", len(found), "kept", len(results))

		p.Context.ProductSearchQuery = query
		p.Context.ProductSearchResults = results
		return true, nil
	})
}

// filterProducts de-duplicates by normalized URL, drops non-product pages and
// titles outside the target type, and keeps at most MaxSearchResults.
func filterProducts(in []domain.Product, target string) []domain.Product {
	out := make([]domain.Product, 0, min(len(in), MaxSearchResults))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		key := normalizeURL(p.URL)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if !p.IsProductPage || !typeGuard(p.Title, target) {
			continue
		}
		out = append(out, p)
		if len(out) == MaxSearchResults {
			break
		}
	}
	return out
}

// normalizeURL drops query and fragment and lower-cases the rest.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		base, _, _ := strings.Cut(raw, "?")
		return strings.ToLower(base)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return strings.ToLower(u.String())
}

var decorNegatives = []string{"decor", "how to", "ideas", "tutorial", "guide", "inspiration", "poster", "print"}

var productFamilies = []struct {
	family   string
	keywords []string
}{
	{"shelf", []string{"shelf", "shelving", "bookcase", "wall shelf"}},
	{"console table", []string{"console table", "sofa table", "entry table"}},
	{"table", []string{"table", "dining table", "coffee table", "side table", "end table", "desk"}},
	{"bench", []string{"bench", "ottoman", "entry bench"}},
	{"chair", []string{"chair", "armchair", "accent chair", "dining chair", "desk chair"}},
	{"sofa", []string{"sofa", "couch", "sectional", "loveseat"}},
	{"bed", []string{"bed", "platform bed", "bed frame", "headboard"}},
	{"lamp", []string{"lamp", "floor lamp", "table lamp", "sconce"}},
	{"storage", []string{"cabinet", "dresser", "sideboard", "buffet", "storage"}},
	{"rug", []string{"rug", "runner"}},
}

// targetType is the product noun of an imperative recommendation: "add floor
// lamp" targets "lamp".
func targetType(rec string) string {
	fields := strings.Fields(strings.ToLower(rec))
	if len(fields) == 0 {
		return ""
	}
	t := fields[len(fields)-1]
	if len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") {
		t = strings.TrimSuffix(t, "s")
	}
	return t
}

// typeGuard accepts titles in the target's product family and rejects decor
// and how-to content.
func typeGuard(title, target string) bool {
	t := strings.ToLower(title)
	for _, neg := range decorNegatives {
		if strings.Contains(t, neg) {
			return false
		}
	}
	if target == "" {
		return true
	}
	keywords := familyKeywords(target)
	if keywords == nil {
		return strings.Contains(t, target)
	}
	for _, k := range keywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// familyKeywords prefers an exact family or keyword match so "table" does not
// resolve to "console table".
func familyKeywords(target string) []string {
	for _, f := range productFamilies {
		if f.family == target || slices.Contains(f.keywords, target) {
			return f.keywords
		}
	}
	for _, f := range productFamilies {
		if strings.Contains(f.family, target) || strings.Contains(strings.Join(f.keywords, " "), target) {
			return f.keywords
		}
	}
	return nil
}

type SelectProductRequest struct {
	URL                string         `json:"product_url"`
	Title              string         `json:"product_title"`
	ImageURL           string         `json:"product_image_url"`
	GenerationPrompt   string         `json:"generation_prompt"`
	ColorScheme        map[string]any `json:"color_scheme"`
	DesignStyle        map[string]any `json:"design_style"`
	KeepOriginalColors bool           `json:"keep_original_colors"`
	KeepOriginalStyle  bool           `json:"keep_original_style"`
}

// SelectProduct records a product for generation together with its styling
// constraints. Selecting the same URL again updates that entry.
func (s *Service) SelectProduct(ctx context.Context, id string, req SelectProductRequest) (*domain.Project, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, domain.InvalidInput("product_url is required")
	}
	return s.mutate(ctx, id, domain.ActionSelectProduct, func(ctx context.Context, p *domain.Project) (bool, error) {
		c := &p.Context
		sel := domain.SelectedProduct{
			URL:        req.URL,
			Title:      strings.TrimSpace(req.Title),
			ImageURL:   strings.TrimSpace(req.ImageURL),
			SelectedAt: s.now().UTC(),
		}
		// The server fetches the image at generation time, so only image URLs
		// the search provider returned are accepted.
		if sel.ImageURL != "" && !knownImageURL(c.ProductSearchResults, sel.ImageURL) {
			return false, domain.InvalidInput("product_image_url must come from the product search results")
		}
		// Fill gaps from the search result the client picked.
		key := normalizeURL(req.URL)
		for _, r := range c.ProductSearchResults {
			if normalizeURL(r.URL) != key {
				continue
			}
			if sel.Title == "" {
				sel.Title = r.Title
			}
			if sel.ImageURL == "" {
				sel.ImageURL = r.ImageURL
			}
			break
		}

		replaced := false
		for i := range c.SelectedProducts {
			if c.SelectedProducts[i].URL == sel.URL {
				c.SelectedProducts[i] = sel
				replaced = true
				break
			}
		}
		if !replaced {
			c.SelectedProducts = append(c.SelectedProducts, sel)
		}

		c.CustomGenerationPrompt = strings.TrimSpace(req.GenerationPrompt)
		c.KeepOriginalColors = req.KeepOriginalColors
		c.KeepOriginalStyle = req.KeepOriginalStyle
		if req.ColorScheme != nil && !req.KeepOriginalColors {
			c.ColorScheme = cloneAny(req.ColorScheme)
		}
		if req.DesignStyle != nil && !req.KeepOriginalStyle {
			c.DesignStyle = cloneAny(req.DesignStyle)
		}
		return true, nil
	})
}

func knownImageURL(results []domain.Product, url string) bool {
	for _, r := range results {
		if r.ImageURL != "" && r.ImageURL == url {
			return true
		}
	}
	return false
}

// latestSelection returns the most recently selected product.
func latestSelection(products []domain.SelectedProduct) domain.SelectedProduct {
	var (
		out  domain.SelectedProduct
		when time.Time
	)
	for _, p := range products {
		if !p.SelectedAt.Before(when) {
			out, when = p, p.SelectedAt
		}
	}
	return out
}

func cloneAny(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
