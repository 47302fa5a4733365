package domain

import "strings"

// RecommendationCount is the exact size of every stored recommendation list.
const RecommendationCount = 6

// Path names a recommendation generation flow.
type Path string

const (
	PathMarker      Path = "marker"
	PathInspiration Path = "inspiration"
	PathProduct     Path = "product"
)

// NormalizeRecommendations trims items and drops empties and case-insensitive
// duplicates, keeping first occurrences in order.
func NormalizeRecommendations(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		t := strings.TrimSpace(it)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// MergeRecommendations appends extra to base and normalizes the result.
func MergeRecommendations(base, extra []string) []string {
	all := make([]string, 0, len(base)+len(extra))
	all = append(all, base...)
	all = append(all, extra...)
	return NormalizeRecommendations(all)
}

// ContainsFold reports whether list has s, comparing trimmed and case-folded.
func ContainsFold(list []string, s string) bool {
	return indexFold(list, s) >= 0
}

func indexFold(list []string, s string) int {
	s = strings.TrimSpace(s)
	for i, it := range list {
		if strings.EqualFold(strings.TrimSpace(it), s) {
			return i
		}
	}
	return -1
}

// ToggleSelection removes rec if present, otherwise appends it. Order of first
// selection is preserved.
func ToggleSelection(selected []string, rec string) []string {
	rec = strings.TrimSpace(rec)
	if i := indexFold(selected, rec); i >= 0 {
		out := make([]string, 0, len(selected)-1)
		out = append(out, selected[:i]...)
		return append(out, selected[i+1:]...)
	}
	out := make([]string, 0, len(selected)+1)
	out = append(out, selected...)
	return append(out, rec)
}

// StaleSelections returns selected recommendations that no longer appear in
// either current recommendation list.
func StaleSelections(c *Context) []string {
	var stale []string
	for _, s := range c.SelectedProductRecommendations {
		if !ContainsFold(c.ProductRecommendations, s) && !ContainsFold(c.InspirationRecommendations, s) {
			stale = append(stale, s)
		}
	}
	return stale
}
