package domain

import (
	"strings"

	"github.com/google/uuid"
)

// MaxMarkers bounds improvement markers per project.
const MaxMarkers = 5

// MarkerColors is indexed by insertion order mod len.
var MarkerColors = [...]string{"red", "green", "blue", "purple", "orange"}

// MarkerColor returns the color assigned to the marker at index i.
func MarkerColor(i int) string {
	return MarkerColors[i%len(MarkerColors)]
}

// MarkerInput is a client-supplied marker before finalization.
type MarkerInput struct {
	ID          string   `json:"id"`
	Position    Position `json:"position"`
	Description string   `json:"description"`
}

// NormalizeMarkers finalizes client markers: descriptions are trimmed and
// required, positions must lie in [0,1], ids are generated when absent, and
// colors follow insertion order.
func NormalizeMarkers(in []MarkerInput) ([]Marker, error) {
	if len(in) > MaxMarkers {
		return nil, InvalidInput("at most %d improvement markers allowed, got %d", MaxMarkers, len(in))
	}
	out := make([]Marker, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, m := range in {
		desc := strings.TrimSpace(m.Description)
		if desc == "" {
			return nil, InvalidInput("marker %d has an empty description", i+1)
		}
		if !inUnit(m.Position.X) || !inUnit(m.Position.Y) {
			return nil, InvalidInput("marker %d position (%g, %g) outside [0,1]", i+1, m.Position.X, m.Position.Y)
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			id = uuid.New().String()
		}
		if _, dup := seen[id]; dup {
			return nil, InvalidInput("duplicate marker id %q", id)
		}
		seen[id] = struct{}{}
		out = append(out, Marker{
			ID:          id,
			Position:    m.Position,
			Description: desc,
			Color:       MarkerColor(i),
		})
	}
	return out, nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
