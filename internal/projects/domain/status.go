package domain

// Status is the workflow step a project is in.
type Status string

const (
	StatusNew                             Status = "NEW"
	StatusBaseImageUploaded               Status = "BASE_IMAGE_UPLOADED"
	StatusSpaceTypeSelected               Status = "SPACE_TYPE_SELECTED"
	StatusImprovementMarkersSaved         Status = "IMPROVEMENT_MARKERS_SAVED"
	StatusMarkerRecommendationsReady      Status = "MARKER_RECOMMENDATIONS_READY"
	StatusInspirationImagesUploaded       Status = "INSPIRATION_IMAGES_UPLOADED"
	StatusInspirationRecommendationsReady Status = "INSPIRATION_RECOMMENDATIONS_READY"
	StatusProductRecommendationsReady     Status = "PRODUCT_RECOMMENDATIONS_READY"
	StatusProductRecommendationSelected   Status = "PRODUCT_RECOMMENDATION_SELECTED"
	StatusProductSearchComplete           Status = "PRODUCT_SEARCH_COMPLETE"
	StatusProductSelected                 Status = "PRODUCT_SELECTED"
	StatusImageGenerated                  Status = "IMAGE_GENERATED"

	// StatusInspirationRedesignComplete is a side terminal reachable only from
	// StatusProductRecommendationSelected.
	StatusInspirationRedesignComplete Status = "INSPIRATION_REDESIGN_COMPLETE"
)

var canonicalOrder = []Status{
	StatusNew,
	StatusBaseImageUploaded,
	StatusSpaceTypeSelected,
	StatusImprovementMarkersSaved,
	StatusMarkerRecommendationsReady,
	StatusInspirationImagesUploaded,
	StatusInspirationRecommendationsReady,
	StatusProductRecommendationsReady,
	StatusProductRecommendationSelected,
	StatusProductSearchComplete,
	StatusProductSelected,
	StatusImageGenerated,
}

// CanonicalOrder returns the main forward path, without the side terminal.
func CanonicalOrder() []Status {
	out := make([]Status, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

func (s Status) index() int {
	for i, st := range canonicalOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusInspirationRedesignComplete || s.index() >= 0
}

// IsSideTerminal reports whether s is the inspiration redesign terminal.
func (s Status) IsSideTerminal() bool {
	return s == StatusInspirationRedesignComplete
}

// Reached reports whether s is at or past target. The side terminal counts as
// past everything up to PRODUCT_RECOMMENDATION_SELECTED and nothing after it.
func (s Status) Reached(target Status) bool {
	branch := StatusProductRecommendationSelected.index()
	switch {
	case target.IsSideTerminal():
		return s.IsSideTerminal()
	case s.IsSideTerminal():
		ti := target.index()
		return ti >= 0 && ti <= branch
	}
	si, ti := s.index(), target.index()
	if si < 0 || ti < 0 {
		return false
	}
	return si >= ti
}

// Precedes reports whether moving from s to next is a strictly forward move.
func (s Status) Precedes(next Status) bool {
	return s != next && next.Reached(s)
}

func (s Status) String() string { return string(s) }
