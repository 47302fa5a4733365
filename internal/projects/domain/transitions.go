package domain

// Action is a client-triggered workflow step.
type Action string

const (
	ActionUploadBaseImage         Action = "upload_base_image"
	ActionSelectSpaceType         Action = "select_space_type"
	ActionSaveImprovementMarkers  Action = "save_improvement_markers"
	ActionApplyColorScheme        Action = "apply_color_scheme"
	ActionSkipColorAnalysis       Action = "skip_color_analysis"
	ActionApplyStyle              Action = "apply_style"
	ActionSkipStyleAnalysis       Action = "skip_style_analysis"
	ActionUpdatePreferredStores   Action = "update_preferred_stores"
	ActionGenerateMarkerRecs      Action = "generate_marker_recommendations"
	ActionUploadInspirationImages Action = "upload_inspiration_images"
	ActionSkipInspirationImages   Action = "skip_inspiration_images"
	ActionGenerateInspirationRecs Action = "generate_inspiration_recommendations"
	ActionGenerateProductRecs     Action = "generate_product_recommendations"
	ActionSelectRecommendation    Action = "select_product_recommendation"
	ActionSearchProducts          Action = "search_products"
	ActionSelectProduct           Action = "select_product"
	ActionGenerateImage           Action = "generate_image"
	ActionInspirationRedesign     Action = "inspiration_redesign"
)

type rule struct {
	// from reports whether the action is defined in the project's status.
	from func(p *Project) bool
	// target is the status the action moves to on success; empty means the
	// action never changes status.
	target Status
	// check returns the missing context keys or gates.
	check func(p *Project) []string
}

func in(states ...Status) func(p *Project) bool {
	return func(p *Project) bool {
		for _, s := range states {
			if p.Status == s {
				return true
			}
		}
		return false
	}
}

// onMainPathFrom holds once the project has reached s without taking the
// inspiration redesign branch.
func onMainPathFrom(s Status) func(p *Project) bool {
	return func(p *Project) bool {
		return !p.Status.IsSideTerminal() && p.Status.Reached(s)
	}
}

func needsBaseAndSpace(p *Project) []string {
	var out []string
	if p.Context.BaseImage == "" {
		out = append(out, "base_image")
	}
	if p.Context.SpaceType == "" {
		out = append(out, "space_type")
	}
	return out
}

var transitions = map[Action]rule{
	ActionUploadBaseImage: {
		from:   in(StatusNew, StatusBaseImageUploaded),
		target: StatusBaseImageUploaded,
	},
	ActionSelectSpaceType: {
		from:   in(StatusBaseImageUploaded, StatusSpaceTypeSelected),
		target: StatusSpaceTypeSelected,
		check: func(p *Project) []string {
			if p.Context.BaseImage == "" {
				return []string{"base_image"}
			}
			return nil
		},
	},
	ActionSaveImprovementMarkers: {
		from:   in(StatusSpaceTypeSelected, StatusImprovementMarkersSaved),
		target: StatusImprovementMarkersSaved,
		check:  needsBaseAndSpace,
	},
	ActionApplyColorScheme:      styling(),
	ActionSkipColorAnalysis:     styling(),
	ActionApplyStyle:            styling(),
	ActionSkipStyleAnalysis:     styling(),
	ActionUpdatePreferredStores: styling(),
	ActionGenerateMarkerRecs: {
		from: func(p *Project) bool {
			if in(StatusImprovementMarkersSaved, StatusMarkerRecommendationsReady)(p) {
				return true
			}
			return p.Status == StatusSpaceTypeSelected && p.Context.IsBaseImageEmptyRoom
		},
		target: StatusMarkerRecommendationsReady,
		check: func(p *Project) []string {
			return EvaluateGates(p).MissingForMarkerPath()
		},
	},
	ActionUploadInspirationImages: {
		from:   in(StatusMarkerRecommendationsReady, StatusInspirationImagesUploaded, StatusInspirationRecommendationsReady),
		target: StatusInspirationImagesUploaded,
	},
	ActionSkipInspirationImages: {
		from:   in(StatusMarkerRecommendationsReady, StatusInspirationImagesUploaded, StatusInspirationRecommendationsReady),
		target: StatusInspirationRecommendationsReady,
	},
	ActionGenerateInspirationRecs: {
		from:   onMainPathFrom(StatusInspirationImagesUploaded),
		target: StatusInspirationRecommendationsReady,
		check: func(p *Project) []string {
			return EvaluateGates(p).missingForInspirationPath(&p.Context)
		},
	},
	ActionGenerateProductRecs: {
		from:   onMainPathFrom(StatusInspirationRecommendationsReady),
		target: StatusProductRecommendationsReady,
		check: func(p *Project) []string {
			return EvaluateGates(p).missingForProductPath()
		},
	},
	ActionSelectRecommendation: {
		from:   onMainPathFrom(StatusProductRecommendationsReady),
		target: StatusProductRecommendationSelected,
		check: func(p *Project) []string {
			if len(p.Context.ProductRecommendations) == 0 && len(p.Context.InspirationRecommendations) == 0 {
				return []string{"product_recommendations"}
			}
			return nil
		},
	},
	ActionSearchProducts: {
		from:   onMainPathFrom(StatusProductRecommendationSelected),
		target: StatusProductSearchComplete,
		check: func(p *Project) []string {
			if len(p.Context.SelectedProductRecommendations) == 0 {
				return []string{"selected_product_recommendations"}
			}
			return nil
		},
	},
	ActionSelectProduct: {
		from:   onMainPathFrom(StatusProductSearchComplete),
		target: StatusProductSelected,
		check: func(p *Project) []string {
			if len(p.Context.ProductSearchResults) == 0 {
				return []string{"product_search_results"}
			}
			return nil
		},
	},
	ActionGenerateImage: {
		from:   onMainPathFrom(StatusProductSelected),
		target: StatusImageGenerated,
		check: func(p *Project) []string {
			missing := needsBaseAndSpace(p)
			if len(p.Context.SelectedProducts) == 0 {
				missing = append(missing, "selected_products")
			}
			return missing
		},
	},
	ActionInspirationRedesign: {
		from:   in(StatusProductRecommendationSelected, StatusInspirationRedesignComplete),
		target: StatusInspirationRedesignComplete,
		check: func(p *Project) []string {
			missing := needsBaseAndSpace(p)
			if len(p.Context.InspirationRecommendations) == 0 && len(p.Context.ProductRecommendations) == 0 {
				missing = append(missing, "inspiration_recommendations")
			}
			return missing
		},
	},
}

// styling covers the optional sub-flows: legal once the space type is known and
// the project has not branched into the redesign terminal. They never move
// status.
func styling() rule {
	return rule{
		from:  onMainPathFrom(StatusSpaceTypeSelected),
		check: needsBaseAndSpace,
	}
}

// Authorize validates that a is defined for the project's status and that its
// preconditions hold. It does not mutate p.
func Authorize(p *Project, a Action) error {
	r, ok := transitions[a]
	if !ok {
		return InvalidInput("unknown action %q", a)
	}
	if !r.from(p) {
		return preconditionFailed(a, p.Status)
	}
	if r.check != nil {
		if missing := r.check(p); len(missing) > 0 {
			return preconditionFailed(a, p.Status, missing...)
		}
	}
	return nil
}

// Target returns the status a moves to, or "" when it never changes status.
func Target(a Action) Status {
	return transitions[a].target
}

// Advance moves p to the action's target status if that is a forward move, and
// reports whether the status changed. Status never moves backward.
func Advance(p *Project, a Action) bool {
	target := transitions[a].target
	if target == "" || !p.Status.Precedes(target) {
		return false
	}
	p.Status = target
	return true
}
