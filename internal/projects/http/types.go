package http

import (
	"github.com/Alyfish/spacestest-v0-mvp/internal/imaging"
	"github.com/Alyfish/spacestest-v0-mvp/internal/platform/logger"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/service"
)

// Handler bundles the dependencies for the workflow HTTP endpoints.
type Handler struct {
	svc       *service.Service
	log       *logger.Logger
	maxUpload int64
}

func New(svc *service.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{svc: svc, log: log, maxUpload: imaging.MaxImageBytes}
}

// projectView is the project document plus the derived readiness data clients
// render from.
type projectView struct {
	*domain.Project
	Gates           domain.Gates `json:"gates"`
	StaleSelections []string     `json:"stale_selections,omitempty"`
}

func view(p *domain.Project) projectView {
	return projectView{
		Project:         p,
		Gates:           p.Gates(),
		StaleSelections: domain.StaleSelections(&p.Context),
	}
}

type spaceTypeReq struct {
	SpaceType string `json:"space_type"`
}

type markersReq struct {
	Markers []domain.MarkerInput `json:"markers"`
}

type storesReq struct {
	Stores []string `json:"stores"`
}

type selectRecommendationReq struct {
	Recommendation string `json:"recommendation"`
}
