package domain

import (
	"time"

	"github.com/google/uuid"
)

// Project is one interior-design workflow. It is storage-agnostic and shared by
// the repository, service and HTTP layers.
type Project struct {
	ID        string    `json:"project_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Context   Context   `json:"context"`
}

// NewProject returns an empty project in status NEW.
func NewProject(now time.Time) *Project {
	now = now.UTC()
	return &Project{
		ID:        uuid.New().String(),
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so a mutation can be prepared without touching the
// committed snapshot.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Context = p.Context.Clone()
	return &cp
}

// Gates evaluates the readiness predicates for the project's current snapshot.
func (p *Project) Gates() Gates {
	return EvaluateGates(p)
}
