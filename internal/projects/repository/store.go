package repository

import (
	"context"
	"time"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// Summary is the listing view of a stored project.
type Summary struct {
	ID        string        `json:"project_id"`
	Status    domain.Status `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ContextStore persists one project document per id. Writes are whole-document
// overwrites; last write wins.
type ContextStore interface {
	Get(ctx context.Context, id string) (*domain.Project, error)
	Put(ctx context.Context, p *domain.Project) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Summary, error)
}

func summarize(p *domain.Project) Summary {
	return Summary{ID: p.ID, Status: p.Status, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}
