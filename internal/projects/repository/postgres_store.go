package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// PostgresSchema creates the projects table. The context document is JSONB.
const PostgresSchema = `
create table if not exists design_projects (
    id          uuid primary key,
    status      text not null,
    context     jsonb not null default '{}'::jsonb,
    created_at  timestamptz not null,
    updated_at  timestamptz not null
);
create index if not exists design_projects_updated_at_idx on design_projects (updated_at);
`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies PostgresSchema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("migrate design_projects: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	const q = `
select id::text, status, context, created_at, updated_at
from design_projects
where id = $1::uuid;
`
	var (
		p   domain.Project
		raw []byte
	)
	err := s.db.QueryRow(ctx, q, id).Scan(&p.ID, &p.Status, &raw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	if err := json.Unmarshal(raw, &p.Context); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Put(ctx context.Context, p *domain.Project) error {
	raw, err := json.Marshal(p.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	const q = `
insert into design_projects (id, status, context, created_at, updated_at)
values ($1::uuid, $2, $3::jsonb, $4, $5)
on conflict (id) do update
set status = excluded.status, context = excluded.context, updated_at = excluded.updated_at;
`
	if _, err := s.db.Exec(ctx, q, p.ID, string(p.Status), raw, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("put project: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `delete from design_projects where id = $1::uuid;`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	const q = `
select id::text, status, created_at, updated_at
from design_projects
order by updated_at desc;
`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0, 16)
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.Status, &sm.CreatedAt, &sm.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
