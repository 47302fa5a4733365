package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

const (
	projectKeyPrefix   = "spaces:project:" // Project document: spaces:project:{id}
	projectIndexKey    = "spaces:projects" // Sorted set of ids scored by updated_at
	eventChannelPrefix = "spaces:events:"  // Pub/Sub channel for committed snapshots: spaces:events:{id}
)

// RedisStore keeps each project as a JSON blob and publishes every committed
// write on the project's event channel.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	data, err := r.client.Get(ctx, projectKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &p, nil
}

func (r *RedisStore) Put(ctx context.Context, p *domain.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, projectKey(p.ID), data, r.ttl)
	pipe.ZAdd(ctx, projectIndexKey, redis.Z{Score: float64(p.UpdatedAt.Unix()), Member: p.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to put project: %w", err)
	}

	// Subscribers are best-effort; a failed publish does not undo the write.
	r.client.Publish(ctx, EventChannel(p.ID), data)
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, projectKey(id))
	pipe.ZRem(ctx, projectIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

// List returns summaries ordered by most recently updated. Index entries whose
// document has expired are pruned.
func (r *RedisStore) List(ctx context.Context) ([]Summary, error) {
	ids, err := r.client.ZRevRange(ctx, projectIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if len(ids) == 0 {
		return []Summary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = projectKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	out := make([]Summary, 0, len(ids))
	var stale []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var p domain.Project
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project %s: %w", ids[i], err)
		}
		out = append(out, summarize(&p))
	}
	if len(stale) > 0 {
		r.client.ZRem(ctx, projectIndexKey, stale...)
	}
	return out, nil
}

// Subscribe streams committed snapshots of one project.
func (r *RedisStore) Subscribe(ctx context.Context, id string) *redis.PubSub {
	return r.client.Subscribe(ctx, EventChannel(id))
}

func projectKey(id string) string {
	return projectKeyPrefix + id
}

// EventChannel is the Pub/Sub channel carrying a project's committed snapshots.
func EventChannel(id string) string {
	return eventChannelPrefix + id
}
