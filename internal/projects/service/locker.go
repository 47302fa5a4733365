package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// Locker serializes mutations per project id. Acquire blocks for at most the
// locker's wait budget and fails with *domain.ProjectBusyError after that.
type Locker interface {
	Acquire(ctx context.Context, projectID string) (release func(), err error)
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker returns a Locker that queues callers for up to wait; zero
// rejects contention immediately.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{wait: wait, slots: make(map[string]*lockSlot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, projectID string) (func(), error) {
	s := l.join(projectID)

	select {
	case s.ch <- struct{}{}:
		return l.releaser(projectID, s), nil
	default:
	}
	if l.wait <= 0 {
		l.leave(projectID, s)
		return nil, &domain.ProjectBusyError{ProjectID: projectID}
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
		return l.releaser(projectID, s), nil
	case <-timer.C:
		l.leave(projectID, s)
		return nil, &domain.ProjectBusyError{ProjectID: projectID}
	case <-ctx.Done():
		l.leave(projectID, s)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) join(id string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) leave(id string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *LocalLocker) releaser(id string, s *lockSlot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.leave(id, s)
		})
	}
}

const lockKeyPrefix = "spaces:lock:"

// Compare-and-delete so an expired holder never releases a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every API instance. The TTL bounds how
// long a crashed holder can block a project.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) (*RedisLocker, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, projectID string) (func(), error) {
	key := lockKeyPrefix + projectID
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire project lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, &domain.ProjectBusyError{ProjectID: projectID}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// A failed release is reclaimed by the TTL.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
	}, nil
}
