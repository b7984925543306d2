package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/autoclip/internal/types"
)

// Store is the in-memory registry of tasks. It starts empty and is safe for
// concurrent use; every read returns a private copy.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	now   func() time.Time
	newID func() string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		tasks: make(map[string]*Task),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create registers a pending task and returns its id.
func (s *Store) Create(kind types.SourceKind, metadata map[string]string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown task kind %q", kind)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, exists := s.tasks[id]; exists {
		return "", fmt.Errorf("task %s already exists", id)
	}
	t := Task{
		ID:        id,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}.clone()
	s.tasks[id] = &t
	return id, nil
}

func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, types.ErrNotFound
	}
	return t.clone(), nil
}

// Update applies mutate as one atomic read-modify-write. Updates to a
// terminal task are ignored and reported with applied=false. The id and
// creation time cannot be changed and status never moves backwards.
func (s *Store) Update(id string, mutate func(*Task)) (applied bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[id]
	if !ok {
		return false, types.ErrNotFound
	}
	if cur.Status.Terminal() {
		return false, nil
	}

	next := cur.clone()
	mutate(&next)

	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	if next.Status.rank() < cur.Status.rank() {
		next.Status = cur.Status
	}
	next.Progress = clamp01(next.Progress)
	if next.Status != StatusCompleted {
		next.Result = nil
	}
	if next.Status != StatusFailed {
		next.Error = nil
	}
	next.UpdatedAt = s.now()

	s.tasks[id] = &next
	return true, nil
}

// List returns tasks ordered by creation time. An empty kind matches all.
func (s *Store) List(kind types.SourceKind) []Task {
	s.mu.RLock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if kind != "" && t.Kind != kind {
			continue
		}
		out = append(out, t.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Evict drops terminal tasks last updated before cutoff and returns them.
func (s *Store) Evict(cutoff time.Time) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for id, t := range s.tasks {
		if !t.Status.Terminal() || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, t.clone())
		delete(s.tasks, id)
	}
	return out
}

// RunRetention evicts terminal tasks older than ttl every interval until ctx
// is done. onEvict runs outside the store lock.
func (s *Store) RunRetention(ctx context.Context, interval, ttl time.Duration, onEvict func(Task)) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range s.Evict(s.now().Add(-ttl)) {
				if onEvict != nil {
					onEvict(t)
				}
			}
		}
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
