package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore() *Store {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := 0
	var mu sync.Mutex
	return NewStore(
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("t%03d", n)
		}),
	)
}

func TestStore_CreateGet(t *testing.T) {
	s := newTestStore()
	id, err := s.Create(types.KindURL, map[string]string{"max_clips": "3"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending || got.Kind != types.KindURL {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.Metadata["max_clips"] != "3" {
		t.Fatalf("metadata not stored: %v", got.Metadata)
	}

	got.Metadata["max_clips"] = "99"
	again, _ := s.Get(id)
	if again.Metadata["max_clips"] != "3" {
		t.Fatalf("readers must not be able to mutate the stored record")
	}

	if _, err := s.Get("missing"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Create("bogus", nil); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestStore_UpdateTerminalIsNoop(t *testing.T) {
	s := newTestStore()
	id, _ := s.Create(types.KindFile, nil)

	applied, err := s.Update(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = 1
		t.Result = &types.Result{Clips: []types.Clip{{ID: "001"}}}
	})
	if err != nil || !applied {
		t.Fatalf("expected update to apply, applied=%v err=%v", applied, err)
	}

	before, _ := s.Get(id)
	beforeJSON, _ := json.Marshal(before)

	applied, err = s.Update(id, func(t *Task) {
		t.Status = StatusFailed
		t.Message = "late write"
		t.Result = nil
	})
	if err != nil {
		t.Fatalf("update on terminal task must not error: %v", err)
	}
	if applied {
		t.Fatalf("update on terminal task must be a no-op")
	}

	after, _ := s.Get(id)
	afterJSON, _ := json.Marshal(after)
	if string(beforeJSON) != string(afterJSON) {
		t.Fatalf("terminal record changed:\nbefore %s\nafter  %s", beforeJSON, afterJSON)
	}
}

func TestStore_StatusNeverMovesBackwards(t *testing.T) {
	s := newTestStore()
	id, _ := s.Create(types.KindFile, nil)
	created, _ := s.Get(id)

	_, _ = s.Update(id, func(t *Task) { t.Status = StatusProcessing })
	_, _ = s.Update(id, func(t *Task) {
		t.Status = StatusPending
		t.ID = "hijack"
		t.CreatedAt = time.Time{}
		t.Progress = 7
	})

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
	if got.ID != id || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("id and created_at must be immutable: %+v", got)
	}
	if got.Progress != 1 {
		t.Fatalf("expected progress clamped to 1, got %v", got.Progress)
	}
	if !got.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("expected updated_at to advance")
	}
}

func TestStore_ResultOnlyWhenCompleted(t *testing.T) {
	s := newTestStore()
	id, _ := s.Create(types.KindFile, nil)
	_, _ = s.Update(id, func(t *Task) {
		t.Status = StatusFailed
		t.Result = &types.Result{}
		t.Error = &types.TaskError{Kind: types.KindAnalysis, Message: "x"}
	})
	got, _ := s.Get(id)
	if got.Result != nil {
		t.Fatalf("failed task must not carry a result")
	}
	if got.Error == nil {
		t.Fatalf("failed task must carry an error")
	}
}

func TestStore_ListOrderedAndFiltered(t *testing.T) {
	s := newTestStore()
	a, _ := s.Create(types.KindURL, nil)
	b, _ := s.Create(types.KindFile, nil)
	c, _ := s.Create(types.KindURL, nil)

	all := s.List("")
	if ids := taskIDs(all); !reflect.DeepEqual(ids, []string{a, b, c}) {
		t.Fatalf("unexpected order: %v", ids)
	}
	urls := s.List(types.KindURL)
	if ids := taskIDs(urls); !reflect.DeepEqual(ids, []string{a, c}) {
		t.Fatalf("unexpected filtered list: %v", ids)
	}
}

func TestStore_ConsecutiveGetsAreIdentical(t *testing.T) {
	s := newTestStore()
	id, _ := s.Create(types.KindUpload, map[string]string{"filename": "a.mp4"})
	_, _ = s.Update(id, func(t *Task) {
		t.Status = StatusProcessing
		t.Stage = "transcribe"
		t.Progress = 0.3
	})

	first, _ := s.Get(id)
	second, _ := s.Get(id)
	if !reflect.DeepEqual(first.StatusView(), second.StatusView()) {
		t.Fatalf("status polls differ: %+v vs %+v", first.StatusView(), second.StatusView())
	}
}

func TestStore_ConcurrentUpdatesAreAtomic(t *testing.T) {
	s := newTestStore()
	id, _ := s.Create(types.KindFile, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Update(id, func(t *Task) {
				t.Status = StatusProcessing
				t.Stage = fmt.Sprintf("stage-%d", i)
				t.Message = fmt.Sprintf("stage-%d", i)
			})
		}(i)
		go func() {
			defer wg.Done()
			got, err := s.Get(id)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			if got.Stage != got.Message {
				t.Errorf("observed partial update: stage=%q message=%q", got.Stage, got.Message)
			}
		}()
	}
	wg.Wait()
}

func TestStore_Evict(t *testing.T) {
	s := newTestStore()
	done, _ := s.Create(types.KindFile, nil)
	running, _ := s.Create(types.KindFile, nil)
	_, _ = s.Update(done, func(t *Task) { t.Status = StatusCompleted })
	_, _ = s.Update(running, func(t *Task) { t.Status = StatusProcessing })

	evicted := s.Evict(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC))
	if len(evicted) != 1 || evicted[0].ID != done {
		t.Fatalf("expected only the terminal task evicted, got %v", taskIDs(evicted))
	}
	if _, err := s.Get(done); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("evicted task still present")
	}
	if _, err := s.Get(running); err != nil {
		t.Fatalf("running task must survive eviction: %v", err)
	}
}

func taskIDs(ts []Task) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}
