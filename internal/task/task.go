package task

import (
	"maps"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses along pending -> processing -> terminal.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Task is one clip-generation job.
type Task struct {
	ID        string            `json:"id"`
	Kind      types.SourceKind  `json:"kind"`
	Status    Status            `json:"status"`
	Stage     string            `json:"stage,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Progress  float64           `json:"progress"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	Result    *types.Result     `json:"result,omitempty"`
	Error     *types.TaskError  `json:"error,omitempty"`
}

func (t Task) clone() Task {
	out := t
	out.Metadata = maps.Clone(t.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	out.Result = t.Result.Clone()
	if t.Error != nil {
		e := *t.Error
		out.Error = &e
	}
	return out
}

// StatusView is the polling payload for one task.
type StatusView struct {
	ID       string           `json:"id"`
	Status   Status           `json:"status"`
	Stage    string           `json:"stage,omitempty"`
	Progress float64          `json:"progress"`
	Message  string           `json:"message,omitempty"`
	Result   *types.Result    `json:"result,omitempty"`
	Error    *types.TaskError `json:"error,omitempty"`
}

func (t Task) StatusView() StatusView {
	return StatusView{
		ID:       t.ID,
		Status:   t.Status,
		Stage:    t.Stage,
		Progress: t.Progress,
		Message:  t.Message,
		Result:   t.Result,
		Error:    t.Error,
	}
}

// Summary is the list-view projection of a task.
type Summary struct {
	ID        string           `json:"id"`
	Kind      types.SourceKind `json:"kind"`
	Status    Status           `json:"status"`
	Progress  float64          `json:"progress"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (t Task) Summary() Summary {
	return Summary{
		ID:        t.ID,
		Kind:      t.Kind,
		Status:    t.Status,
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
