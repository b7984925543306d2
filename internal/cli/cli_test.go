package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/autoclip/internal/task"
	"github.com/forPelevin/autoclip/internal/types"
)

type scriptedStatus struct {
	views []task.StatusView
	i     int
}

func (s *scriptedStatus) Status(id string) (task.StatusView, error) {
	if s.i >= len(s.views) {
		return task.StatusView{}, fmt.Errorf("no more views for %s", id)
	}
	v := s.views[s.i]
	s.i++
	return v, nil
}

func TestFollow_ReportsChangesUntilTerminal(t *testing.T) {
	src := &scriptedStatus{views: []task.StatusView{
		{ID: "t", Status: task.StatusPending},
		{ID: "t", Status: task.StatusProcessing, Stage: "transcribe", Progress: 0.2},
		{ID: "t", Status: task.StatusProcessing, Stage: "transcribe", Progress: 0.2},
		{ID: "t", Status: task.StatusCompleted, Stage: "finalize", Progress: 1},
	}}
	var lines []string
	v, err := follow(context.Background(), src, "t", func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if v.Status != task.StatusCompleted {
		t.Fatalf("status = %s", v.Status)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 distinct lines, got %q", lines)
	}
	if !strings.Contains(lines[1], "20%") || !strings.Contains(lines[1], "transcribe") {
		t.Fatalf("unexpected progress line %q", lines[1])
	}
}

func TestFollow_FailedTask(t *testing.T) {
	src := &scriptedStatus{views: []task.StatusView{{
		ID:     "t",
		Status: task.StatusFailed,
		Error:  &types.TaskError{Kind: types.KindAcquisition, Stage: "acquire", Message: "no such file"},
	}}}
	v, err := follow(context.Background(), src, "t", func(string, ...any) {})
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if v.Error == nil || v.Error.Kind != types.KindAcquisition {
		t.Fatalf("expected acquisition error, got %+v", v.Error)
	}
}

func TestSourceFor(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		in      string
		kind    types.SourceKind
		wantErr bool
	}{
		{"https://example.com/talk.mp4", types.KindURL, false},
		{"http://example.com/talk.mp4", types.KindURL, false},
		{file, types.KindFile, false},
		{filepath.Join(dir, "missing.mp4"), "", true},
	}
	for _, tt := range tests {
		src, err := sourceFor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v", tt.in, err)
		}
		if err == nil && src.Kind != tt.kind {
			t.Fatalf("%s: kind = %s, want %s", tt.in, src.Kind, tt.kind)
		}
	}
}
