// Package localcaption captions clips without an external service by burning
// karaoke subtitles built from the task's transcript.
package localcaption

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/forPelevin/autoclip/internal/domain/subtitles"
	"github.com/forPelevin/autoclip/internal/ports"
)

// Adapter runs the burn-in during Submit; Poll only reports the outcome.
type Adapter struct {
	burner ports.SubtitleBurner

	mu   sync.Mutex
	jobs map[string]ports.CaptionStatus
}

var _ ports.Captioner = (*Adapter)(nil)

func New(burner ports.SubtitleBurner) *Adapter {
	return &Adapter{burner: burner, jobs: make(map[string]ports.CaptionStatus)}
}

func (a *Adapter) Submit(ctx context.Context, req ports.CaptionRequest) (ports.CaptionJob, error) {
	ass, err := subtitles.Render(req.Transcript, req.Start, req.End, subtitles.Options{
		AspectRatio: req.AspectRatio,
		Template:    req.TemplateID,
	})
	if err != nil {
		return ports.CaptionJob{}, err
	}

	base := strings.TrimSuffix(req.ClipPath, filepath.Ext(req.ClipPath))
	assPath := base + ".ass"
	if err := os.WriteFile(assPath, []byte(ass), 0o644); err != nil {
		return ports.CaptionJob{}, fmt.Errorf("write subtitles: %w", err)
	}
	defer os.Remove(assPath)

	out := base + ".captioned" + filepath.Ext(req.ClipPath)
	job := ports.CaptionJob{ID: uuid.NewString(), VideoID: filepath.Base(req.ClipPath), ClipPath: req.ClipPath}
	status := ports.CaptionStatus{State: ports.CaptionReady, OutputPath: out}
	if err := a.burner.BurnSubtitles(ctx, req.ClipPath, assPath, out); err != nil {
		status = ports.CaptionStatus{State: ports.CaptionFailed, Message: err.Error()}
	}

	a.mu.Lock()
	a.jobs[job.ID] = status
	a.mu.Unlock()
	return job, nil
}

// Poll reports a finished job once and forgets it.
func (a *Adapter) Poll(_ context.Context, job ports.CaptionJob) (ports.CaptionStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.jobs[job.ID]
	if !ok {
		return ports.CaptionStatus{}, fmt.Errorf("unknown caption job %s", job.ID)
	}
	delete(a.jobs, job.ID)
	return st, nil
}
