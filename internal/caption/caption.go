// Package caption runs rendered clips through a captioning backend and swaps
// in the captioned file when one comes back in time.
package caption

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/render"
	"github.com/forPelevin/autoclip/internal/retry"
	"github.com/forPelevin/autoclip/internal/types"
)

type Stage struct {
	Captioner ports.Captioner

	PollInterval  time.Duration
	MaxPolls      int
	Timeout       time.Duration
	MaxConcurrent int
	Log           zerolog.Logger
}

type Request struct {
	AspectRatio string
	TemplateID  string
	Language    string
	Transcript  types.Transcript
}

// CaptionAll captions every rendered clip and moves it to done. Caption
// problems only leave a note on the clip; failed clips pass through as-is.
func (s *Stage) CaptionAll(ctx context.Context, clips []types.Clip, req Request, onChange render.OnChange) []types.Clip {
	out := make([]types.Clip, len(clips))
	copy(out, clips)

	var mu sync.Mutex
	set := func(i int, mutate func(*types.Clip)) {
		mu.Lock()
		defer mu.Unlock()
		mutate(&out[i])
		if onChange != nil {
			onChange(out[i])
		}
	}

	var g errgroup.Group
	g.SetLimit(max(1, s.MaxConcurrent))
	for i, c := range clips {
		if c.State != types.ClipRendered {
			continue
		}
		g.Go(func() error {
			set(i, func(c *types.Clip) { c.State = types.ClipCaptioning })
			path, err := s.captionOne(ctx, c, req)
			set(i, func(c *types.Clip) {
				c.State = types.ClipDone
				if err != nil {
					c.CaptionError = err.Error()
					return
				}
				c.Captioned = true
				c.FilePath = path
			})
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Failures lists clips that finished without captions because captioning
// failed. They remain usable, uncaptioned.
func Failures(clips []types.Clip) []types.ClipFailure {
	var out []types.ClipFailure
	for _, c := range clips {
		if c.CaptionError == "" {
			continue
		}
		out = append(out, types.ClipFailure{
			ClipID:   c.ID,
			Index:    c.Index,
			StartSec: c.Segment.Start.Seconds(),
			EndSec:   c.Segment.End.Seconds(),
			Kind:     types.KindCaption,
			Message:  c.CaptionError,
		})
	}
	return out
}

// Finish moves rendered clips straight to done when no captions were asked for.
func Finish(clips []types.Clip) []types.Clip {
	out := make([]types.Clip, len(clips))
	for i, c := range clips {
		if c.State == types.ClipRendered {
			c.State = types.ClipDone
		}
		out[i] = c
	}
	return out
}

func (s *Stage) captionOne(ctx context.Context, clip types.Clip, req Request) (string, error) {
	log := s.Log.With().Str("clip_id", clip.ID).Logger()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	job, err := s.Captioner.Submit(ctx, ports.CaptionRequest{
		ClipPath:    clip.FilePath,
		AspectRatio: req.AspectRatio,
		TemplateID:  req.TemplateID,
		Language:    req.Language,
		Transcript:  req.Transcript,
		Start:       clip.Segment.Start,
		End:         clip.Segment.End,
	})
	if err != nil {
		log.Warn().Err(err).Msg("caption submit failed")
		return "", types.CaptionError(clip.ID, "submit", s.deadline(ctx, err))
	}

	polls := max(1, s.MaxPolls)
	for n := 1; n <= polls; n++ {
		if n > 1 || s.PollInterval > 0 {
			if err := sleep(ctx, s.PollInterval); err != nil {
				return "", types.CaptionError(clip.ID, fmt.Sprintf("gave up after %d poll(s)", n-1), s.deadline(ctx, err))
			}
		}
		st, err := s.Captioner.Poll(ctx, job)
		if err != nil {
			if ctx.Err() != nil || !retry.IsTransient(err) {
				return "", types.CaptionError(clip.ID, "poll", s.deadline(ctx, err))
			}
			log.Debug().Err(err).Int("poll", n).Msg("caption poll failed, retrying")
			continue
		}
		switch st.State {
		case ports.CaptionReady:
			if err := replace(st.OutputPath, clip.FilePath); err != nil {
				return "", types.CaptionError(clip.ID, "replace clip", err)
			}
			log.Info().Int("polls", n).Msg("clip captioned")
			return clip.FilePath, nil
		case ports.CaptionFailed:
			return "", types.CaptionError(clip.ID, "captioning failed: "+st.Message, nil)
		}
	}
	return "", types.CaptionError(clip.ID, fmt.Sprintf("not ready after %d poll(s)", polls), nil)
}

func (s *Stage) deadline(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", s.Timeout, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// replace moves the captioned output over the rendered clip.
func replace(from, to string) error {
	if from == "" {
		return errors.New("captioner reported ready without an output file")
	}
	if from == to {
		return nil
	}
	return os.Rename(from, to)
}
