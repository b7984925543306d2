// Package render cuts the selected segments out of a task's source media,
// one clip per segment.
package render

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/retry"
	"github.com/forPelevin/autoclip/internal/types"
)

type Renderer struct {
	Encoder ports.Encoder

	// MaxConcurrent bounds the encodes running for one task.
	MaxConcurrent int
	Preset        string
	CRF           int
	Policy        retry.Policy
	Log           zerolog.Logger
}

type Request struct {
	Source      types.MediaHandle
	Segments    []types.ClipSpec
	AspectRatio string
	OutDir      string
}

// OnChange observes every clip state transition. Calls are serialized.
type OnChange func(types.Clip)

// ClipID is the zero-padded id of the clip at index i.
func ClipID(i int) string { return fmt.Sprintf("%03d", i+1) }

// RenderAll renders every segment and returns one clip per segment, in
// segment order. Each clip ends either rendered or failed; a failed encode
// never touches its siblings.
func (r *Renderer) RenderAll(ctx context.Context, req Request, onChange OnChange) []types.Clip {
	clips := make([]types.Clip, len(req.Segments))
	for i, seg := range req.Segments {
		clips[i] = types.Clip{
			ID:          ClipID(i),
			Index:       i,
			Segment:     seg,
			AspectRatio: req.AspectRatio,
			State:       types.ClipQueued,
		}
	}

	var mu sync.Mutex
	set := func(i int, mutate func(*types.Clip)) {
		mu.Lock()
		defer mu.Unlock()
		mutate(&clips[i])
		if onChange != nil {
			onChange(clips[i])
		}
	}

	var g errgroup.Group
	g.SetLimit(max(1, r.MaxConcurrent))
	for i := range clips {
		g.Go(func() error {
			r.renderOne(ctx, req, i, set)
			return nil
		})
	}
	_ = g.Wait()
	return clips
}

func (r *Renderer) renderOne(ctx context.Context, req Request, i int, set func(int, func(*types.Clip))) {
	seg := req.Segments[i]
	id := ClipID(i)
	log := r.Log.With().Str("clip_id", id).Logger()

	if err := ctx.Err(); err != nil {
		set(i, func(c *types.Clip) {
			c.State = types.ClipFailed
			c.Error = types.RenderError(id, "not started", err).Error()
		})
		return
	}
	set(i, func(c *types.Clip) { c.State = types.ClipRendering })

	out := filepath.Join(req.OutDir, id+".mp4")
	attempts, err := r.Policy.Do(ctx, func(ctx context.Context) error {
		return r.Encoder.RenderClip(ctx, ports.EncodeRequest{
			Source:      req.Source,
			Start:       seg.Start,
			End:         seg.End,
			AspectRatio: req.AspectRatio,
			Preset:      r.Preset,
			CRF:         r.CRF,
			Output:      out,
		})
	})
	if err != nil {
		rerr := types.RenderError(id, fmt.Sprintf("encode %s-%s failed after %d attempt(s)", seg.Start, seg.End, attempts), err)
		log.Warn().Err(err).Int("attempts", attempts).Msg("clip render failed")
		set(i, func(c *types.Clip) {
			c.State = types.ClipFailed
			c.Error = rerr.Error()
		})
		return
	}
	log.Info().Dur("start", seg.Start).Dur("end", seg.End).Msg("clip rendered")
	set(i, func(c *types.Clip) {
		c.State = types.ClipRendered
		c.FilePath = out
	})
}

// Failures lists the clips that never produced a usable file.
func Failures(clips []types.Clip) []types.ClipFailure {
	var out []types.ClipFailure
	for _, c := range clips {
		if c.State != types.ClipFailed {
			continue
		}
		out = append(out, types.ClipFailure{
			ClipID:   c.ID,
			Index:    c.Index,
			StartSec: c.Segment.Start.Seconds(),
			EndSec:   c.Segment.End.Seconds(),
			Kind:     types.KindRender,
			Message:  c.Error,
		})
	}
	return out
}
