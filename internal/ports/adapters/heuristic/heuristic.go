// Package heuristic scores highlights locally from transcript text alone.
// It serves when no language model is configured.
package heuristic

import (
	"context"

	"github.com/forPelevin/autoclip/internal/domain/highlights"
	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/types"
)

type Adapter struct {
	// Oversample asks for more proposals than clips so selection has room
	// to drop overlaps.
	Oversample int
}

func New() *Adapter { return &Adapter{Oversample: 3} }

var _ ports.HighlightScorer = (*Adapter)(nil)

func (a *Adapter) Score(ctx context.Context, tr types.Transcript, req ports.ScoreRequest) ([]types.ClipSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cands := highlights.BuildCandidates(tr, req.MinClip, req.MaxClip)
	n := req.MaxClips * max(a.Oversample, 1)
	return highlights.Pick(cands, n, req.MinClip, req.MaxClip, highlights.NewTiming(tr)), nil
}
