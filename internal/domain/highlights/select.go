package highlights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/types"
)

// Resolve turns scored proposals into the final clip set: ranges outside
// [minClip, maxClip] are dropped, overlaps are resolved greedily by score
// (earliest start wins ties), the survivors are capped at maxClips and
// returned in timeline order.
func Resolve(cands []types.ClipSpec, minClip, maxClip time.Duration, maxClips int) []types.ClipSpec {
	if maxClips <= 0 {
		return nil
	}
	valid := make([]types.ClipSpec, 0, len(cands))
	for _, c := range cands {
		if c.End <= c.Start {
			continue
		}
		if d := c.Duration(); d < minClip || d > maxClip {
			continue
		}
		valid = append(valid, c)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Score == valid[j].Score {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].Score > valid[j].Score
	})

	accepted := make([]types.ClipSpec, 0, min(len(valid), maxClips))
	for _, c := range valid {
		if len(accepted) == maxClips {
			break
		}
		overlaps := false
		for _, a := range accepted {
			if c.Overlaps(a) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

// Selector asks the scoring capability for proposals and resolves them.
type Selector struct {
	Scorer  ports.HighlightScorer
	MinClip time.Duration
	MaxClip time.Duration
}

func (s Selector) Select(ctx context.Context, tr types.Transcript, maxClips int, sourceDur time.Duration) ([]types.ClipSpec, error) {
	if len(tr.Segments) == 0 {
		return nil, types.AnalysisError("transcript is empty", nil)
	}
	cands, err := s.Scorer.Score(ctx, tr, ports.ScoreRequest{
		MaxClips: maxClips,
		MinClip:  s.MinClip,
		MaxClip:  s.MaxClip,
		Duration: sourceDur,
	})
	if err != nil {
		return nil, types.AnalysisError("highlight scoring failed", err)
	}
	out := Resolve(cands, s.MinClip, s.MaxClip, maxClips)
	if len(out) == 0 {
		return nil, types.AnalysisError(fmt.Sprintf(
			"no segment of %d proposed fits %s-%s without overlap",
			len(cands), s.MinClip, s.MaxClip), nil)
	}
	return out, nil
}
