package highlights

import (
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

// MinGap keeps proposed clips apart so two picks never cover the same scene.
const MinGap = 2 * time.Second

// Strength is a candidate's combined info and hook score scaled to [0, 1].
func Strength(c types.Candidate) float64 {
	return (c.InfoScore + c.HookScore) / 20
}

// ByStrength returns a copy of cands ordered strongest first, earliest start
// breaking ties.
func ByStrength(cands []types.Candidate) []types.Candidate {
	out := make([]types.Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := Strength(out[i]), Strength(out[j])
		if si == sj {
			return out[i].Start < out[j].Start
		}
		return si > sj
	})
	return out
}

// Pick takes up to n of the strongest candidates, fitting each to the clip
// bounds and skipping any that land within MinGap of an earlier pick.
func Pick(cands []types.Candidate, n int, minClip, maxClip time.Duration, timing Timing) []types.ClipSpec {
	if n <= 0 {
		return nil
	}
	out := make([]types.ClipSpec, 0, n)
	for _, c := range ByStrength(cands) {
		if len(out) >= n {
			break
		}
		st, en, ok := timing.Fit(c.Start, c.End, minClip, maxClip)
		if !ok || !Distinct(out, st, en, MinGap) {
			continue
		}
		caption := strings.TrimSpace(c.Text)
		if caption == "" {
			caption = "Highlight"
		}
		out = append(out, types.ClipSpec{
			Start:   st,
			End:     en,
			Score:   Strength(c),
			Title:   "Highlight",
			Caption: caption,
			Reason:  "heuristic",
		})
	}
	return out
}

// Shortlist picks up to limit mutually distinct candidates, strongest first,
// topping up in timeline order, and returns them chronologically.
func Shortlist(cands []types.Candidate, limit int) []types.Candidate {
	if len(cands) == 0 || limit <= 0 {
		return nil
	}
	out := make([]types.Candidate, 0, limit)
	add := func(pool []types.Candidate) {
		for _, c := range pool {
			if len(out) >= limit {
				return
			}
			if distinctCandidate(out, c.Start, c.End, MinGap) {
				out = append(out, c)
			}
		}
	}
	add(ByStrength(cands))
	add(cands)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Distinct reports whether [st, en) stays at least gap away from every chosen range.
func Distinct(existing []types.ClipSpec, st, en, gap time.Duration) bool {
	for _, e := range existing {
		if st < e.End+gap && en > e.Start-gap {
			return false
		}
	}
	return true
}

func distinctCandidate(existing []types.Candidate, st, en, gap time.Duration) bool {
	for _, e := range existing {
		if st < e.End+gap && en > e.Start-gap {
			return false
		}
	}
	return true
}
