package highlights

import (
	"strings"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

// Limits on the window search so long transcripts stay cheap.
const (
	maxCandidates  = 500
	maxStarts      = 140
	maxUnitsPerWin = 240
	wordEndStride  = 4
)

// unit is the smallest span a window may start or end on: a word when the
// transcript has word timings, a segment otherwise.
type unit struct {
	start, end time.Duration
	text       string
}

// BuildCandidates slides windows of [minClip, maxClip] over the transcript.
// Word timestamps give tighter boundaries and are used when present; segment
// boundaries are the fallback.
func BuildCandidates(tr types.Transcript, minClip, maxClip time.Duration) []types.Candidate {
	if minClip <= 0 {
		minClip = time.Second
	}
	if maxClip <= 0 || maxClip < minClip || len(tr.Segments) == 0 {
		return nil
	}
	if words := wordUnits(tr); len(words) >= 2 {
		if out := slide(words, minClip, maxClip, wordEndStride); len(out) > 0 {
			return out
		}
	}
	return slide(segmentUnits(tr), minClip, maxClip, 1)
}

func wordUnits(tr types.Transcript) []unit {
	var out []unit
	for _, s := range tr.Segments {
		for _, w := range s.Words {
			u := unit{start: dur(w.Start), end: dur(w.End), text: strings.TrimSpace(w.Word)}
			if u.end > u.start && u.text != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

func segmentUnits(tr types.Transcript) []unit {
	out := make([]unit, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		out = append(out, unit{start: dur(s.Start), end: dur(s.End), text: strings.TrimSpace(s.Text)})
	}
	return out
}

// slide grows a window from each start unit and emits every in-bounds window
// that ends on a stride boundary.
func slide(units []unit, minClip, maxClip time.Duration, endStride int) []types.Candidate {
	var out []types.Candidate
	for _, i := range startIndexes(len(units)) {
		var text strings.Builder
		for j := i; j < len(units) && j-i <= maxUnitsPerWin; j++ {
			if units[j].text != "" {
				if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(units[j].text)
			}
			if endStride > 1 && j != i+1 && (j-i)%endStride != 0 {
				continue
			}
			win := units[j].end - units[i].start
			if win > maxClip {
				break
			}
			if win < minClip || text.Len() == 0 {
				continue
			}
			s := Measure(text.String())
			out = append(out, types.Candidate{
				Start:     units[i].start,
				End:       units[j].end,
				Text:      text.String(),
				InfoScore: s.Info,
				HookScore: s.Hook,
			})
			if len(out) >= maxCandidates {
				return out
			}
		}
	}
	return out
}

// startIndexes downsamples window starts to at most maxStarts, always keeping
// one near the tail so late content still competes.
func startIndexes(n int) []int {
	if n == 0 {
		return nil
	}
	stride := max(1, (n+maxStarts-1)/maxStarts)
	idx := make([]int, 0, n/stride+2)
	for i := 0; i < n; i += stride {
		idx = append(idx, i)
	}
	if tail := max(0, n-2); idx[len(idx)-1] < tail {
		idx = append(idx, tail)
	}
	return idx
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
