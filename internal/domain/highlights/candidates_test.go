package highlights

import (
	"testing"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

func TestBuildCandidates_RespectsBounds(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 40, Text: "A"},
		{Start: 40, End: 90, Text: "B"},
		{Start: 90, End: 100, Text: "C"},
	}}
	minClip, maxClip := 30*time.Second, 60*time.Second
	cands := BuildCandidates(tr, minClip, maxClip)
	if len(cands) == 0 {
		t.Fatalf("expected candidates")
	}
	for _, c := range cands {
		if d := c.End - c.Start; d > maxClip || d < minClip {
			t.Fatalf("candidate out of bounds: %v", d)
		}
	}
}

func TestBuildCandidates_PrefersWords(t *testing.T) {
	var words []types.Word
	for i := 0; i < 40; i++ {
		words = append(words, types.Word{Start: float64(i), End: float64(i) + 0.8, Word: "step"})
	}
	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 40, Text: "long", Words: words}}}
	cands := BuildCandidates(tr, 10*time.Second, 20*time.Second)
	if len(cands) == 0 {
		t.Fatalf("expected word-driven candidates")
	}
	for _, c := range cands {
		if c.Text == "long" {
			t.Fatalf("expected word windows, got segment text")
		}
	}
}

func TestBuildCandidates_BadBounds(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 40, Text: "A"}}}
	if got := BuildCandidates(tr, 60*time.Second, 10*time.Second); got != nil {
		t.Fatalf("expected nil for max < min, got %d", len(got))
	}
}

func TestBuildCandidates_LateStartsSurviveDownsampling(t *testing.T) {
	var words []types.Word
	for i := 0; i < 600; i++ {
		words = append(words, types.Word{Start: float64(i), End: float64(i) + 0.9, Word: "w"})
	}
	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 600, Text: "all", Words: words}}}
	cands := BuildCandidates(tr, 10*time.Second, 15*time.Second)
	var late bool
	for _, c := range cands {
		if c.Start >= 560*time.Second {
			late = true
		}
	}
	if !late {
		t.Fatalf("expected a candidate starting near the end of the transcript")
	}
}

func TestStartIndexes(t *testing.T) {
	if got := startIndexes(0); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	got := startIndexes(5)
	if len(got) != 5 || got[0] != 0 || got[4] != 4 {
		t.Fatalf("small inputs keep every start, got %v", got)
	}
	big := startIndexes(1000)
	if len(big) > maxStarts+1 || big[len(big)-1] != 998 {
		t.Fatalf("unexpected downsampling: len=%d last=%d", len(big), big[len(big)-1])
	}
}
