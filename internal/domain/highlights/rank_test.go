package highlights

import (
	"testing"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

func TestPick_DoesNotReturnOverlappingClips(t *testing.T) {
	cands := []types.Candidate{
		{Start: 0, End: 25 * time.Second, Text: "A", InfoScore: 9},
		{Start: 10 * time.Second, End: 35 * time.Second, Text: "B", InfoScore: 8},
		{Start: 36 * time.Second, End: 62 * time.Second, Text: "C", InfoScore: 7},
	}
	out := Pick(cands, 3, 20*time.Second, 60*time.Second, Timing{})
	if len(out) != 2 {
		t.Fatalf("expected 2 non-overlapping clips, got %d", len(out))
	}
	if out[0].Overlaps(out[1]) {
		t.Fatalf("expected non-overlap, got %v and %v", out[0], out[1])
	}
	if out[0].Score <= out[1].Score {
		t.Fatalf("expected strongest first, got %v then %v", out[0].Score, out[1].Score)
	}
}

func TestShortlist_Chronological(t *testing.T) {
	cands := []types.Candidate{
		{Start: 50 * time.Second, End: 70 * time.Second, HookScore: 1},
		{Start: 0, End: 20 * time.Second, HookScore: 5},
		{Start: 5 * time.Second, End: 25 * time.Second, HookScore: 9},
	}
	out := Shortlist(cands, 5)
	if len(out) != 2 {
		t.Fatalf("expected overlapping candidate dropped, got %d", len(out))
	}
	if out[0].Start != 5*time.Second || out[1].Start != 50*time.Second {
		t.Fatalf("unexpected shortlist: %+v", out)
	}
}
