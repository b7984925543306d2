package highlights

import (
	"testing"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

func timingOf(words ...types.Word) Timing {
	return NewTiming(types.Transcript{Segments: []types.Segment{{Words: words}}})
}

func w(start, end float64, text string) types.Word {
	return types.Word{Start: start, End: end, Word: text}
}

func TestFit_SnapsToPunctuationNearTail(t *testing.T) {
	timing := timingOf(
		w(53, 54, "almost"),
		w(54, 55, "there"),
		w(55, 56, "finished."),
		w(56, 57, "next"),
	)
	_, en, ok := timing.Fit(0, 60*time.Second, 20*time.Second, 60*time.Second)
	if !ok {
		t.Fatalf("expected fitted clip")
	}
	if en != 56*time.Second {
		t.Fatalf("expected clip end to snap to punctuation at 56s, got %v", en)
	}
}

func TestFit_PrefersComprehensiveSentenceEnd(t *testing.T) {
	timing := timingOf(
		w(53, 54, "What"),
		w(54, 55, "is"),
		w(55, 56, "going"),
		w(56, 57, "on?"),
		w(57, 57.2, "I"),
		w(57.2, 58, "am"),
		w(58, 59, "out."),
	)
	_, en, ok := timing.Fit(0, 58*time.Second, 20*time.Second, 60*time.Second)
	if !ok {
		t.Fatalf("expected fitted clip")
	}
	if en != 59*time.Second {
		t.Fatalf("expected clip end at 59s, got %v", en)
	}
}

func TestFit_AvoidsQuestionTailBeforeContinuation(t *testing.T) {
	timing := timingOf(
		w(73, 74, "there's"),
		w(74, 75, "more!"),
		w(75, 76, "what"),
		w(76, 77, "is"),
		w(77, 78, "going"),
		w(78, 79, "on?"),
		w(79, 79.2, "i"),
		w(79.2, 80, "was"),
	)
	// start=20s, max=60s caps the end at 80s, so "on?" is the tail boundary;
	// "more!" is the resolved one.
	_, en, ok := timing.Fit(20*time.Second, 80*time.Second, 20*time.Second, 60*time.Second)
	if !ok {
		t.Fatalf("expected fitted clip")
	}
	if en != 75*time.Second {
		t.Fatalf("expected clip end to back off to 75s, got %v", en)
	}
}

func TestFit_RejectsTooShort(t *testing.T) {
	if _, _, ok := (Timing{}).Fit(0, 5*time.Second, 10*time.Second, 60*time.Second); ok {
		t.Fatalf("expected a 5s range to be rejected with a 10s minimum")
	}
	if _, _, ok := (Timing{}).Fit(10*time.Second, 10*time.Second, time.Second, 60*time.Second); ok {
		t.Fatalf("expected empty range to be rejected")
	}
}

func TestFit_ClampsToMax(t *testing.T) {
	st, en, ok := (Timing{}).Fit(0, 90*time.Second, 10*time.Second, 60*time.Second)
	if !ok || st != 0 || en != 60*time.Second {
		t.Fatalf("expected [0,60s], got [%v,%v] ok=%v", st, en, ok)
	}
}

func TestFit_SegmentsWithoutWords(t *testing.T) {
	timing := NewTiming(types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 12, Text: "first part of the talk"},
		{Start: 12, End: 30, Text: "and this is where it is done."},
		{Start: 30, End: 31, Text: "   "},
		{Start: 45, End: 44, Text: "broken."},
	}})
	if len(timing.words) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(timing.words))
	}
	_, en, ok := timing.Fit(0, 40*time.Second, 10*time.Second, 60*time.Second)
	if !ok {
		t.Fatalf("expected fitted clip")
	}
	if en != 30*time.Second {
		t.Fatalf("expected end at the sentence-closing segment (30s), got %v", en)
	}
}
