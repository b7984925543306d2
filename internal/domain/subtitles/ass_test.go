package subtitles

import (
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

func TestRender_KaraokeHasKTags(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 2, Words: []types.Word{{Start: 0.0, End: 0.3, Word: "Hello"}, {Start: 0.3, End: 0.8, Word: "world"}}},
	}}
	ass, err := Render(tr, 0, 2*time.Second, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ass, "{\\k") {
		t.Fatalf("expected karaoke tags in ASS, got:\n%s", ass)
	}
}

func TestRender_ClipLocalTimes(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 60, End: 63, Words: []types.Word{{Start: 61, End: 62, Word: "later"}}},
	}}
	ass, err := Render(tr, 60*time.Second, 70*time.Second, Options{AspectRatio: "9:16"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ass, "Dialogue: 0,0:00:01.00,0:00:02.00,") {
		t.Fatalf("expected event shifted to clip start, got:\n%s", ass)
	}
	if !strings.Contains(ass, "PlayResX: 1080\nPlayResY: 1920") {
		t.Fatalf("expected vertical play resolution, got:\n%s", ass)
	}
}

func TestRender_PlainFallback(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 5, Text: " no {word} timing "}}}
	ass, err := Render(tr, 0, 5*time.Second, Options{Template: "minimal"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ass, ",Caption,,0,0,0,,no (word) timing") {
		t.Fatalf("expected sanitized plain dialogue, got:\n%s", ass)
	}
}

func TestRender_Errors(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 5, Text: "x"}}}
	tests := []struct {
		name       string
		start, end time.Duration
		opts       Options
	}{
		{"empty range", time.Second, time.Second, Options{}},
		{"unknown template", 0, 5 * time.Second, Options{Template: "comic"}},
		{"bad aspect", 0, 5 * time.Second, Options{AspectRatio: "4:3"}},
		{"no speech", 10 * time.Second, 20 * time.Second, Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Render(tr, tt.start, tt.end, tt.opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{61*time.Second + 234*time.Millisecond, "0:01:01.23"},
		{-time.Second, "0:00:00.00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03.00"},
	}
	for _, tt := range tests {
		if got := timestamp(tt.in); got != tt.want {
			t.Fatalf("timestamp(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBreakLines(t *testing.T) {
	words := []cue{{text: "one"}, {text: "two"}, {text: "three"}, {text: "extraordinarily"}}
	lines := breakLines(words, 9, 3)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if len(lines[0]) != 2 || lines[1][0].text != "three" || lines[2][0].text != "extraordinarily" {
		t.Fatalf("unexpected grouping: %v", lines)
	}
}
