package localcaption

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/types"
)

type fakeBurner struct {
	ass string
	err error
}

func (f *fakeBurner) BurnSubtitles(_ context.Context, inMP4, assPath, outMP4 string) error {
	b, err := os.ReadFile(assPath)
	if err != nil {
		return err
	}
	f.ass = string(b)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outMP4, []byte("burned"), 0o644)
}

func request(t *testing.T) ports.CaptionRequest {
	t.Helper()
	clip := filepath.Join(t.TempDir(), "clip_002.mp4")
	if err := os.WriteFile(clip, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	return ports.CaptionRequest{
		ClipPath:    clip,
		AspectRatio: "9:16",
		Transcript: types.Transcript{Segments: []types.Segment{{
			Start: 30, End: 35,
			Words: []types.Word{{Start: 31, End: 32, Word: "hey"}},
		}}},
		Start: 30 * time.Second,
		End:   40 * time.Second,
	}
}

func TestSubmitPoll_Ready(t *testing.T) {
	b := &fakeBurner{}
	a := New(b)
	req := request(t)

	job, err := a.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	st, err := a.Poll(context.Background(), job)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if st.State != ports.CaptionReady || !strings.HasSuffix(st.OutputPath, "clip_002.captioned.mp4") {
		t.Fatalf("unexpected status %+v", st)
	}
	if !strings.Contains(b.ass, "PlayResY: 1920") || !strings.Contains(b.ass, "hey") {
		t.Fatalf("unexpected subtitles:\n%s", b.ass)
	}
	if _, err := os.Stat(strings.TrimSuffix(req.ClipPath, ".mp4") + ".ass"); !os.IsNotExist(err) {
		t.Fatalf("expected subtitle file removed, stat err=%v", err)
	}
	if _, err := a.Poll(context.Background(), job); err == nil {
		t.Fatalf("expected finished job to be forgotten")
	}
}

func TestSubmitPoll_BurnFailure(t *testing.T) {
	a := New(&fakeBurner{err: errors.New("ffmpeg exploded")})
	req := request(t)
	req.AspectRatio = "16:9"
	job, err := a.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	st, _ := a.Poll(context.Background(), job)
	if st.State != ports.CaptionFailed || !strings.Contains(st.Message, "exploded") {
		t.Fatalf("expected failed status, got %+v", st)
	}
}

func TestSubmit_NoSpeech(t *testing.T) {
	req := request(t)
	req.Start, req.End = 100*time.Second, 110*time.Second
	if _, err := New(&fakeBurner{}).Submit(context.Background(), req); err == nil {
		t.Fatalf("expected error when the range has no speech")
	}
}
