package ports

import (
	"context"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

type Prober interface {
	Probe(ctx context.Context, path string) (types.MediaHandle, error)
}

type AudioTool interface {
	ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error
	ExtractAudioRange(ctx context.Context, inWav string, start, end time.Duration, outWav string) error
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// EncodeRequest is one cut/crop/transcode job.
type EncodeRequest struct {
	Source      types.MediaHandle
	Start       time.Duration
	End         time.Duration
	AspectRatio string
	Preset      string
	CRF         int
	Output      string
	BurnASS     string
}

type Encoder interface {
	RenderClip(ctx context.Context, req EncodeRequest) error
}

type SubtitleBurner interface {
	BurnSubtitles(ctx context.Context, inMP4, assPath, outMP4 string) error
}

type VideoTool interface {
	Prober
	AudioTool
	Encoder
	SubtitleBurner
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// ScoreRequest bounds what the scoring capability should propose.
type ScoreRequest struct {
	MaxClips int
	MinClip  time.Duration
	MaxClip  time.Duration
	Duration time.Duration
}

// HighlightScorer proposes candidate ranges; callers still filter them.
type HighlightScorer interface {
	Score(ctx context.Context, tr types.Transcript, req ScoreRequest) ([]types.ClipSpec, error)
}

type CaptionState string

const (
	CaptionPending CaptionState = "pending"
	CaptionReady   CaptionState = "ready"
	CaptionFailed  CaptionState = "failed"
)

type CaptionRequest struct {
	ClipPath    string
	AspectRatio string
	TemplateID  string
	Language    string

	// Transcript and the clip's source range let local backends build
	// subtitles without another transcription pass.
	Transcript types.Transcript
	Start      time.Duration
	End        time.Duration
}

type CaptionJob struct {
	ID       string
	VideoID  string
	ClipPath string
}

type CaptionStatus struct {
	State      CaptionState
	OutputPath string
	Message    string
}

type Captioner interface {
	Submit(ctx context.Context, req CaptionRequest) (CaptionJob, error)
	Poll(ctx context.Context, job CaptionJob) (CaptionStatus, error)
}
