package types

import "time"

type Transcript struct {
	Text     string    `json:"text,omitempty"`
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// SourceKind tells how a submission supplies its media.
type SourceKind string

const (
	KindUpload SourceKind = "upload"
	KindURL    SourceKind = "url"
	KindFile   SourceKind = "file"
)

func (k SourceKind) Valid() bool {
	switch k {
	case KindUpload, KindURL, KindFile:
		return true
	default:
		return false
	}
}

// MediaHandle is the normalized local copy of a task's source media.
type MediaHandle struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Codec    string        `json:"codec"`
	Format   string        `json:"format"`
	HasAudio bool          `json:"has_audio"`
	Size     int64         `json:"size"`
}

type Candidate struct {
	Start time.Duration
	End   time.Duration
	Text  string

	InfoScore float64
	HookScore float64
}

// ClipSpec is one clip-worthy time range of the source. Score and Reason come
// from the highlight scoring capability.
type ClipSpec struct {
	Start   time.Duration `json:"start"`
	End     time.Duration `json:"end"`
	Score   float64       `json:"score"`
	Title   string        `json:"title,omitempty"`
	Caption string        `json:"caption,omitempty"`
	Tags    []string      `json:"tags,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

func (c ClipSpec) Duration() time.Duration { return c.End - c.Start }

// Overlaps reports whether two ranges share any time. Touching ends do not overlap.
func (c ClipSpec) Overlaps(o ClipSpec) bool {
	return c.Start < o.End && o.Start < c.End
}

type ClipState string

const (
	ClipQueued     ClipState = "queued"
	ClipRendering  ClipState = "rendering"
	ClipRendered   ClipState = "rendered"
	ClipCaptioning ClipState = "captioning"
	ClipDone       ClipState = "done"
	ClipFailed     ClipState = "failed"
)

func (s ClipState) Terminal() bool { return s == ClipDone || s == ClipFailed }

type Clip struct {
	ID           string    `json:"id"`
	Index        int       `json:"index"`
	Segment      ClipSpec  `json:"segment"`
	AspectRatio  string    `json:"aspect_ratio"`
	FilePath     string    `json:"file_path,omitempty"`
	Captioned    bool      `json:"captioned"`
	State        ClipState `json:"state"`
	Error        string    `json:"error,omitempty"`
	CaptionError string    `json:"caption_error,omitempty"`
}

// ClipFailure records a clip that failed to render (kind render) or kept
// its uncaptioned file after captioning failed (kind caption).
type ClipFailure struct {
	ClipID   string    `json:"clip_id"`
	Index    int       `json:"index"`
	StartSec float64   `json:"start_sec"`
	EndSec   float64   `json:"end_sec"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
}

type SourceInfo struct {
	DurationSec float64 `json:"duration_sec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Codec       string  `json:"codec"`
	HasAudio    bool    `json:"has_audio"`
	SizeBytes   int64   `json:"size_bytes"`
}

type Summary struct {
	ClipsCreated      int     `json:"clips_created"`
	ClipsFailed       int     `json:"clips_failed"`
	CaptionsFailed    int     `json:"captions_failed"`
	TotalClipDuration float64 `json:"total_clip_duration_sec"`
	CaptionsRequested bool    `json:"captions_requested"`
	AspectRatio       string  `json:"aspect_ratio"`
}

// Result is attached to a task once it completes.
type Result struct {
	Clips      []Clip        `json:"clips"`
	Errors     []ClipFailure `json:"errors"`
	Source     SourceInfo    `json:"source"`
	Transcript string        `json:"transcript,omitempty"`
	Summary    Summary       `json:"summary"`
	Manifest   string        `json:"manifest,omitempty"`
}

// Clone returns a copy that shares no slices with r.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Clips = make([]Clip, len(r.Clips))
	for i, c := range r.Clips {
		c.Segment.Tags = append([]string(nil), c.Segment.Tags...)
		out.Clips[i] = c
	}
	out.Errors = append([]ClipFailure(nil), r.Errors...)
	return &out
}
