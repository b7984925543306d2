package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inMP4,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, tail(b))
	}
	return nil
}

func (a *Adapter) ExtractAudioRange(ctx context.Context, inWav string, start, end time.Duration, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inWav,
		"-ss", fmtSeconds(start),
		"-to", fmtSeconds(end),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg split audio: %w\n%s", err, tail(b))
	}
	return nil
}

func (a *Adapter) RenderClip(ctx context.Context, req ports.EncodeRequest) error {
	if req.End <= req.Start {
		return fmt.Errorf("render clip: empty range %s-%s", req.Start, req.End)
	}
	vf, err := CropFilter(req.Source.Width, req.Source.Height, req.AspectRatio)
	if err != nil {
		return err
	}
	if req.BurnASS != "" {
		vf += ",subtitles=" + escapeFilterPath(req.BurnASS)
	}
	preset := req.Preset
	if preset == "" {
		preset = "veryfast"
	}
	crf := req.CRF
	if crf <= 0 {
		crf = 18
	}

	args := []string{
		"-y",
		"-ss", fmtSeconds(req.Start),
		"-to", fmtSeconds(req.End),
		"-i", req.Source.Path,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
	}
	if req.Source.HasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, req.Output)

	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render clip: %w\n%s", err, tail(b))
	}
	if _, err := os.Stat(req.Output); err != nil {
		return fmt.Errorf("ffmpeg render clip: output missing: %w", err)
	}
	return nil
}

func (a *Adapter) BurnSubtitles(ctx context.Context, inMP4, assPath, outMP4 string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inMP4,
		"-vf", "subtitles="+escapeFilterPath(assPath),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "copy",
		outMP4,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg burn subtitles: %w\n%s", err, tail(b))
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inMP4,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, tail(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
}

func (a *Adapter) Probe(ctx context.Context, path string) (types.MediaHandle, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	b, err := cmd.Output()
	if err != nil {
		return types.MediaHandle{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(path, b)
}

func parseProbe(path string, b []byte) (types.MediaHandle, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.MediaHandle{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	h := types.MediaHandle{Path: path, Format: out.Format.FormatName}
	videoFound := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !videoFound {
				videoFound = true
				h.Codec = s.CodecName
				h.Width = s.Width
				h.Height = s.Height
			}
		case "audio":
			h.HasAudio = true
		}
	}
	if !videoFound {
		return types.MediaHandle{}, fmt.Errorf("no video stream found in %s", path)
	}
	if sec, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		h.Duration = time.Duration(sec * float64(time.Second))
	}
	if size, err := strconv.ParseInt(out.Format.Size, 10, 64); err == nil {
		h.Size = size
	}
	return h, nil
}

// CropFilter builds the -vf chain that centre-crops a w x h frame to the
// target aspect ratio and scales it to the platform resolution.
func CropFilter(w, h int, aspect string) (string, error) {
	var (
		target     float64
		outW, outH int
	)
	switch aspect {
	case "", "original":
		return "scale=trunc(iw/2)*2:trunc(ih/2)*2", nil
	case "9:16":
		target, outW, outH = 9.0/16.0, 1080, 1920
	case "16:9":
		target, outW, outH = 16.0/9.0, 1920, 1080
	case "1:1":
		target, outW, outH = 1, 1080, 1080
	default:
		return "", fmt.Errorf("unsupported aspect ratio %q", aspect)
	}
	scale := fmt.Sprintf("scale=%d:%d", outW, outH)
	if w <= 0 || h <= 0 {
		return scale, nil
	}

	current := float64(w) / float64(h)
	if math.Abs(current-target) < 0.01 {
		return scale, nil
	}
	if current > target {
		newW := int(float64(h) * target)
		return fmt.Sprintf("crop=%d:%d:%d:0,%s", newW, h, (w-newW)/2, scale), nil
	}
	newH := int(float64(w) / target)
	return fmt.Sprintf("crop=%d:%d:0:%d,%s", w, newH, (h-newH)/2, scale), nil
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}

// tail keeps the end of ffmpeg's output, where the actual error is printed.
func tail(b []byte) string {
	const n = 2000
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
