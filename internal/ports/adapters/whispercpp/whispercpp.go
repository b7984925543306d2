// Package whispercpp runs a local whisper.cpp binary as the speech-to-text
// capability.
package whispercpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/autoclip/internal/retry"
	"github.com/forPelevin/autoclip/internal/types"
)

type Adapter struct {
	bin   string
	model string

	// Threads is passed as -t when positive.
	Threads int
	// Language is passed as -l when set; whisper.cpp defaults to English.
	Language string
}

func New(binPath, modelPath string) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &Adapter{bin: binPath, model: modelPath}
}

// Transcribe runs whisper.cpp on one wav file. Output lands in cacheDir, so
// concurrent calls must use distinct directories. A run that exits cleanly
// but leaves no output is reported as transient.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper cache dir: %w", err)
	}
	prefix := filepath.Join(cacheDir, "whisper")
	out, err := exec.CommandContext(ctx, a.bin, a.args(wavPath, prefix)...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return types.Transcript{}, fmt.Errorf("whisper.cpp interrupted: %w", ctx.Err())
		}
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, lastBytes(out, 2000))
	}

	raw, err := os.ReadFile(prefix + ".json")
	if errors.Is(err, fs.ErrNotExist) {
		return types.Transcript{}, retry.Transient(fmt.Errorf("whisper.cpp wrote no output for %s", filepath.Base(wavPath)))
	}
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}
	return decode(raw)
}

func (a *Adapter) args(wavPath, prefix string) []string {
	args := []string{"-m", a.model, "-f", wavPath, "-oj", "-of", prefix, "-owts"}
	if a.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(a.Threads))
	}
	if a.Language != "" {
		args = append(args, "-l", a.Language)
	}
	return args
}

// decode reads whisper's JSON output, trimming the leading spaces whisper
// puts on every token and filling Text when the file lacks it.
func decode(raw []byte) (types.Transcript, error) {
	var tr types.Transcript
	if err := json.Unmarshal(raw, &tr); err != nil {
		return types.Transcript{}, fmt.Errorf("decode whisper output: %w", err)
	}
	var text []string
	for i := range tr.Segments {
		seg := &tr.Segments[i]
		seg.Text = strings.TrimSpace(seg.Text)
		for j := range seg.Words {
			seg.Words[j].Word = strings.TrimSpace(seg.Words[j].Word)
		}
		if seg.Text != "" {
			text = append(text, seg.Text)
		}
	}
	if tr.Text = strings.TrimSpace(tr.Text); tr.Text == "" {
		tr.Text = strings.Join(text, " ")
	}
	return tr, nil
}

func lastBytes(b []byte, n int) string {
	return string(b[max(0, len(b)-n):])
}
