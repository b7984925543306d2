package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/autoclip/internal/ports/adapters/openrouter"
	"github.com/forPelevin/autoclip/internal/ports/adapters/zapcap"
)

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if strings.TrimSpace(c.DataDir) == "" {
		add("data dir is required")
	}
	if c.MaxFileSize <= 0 {
		add("max file size must be positive")
	}
	if c.MinClipDuration <= 0 {
		add("min clip duration must be positive")
	}
	if c.MaxClipDuration <= 0 {
		add("max clip duration must be positive")
	}
	if c.MinClipDuration > c.MaxClipDuration {
		add("min clip duration (%s) must not exceed max clip duration (%s)", c.MinClipDuration, c.MaxClipDuration)
	}
	if c.MaxTranscriptionChunkSize < 64*KiB {
		add("max transcription chunk size must be at least 64KiB")
	}
	if c.MaxConcurrentChunks <= 0 {
		add("max concurrent chunks must be positive")
	}
	if c.MaxConcurrentRenders <= 0 {
		add("max concurrent renders must be positive")
	}
	if c.MaxConcurrentTasks <= 0 {
		add("max concurrent tasks must be positive")
	}
	if !IsValidAspectRatio(c.DefaultAspectRatio) {
		add("invalid default aspect ratio %q, must be one of: %s", c.DefaultAspectRatio, strings.Join(AspectRatios(), ", "))
	}
	if c.DefaultMaxClips <= 0 {
		add("default max clips must be positive")
	}
	if c.FFmpegPreset == "" {
		add("ffmpeg preset is required")
	}
	if c.VideoQualityCRF < 0 || c.VideoQualityCRF > 51 {
		add("video quality CRF must be between 0 and 51")
	}
	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"call timeout", c.CallTimeout},
		{"render timeout", c.RenderTimeout},
		{"caption poll interval", c.CaptionPollInterval},
		{"caption timeout", c.CaptionTimeout},
	} {
		if t.d <= 0 {
			add("%s must be positive", t.name)
		}
	}
	if c.TaskTimeout < 0 || c.TaskRetention < 0 {
		add("task timeout and retention cannot be negative (use 0 to disable)")
	}
	if c.CaptionMaxPolls <= 0 {
		add("caption max polls must be positive")
	}
	if c.WhisperModel == "" {
		add("whisper model path is required")
	}
	if c.OpenRouter.APIKey != "" {
		if err := openrouter.BaseURL.Check(c.OpenRouter.BaseURL, c.OpenRouter.AllowedHosts); err != nil {
			add("openrouter: %v", err)
		}
	}
	if c.ZapCap.APIKey != "" {
		if err := zapcap.BaseURL.Check(c.ZapCap.BaseURL, c.ZapCap.AllowedHosts); err != nil {
			add("zapcap: %v", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
