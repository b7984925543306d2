// Package config loads service settings from defaults, an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"slices"
	"time"
)

type Config struct {
	AppEnv  string `yaml:"app_env"`
	Port    string `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	// Limits
	MaxFileSize               int64         `yaml:"max_file_size"`
	MinClipDuration           time.Duration `yaml:"min_clip_duration"`
	MaxClipDuration           time.Duration `yaml:"max_clip_duration"`
	MaxTranscriptionChunkSize int64         `yaml:"max_transcription_chunk_size"`

	// Concurrency
	MaxConcurrentChunks  int `yaml:"max_concurrent_chunks"`
	MaxConcurrentRenders int `yaml:"max_concurrent_renders"`
	MaxConcurrentTasks   int `yaml:"max_concurrent_tasks"`

	// Submission defaults
	DefaultAspectRatio string `yaml:"default_aspect_ratio"`
	DefaultMaxClips    int    `yaml:"default_max_clips"`

	// Encoding
	FFmpegPreset    string `yaml:"ffmpeg_preset"`
	VideoQualityCRF int    `yaml:"video_quality_crf"`

	// Timeouts
	TaskTimeout         time.Duration `yaml:"task_timeout"`
	CallTimeout         time.Duration `yaml:"call_timeout"`
	RenderTimeout       time.Duration `yaml:"render_timeout"`
	CaptionPollInterval time.Duration `yaml:"caption_poll_interval"`
	CaptionMaxPolls     int           `yaml:"caption_max_polls"`
	CaptionTimeout      time.Duration `yaml:"caption_timeout"`
	TaskRetention       time.Duration `yaml:"task_retention"`

	// Tools
	FFmpegPath   string `yaml:"ffmpeg_path"`
	FFprobePath  string `yaml:"ffprobe_path"`
	WhisperBin   string `yaml:"whisper_bin"`
	WhisperModel string `yaml:"whisper_model"`

	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	ZapCap     ZapCapConfig     `yaml:"zapcap"`
}

type OpenRouterConfig struct {
	APIKey       string   `yaml:"api_key"`
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

type ZapCapConfig struct {
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url"`
	TemplateID   string   `yaml:"template_id"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

const (
	KiB = 1 << 10
	MiB = 1 << 20
)

// Default returns the built-in settings.
func Default() Config {
	return Config{
		AppEnv:  "development",
		Port:    "8080",
		DataDir: "data",

		MaxFileSize:               500 * MiB,
		MinClipDuration:           10 * time.Second,
		MaxClipDuration:           120 * time.Second,
		MaxTranscriptionChunkSize: 20 * MiB,

		MaxConcurrentChunks:  5,
		MaxConcurrentRenders: 2,
		MaxConcurrentTasks:   4,

		DefaultAspectRatio: "9:16",
		DefaultMaxClips:    5,

		FFmpegPreset:    "fast",
		VideoQualityCRF: 23,

		TaskTimeout:         3 * time.Hour,
		CallTimeout:         90 * time.Second,
		RenderTimeout:       15 * time.Minute,
		CaptionPollInterval: 5 * time.Second,
		CaptionMaxPolls:     120,
		CaptionTimeout:      600 * time.Second,
		TaskRetention:       24 * time.Hour,

		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		WhisperBin:   ".cache/bin/whisper.cpp",
		WhisperModel: ".cache/models/ggml-base.bin",

		OpenRouter: OpenRouterConfig{
			Model:   "z-ai/glm-4.5-air:free",
			BaseURL: "https://openrouter.ai",
		},
		ZapCap: ZapCapConfig{
			BaseURL: "https://api.zapcap.ai",
		},
	}
}

// AspectRatios lists the accepted output frame shapes.
func AspectRatios() []string { return []string{"9:16", "16:9", "1:1", "original"} }

func IsValidAspectRatio(s string) bool { return slices.Contains(AspectRatios(), s) }

func (c Config) Development() bool { return c.AppEnv == "development" }
