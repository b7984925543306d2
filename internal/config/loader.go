package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration. path may name a YAML file; when
// empty the standard locations are searched. A .env file in the working
// directory is loaded if present.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // best-effort: load .env if present

	cfg := Default()
	if path == "" {
		path = FindFile()
	}
	if path != "" {
		var err error
		if cfg, err = LoadFile(path, cfg); err != nil {
			return Config{}, err
		}
	}
	cfg, err := FromEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// FindFile returns the first config file found in the standard locations, or
// "" when there is none.
func FindFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		"./autoclip.yaml",
		"./autoclip.yml",
	}
	if home != "" {
		locations = append(locations,
			filepath.Join(home, ".autoclip", "config.yaml"),
			filepath.Join(home, ".autoclip", "config.yml"),
		)
	}
	for _, p := range locations {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FromEnv overlays environment variables onto base. Malformed values are
// reported together.
func FromEnv(base Config) (Config, error) {
	e := env{}
	c := base

	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.Port = getEnv("PORT", c.Port)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)

	c.MaxFileSize = e.int64("MAX_FILE_SIZE", c.MaxFileSize)
	c.MinClipDuration = e.seconds("MIN_CLIP_DURATION", c.MinClipDuration)
	c.MaxClipDuration = e.seconds("MAX_CLIP_DURATION", c.MaxClipDuration)
	c.MaxTranscriptionChunkSize = e.int64("MAX_TRANSCRIPTION_CHUNK_SIZE", c.MaxTranscriptionChunkSize)

	c.MaxConcurrentChunks = e.int("MAX_CONCURRENT_CHUNKS", c.MaxConcurrentChunks)
	c.MaxConcurrentRenders = e.int("MAX_CONCURRENT_RENDERS", c.MaxConcurrentRenders)
	c.MaxConcurrentTasks = e.int("MAX_CONCURRENT_TASKS", c.MaxConcurrentTasks)

	c.DefaultAspectRatio = getEnv("DEFAULT_ASPECT_RATIO", c.DefaultAspectRatio)
	c.DefaultMaxClips = e.int("DEFAULT_MAX_CLIPS", c.DefaultMaxClips)

	c.FFmpegPreset = getEnv("FFMPEG_PRESET", c.FFmpegPreset)
	c.VideoQualityCRF = e.int("VIDEO_QUALITY_CRF", c.VideoQualityCRF)

	c.TaskTimeout = e.seconds("TASK_TIMEOUT", c.TaskTimeout)
	c.CallTimeout = e.seconds("CALL_TIMEOUT", c.CallTimeout)
	c.RenderTimeout = e.seconds("RENDER_TIMEOUT", c.RenderTimeout)
	c.CaptionPollInterval = e.seconds("CAPTION_POLL_INTERVAL", c.CaptionPollInterval)
	c.CaptionMaxPolls = e.int("CAPTION_MAX_POLLS", c.CaptionMaxPolls)
	c.CaptionTimeout = e.seconds("CAPTION_TIMEOUT", c.CaptionTimeout)
	c.TaskRetention = e.seconds("TASK_RETENTION", c.TaskRetention)

	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.FFprobePath = getEnv("FFPROBE_PATH", c.FFprobePath)
	c.WhisperBin = getEnv("WHISPER_BIN", c.WhisperBin)
	c.WhisperModel = getEnv("WHISPER_MODEL", c.WhisperModel)

	c.OpenRouter.APIKey = getEnv("OPENROUTER_API_KEY", c.OpenRouter.APIKey)
	c.OpenRouter.Model = getEnv("OPENROUTER_MODEL", c.OpenRouter.Model)
	c.OpenRouter.BaseURL = getEnv("OPENROUTER_BASE_URL", c.OpenRouter.BaseURL)
	if v := getEnv("OPENROUTER_ALLOWED_HOSTS", ""); v != "" {
		c.OpenRouter.AllowedHosts = splitList(v)
	}

	c.ZapCap.APIKey = getEnv("ZAPCAP_API_KEY", c.ZapCap.APIKey)
	c.ZapCap.BaseURL = getEnv("ZAPCAP_API_BASE", c.ZapCap.BaseURL)
	c.ZapCap.TemplateID = getEnv("ZAPCAP_TEMPLATE_ID", c.ZapCap.TemplateID)
	if v := getEnv("ZAPCAP_ALLOWED_HOSTS", ""); v != "" {
		c.ZapCap.AllowedHosts = splitList(v)
	}

	if len(e) > 0 {
		return Config{}, fmt.Errorf("environment: %w", errors.Join(e...))
	}
	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// env collects parse failures so every bad variable is reported at once.
type env []error

func (e *env) int(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		*e = append(*e, fmt.Errorf("%s=%q is not an integer", key, v))
		return fallback
	}
	return i
}

func (e *env) int64(key string, fallback int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*e = append(*e, fmt.Errorf("%s=%q is not an integer", key, v))
		return fallback
	}
	return i
}

// seconds accepts a bare number of seconds or a Go duration such as "90s".
func (e *env) seconds(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*e = append(*e, fmt.Errorf("%s=%q is not a duration", key, v))
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
