package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/autoclip/internal/caption"
	"github.com/forPelevin/autoclip/internal/config"
	"github.com/forPelevin/autoclip/internal/domain/highlights"
	"github.com/forPelevin/autoclip/internal/domain/subtitles"
	"github.com/forPelevin/autoclip/internal/media"
	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/autoclip/internal/ports/adapters/heuristic"
	"github.com/forPelevin/autoclip/internal/ports/adapters/localcaption"
	"github.com/forPelevin/autoclip/internal/ports/adapters/openrouter"
	"github.com/forPelevin/autoclip/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/autoclip/internal/ports/adapters/zapcap"
	"github.com/forPelevin/autoclip/internal/render"
	"github.com/forPelevin/autoclip/internal/retry"
	"github.com/forPelevin/autoclip/internal/storage"
	"github.com/forPelevin/autoclip/internal/task"
	"github.com/forPelevin/autoclip/internal/transcribe"
	"github.com/forPelevin/autoclip/internal/usecase"
)

// Build wires the adapters chosen by cfg into a ready coordinator.
func Build(cfg config.Config, log zerolog.Logger) (*Coordinator, error) {
	files, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	// adapters
	video := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	asr := whispercpp.New(cfg.WhisperBin, cfg.WhisperModel)

	var scorer ports.HighlightScorer = heuristic.New()
	if cfg.OpenRouter.APIKey != "" {
		scorer = openrouter.New(cfg.OpenRouter.APIKey, cfg.OpenRouter.Model, cfg.OpenRouter.BaseURL).
			WithPolicy(retry.Policy{MaxAttempts: 2, Backoff: []time.Duration{2 * time.Second}, Timeout: cfg.CallTimeout}).
			WithLogger(log.With().Str("adapter", "openrouter").Logger())
		log.Info().Str("model", cfg.OpenRouter.Model).Msg("highlight scoring via openrouter")
	} else {
		log.Info().Msg("highlight scoring via local heuristic")
	}

	var (
		captioner ports.Captioner
		templates []string
	)
	if cfg.ZapCap.APIKey != "" {
		captioner = zapcap.New(cfg.ZapCap.APIKey, cfg.ZapCap.BaseURL, cfg.ZapCap.TemplateID).
			WithPolicy(retry.Policy{MaxAttempts: 2, Backoff: []time.Duration{time.Second}, Timeout: cfg.CallTimeout}).
			WithLogger(log.With().Str("adapter", "zapcap").Logger())
		log.Info().Msg("captions via zapcap")
	} else {
		captioner = localcaption.New(video)
		templates = subtitles.Templates()
		log.Info().Msg("captions via local subtitle burn-in")
	}

	uc := usecase.New(usecase.Deps{
		Acquirer: media.NewAcquirer(video, cfg.MaxFileSize, log.With().Str("stage", usecase.StageAcquire).Logger()),
		Transcriber: &transcribe.Transcriber{
			Audio:         video,
			ASR:           asr,
			MaxChunkBytes: cfg.MaxTranscriptionChunkSize,
			MaxConcurrent: cfg.MaxConcurrentChunks,
			Policy:        transcribe.DefaultPolicy(cfg.CallTimeout),
			Log:           log.With().Str("stage", usecase.StageTranscribe).Logger(),
		},
		Selector: highlights.Selector{
			Scorer:  scorer,
			MinClip: cfg.MinClipDuration,
			MaxClip: cfg.MaxClipDuration,
		},
		Renderer: &render.Renderer{
			Encoder:       video,
			MaxConcurrent: cfg.MaxConcurrentRenders,
			Preset:        cfg.FFmpegPreset,
			CRF:           cfg.VideoQualityCRF,
			Policy:        retry.Once(cfg.RenderTimeout),
			Log:           log.With().Str("stage", usecase.StageRender).Logger(),
		},
		Captions: &caption.Stage{
			Captioner:     captioner,
			PollInterval:  cfg.CaptionPollInterval,
			MaxPolls:      cfg.CaptionMaxPolls,
			Timeout:       cfg.CaptionTimeout,
			MaxConcurrent: cfg.MaxConcurrentRenders,
			Log:           log.With().Str("stage", usecase.StageCaption).Logger(),
		},
		Log: log,
	})

	c := New(task.NewStore(), files, uc, Options{
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
		TaskTimeout:        cfg.TaskTimeout,
		TaskRetention:      cfg.TaskRetention,
		MaxFileSize:        cfg.MaxFileSize,
		DefaultMaxClips:    cfg.DefaultMaxClips,
		DefaultAspectRatio: cfg.DefaultAspectRatio,
		CaptionTemplates:   templates,
	}, log)
	log.Info().Str("data_dir", files.BasePath()).Int("max_concurrent_tasks", cfg.MaxConcurrentTasks).Msg("coordinator ready")
	return c, nil
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.HighlightScorer = (*openrouter.Adapter)(nil)
var _ ports.HighlightScorer = (*heuristic.Adapter)(nil)
var _ ports.Captioner = (*zapcap.Adapter)(nil)
var _ ports.Captioner = (*localcaption.Adapter)(nil)
var _ Runner = usecase.Usecase{}
