// Package usecase sequences the stages of one clip-generation task.
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/autoclip/internal/caption"
	"github.com/forPelevin/autoclip/internal/domain/highlights"
	"github.com/forPelevin/autoclip/internal/media"
	"github.com/forPelevin/autoclip/internal/render"
	"github.com/forPelevin/autoclip/internal/transcribe"
	"github.com/forPelevin/autoclip/internal/types"
)

// Stage names as reported on the task.
const (
	StageAcquire    = "acquire"
	StageTranscribe = "transcribe"
	StageAnalyze    = "analyze"
	StageRender     = "render"
	StageCaption    = "caption"
	StageFinalize   = "finalize"
)

type Deps struct {
	Acquirer    *media.Acquirer
	Transcriber *transcribe.Transcriber
	Selector    highlights.Selector
	Renderer    *render.Renderer
	Captions    *caption.Stage
	Log         zerolog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	TaskID    string
	Source    media.Source
	Workspace *media.Workspace
	OutDir    string

	MaxClips        int
	AspectRatio     string
	UseCaptions     bool
	CaptionTemplate string
	CaptionLanguage string
}

// Event is a progress report from a running stage.
type Event struct {
	Stage    string
	Progress float64
	Message  string
}

type Reporter func(Event)

// progress bands per stage; captioning takes the render band's tail when on.
var bands = map[string][2]float64{
	StageAcquire:    {0, 0.10},
	StageTranscribe: {0.10, 0.50},
	StageAnalyze:    {0.50, 0.55},
	StageRender:     {0.55, 0.95},
	StageCaption:    {0.80, 0.95},
	StageFinalize:   {0.95, 1},
}

// Run drives one task through every stage. Acquisition, transcription and
// analysis errors end the run; render and caption errors stay on their clip.
func (u Usecase) Run(ctx context.Context, in Input, report Reporter) (*types.Result, error) {
	if report == nil {
		report = func(Event) {}
	}
	log := u.d.Log.With().Str("task_id", in.TaskID).Logger()
	emit := func(stage string, frac float64, format string, args ...any) {
		b := bands[stage]
		report(Event{Stage: stage, Progress: b[0] + (b[1]-b[0])*frac, Message: fmt.Sprintf(format, args...)})
	}

	emit(StageAcquire, 0, "acquiring %s", in.Source.Kind)
	src, err := u.d.Acquirer.Resolve(ctx, in.Source, in.Workspace)
	if err != nil {
		return nil, err
	}
	emit(StageAcquire, 1, "acquired %s of media", src.Duration.Round(time.Second))

	emit(StageTranscribe, 0, "transcribing audio")
	tr, err := u.d.Transcriber.Transcribe(ctx, src, in.Workspace.Dir(), func(done, total int) {
		emit(StageTranscribe, float64(done)/float64(total), "transcribed %d/%d chunks", done, total)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int("segments", len(tr.Segments)).Msg("transcript ready")

	emit(StageAnalyze, 0, "selecting highlights")
	segs, err := u.d.Selector.Select(ctx, tr, in.MaxClips, src.Duration)
	if err != nil {
		return nil, err
	}
	emit(StageAnalyze, 1, "selected %d segments", len(segs))

	renderBand := 1.0
	if in.UseCaptions {
		renderBand = 0.625 // render ends where the caption band starts
	}
	var rendered int
	clips := u.d.Renderer.RenderAll(ctx, render.Request{
		Source:      src,
		Segments:    segs,
		AspectRatio: in.AspectRatio,
		OutDir:      in.OutDir,
	}, func(c types.Clip) {
		if c.State == types.ClipRendered || c.State == types.ClipFailed {
			rendered++
			emit(StageRender, renderBand*float64(rendered)/float64(len(segs)), "rendered %d/%d clips", rendered, len(segs))
		}
	})

	if in.UseCaptions {
		var captioned int
		emit(StageCaption, 0, "captioning clips")
		clips = u.d.Captions.CaptionAll(ctx, clips, caption.Request{
			AspectRatio: in.AspectRatio,
			TemplateID:  in.CaptionTemplate,
			Language:    in.CaptionLanguage,
			Transcript:  tr,
		}, func(c types.Clip) {
			if c.State == types.ClipDone {
				captioned++
				emit(StageCaption, float64(captioned)/float64(len(segs)), "captioned %d clips", captioned)
			}
		})
	} else {
		clips = caption.Finish(clips)
	}

	emit(StageFinalize, 0, "finalizing")
	renderFailed := render.Failures(clips)
	captionFailed := caption.Failures(clips)
	res := &types.Result{
		Clips:  []types.Clip{},
		Errors: append(renderFailed, captionFailed...),
		Source: types.SourceInfo{
			DurationSec: src.Duration.Seconds(),
			Width:       src.Width,
			Height:      src.Height,
			Codec:       src.Codec,
			HasAudio:    src.HasAudio,
			SizeBytes:   src.Size,
		},
		Transcript: tr.Text,
	}
	if res.Errors == nil {
		res.Errors = []types.ClipFailure{}
	}
	var total time.Duration
	for _, c := range clips {
		if c.State != types.ClipDone {
			continue
		}
		res.Clips = append(res.Clips, c)
		total += c.Segment.Duration()
	}
	res.Summary = types.Summary{
		ClipsCreated:      len(res.Clips),
		ClipsFailed:       len(renderFailed),
		CaptionsFailed:    len(captionFailed),
		TotalClipDuration: total.Seconds(),
		CaptionsRequested: in.UseCaptions,
		AspectRatio:       in.AspectRatio,
	}
	log.Info().Int("clips", len(res.Clips)).Int("failed", len(renderFailed)).Int("captions_failed", len(captionFailed)).Msg("task finished")
	return res, nil
}
