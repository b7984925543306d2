// Package pipeline owns task lifecycles: it accepts submissions, runs each
// task through the stages in a bounded pool and keeps the task store current.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/forPelevin/autoclip/internal/config"
	"github.com/forPelevin/autoclip/internal/media"
	"github.com/forPelevin/autoclip/internal/storage"
	"github.com/forPelevin/autoclip/internal/task"
	"github.com/forPelevin/autoclip/internal/types"
	"github.com/forPelevin/autoclip/internal/usecase"
)

var (
	// ErrInvalidSubmission wraps every submit-time validation failure.
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrShuttingDown      = errors.New("coordinator is shutting down")
)

// Runner executes the stages of one task.
type Runner interface {
	Run(ctx context.Context, in usecase.Input, report usecase.Reporter) (*types.Result, error)
}

type Options struct {
	MaxConcurrentTasks int
	TaskTimeout        time.Duration
	TaskRetention      time.Duration
	MaxFileSize        int64

	DefaultMaxClips    int
	DefaultAspectRatio string
	// CaptionTemplates restricts caption_template_id when non-nil.
	CaptionTemplates []string
}

// Submission is one request for clips, before defaults are applied.
type Submission struct {
	Source          media.Source
	MaxClips        int
	AspectRatio     string
	UseCaptions     bool
	CaptionTemplate string
	CaptionLanguage string
}

type SubmitResult struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

type Coordinator struct {
	store  *task.Store
	files  *storage.FileStore
	runner Runner
	opts   Options
	log    zerolog.Logger

	pool   *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func New(store *task.Store, files *storage.FileStore, runner Runner, opts Options, log zerolog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:  store,
		files:  files,
		runner: runner,
		opts:   opts,
		log:    log,
		pool:   semaphore.NewWeighted(int64(max(1, opts.MaxConcurrentTasks))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SpoolUpload stores an upload body so it can be submitted as a source.
func (c *Coordinator) SpoolUpload(ctx context.Context, r io.Reader, filename string) (media.Source, error) {
	return media.SpoolUpload(ctx, c.files, r, filename, c.opts.MaxFileSize)
}

// Submit validates sub, registers a pending task and starts it in the
// background.
func (c *Coordinator) Submit(sub Submission) (SubmitResult, error) {
	sub, err := c.normalize(sub)
	if err != nil {
		discardSpool(sub.Source)
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		discardSpool(sub.Source)
		return SubmitResult{}, ErrShuttingDown
	}

	now := time.Now().UTC()
	meta := sub.Source.Metadata()
	meta["max_clips"] = strconv.Itoa(sub.MaxClips)
	meta["aspect_ratio"] = sub.AspectRatio
	meta["use_captions"] = strconv.FormatBool(sub.UseCaptions)
	if sub.UseCaptions {
		meta["caption_template_id"] = sub.CaptionTemplate
		meta["caption_language"] = sub.CaptionLanguage
	}
	id, err := c.store.Create(sub.Source.Kind, meta)
	if err != nil {
		discardSpool(sub.Source)
		return SubmitResult{}, err
	}
	outKey := buildRunOutDir(storage.ClipsDir, sub.Source.Name(), id, now)
	c.store.Update(id, func(t *task.Task) { t.Metadata["output_dir"] = outKey })

	c.log.Info().Str("task_id", id).Str("kind", string(sub.Source.Kind)).Int("max_clips", sub.MaxClips).Msg("task submitted")
	c.wg.Add(1)
	go c.run(id, sub, outKey)
	return SubmitResult{TaskID: id, Status: task.StatusPending}, nil
}

func (c *Coordinator) normalize(sub Submission) (Submission, error) {
	if err := sub.Source.Validate(); err != nil {
		return sub, err
	}
	if sub.MaxClips == 0 {
		sub.MaxClips = c.opts.DefaultMaxClips
	}
	if sub.MaxClips <= 0 || sub.MaxClips > 50 {
		return sub, fmt.Errorf("max_clips must be between 1 and 50, got %d", sub.MaxClips)
	}
	if sub.AspectRatio == "" {
		sub.AspectRatio = c.opts.DefaultAspectRatio
	}
	if !config.IsValidAspectRatio(sub.AspectRatio) {
		return sub, fmt.Errorf("aspect_ratio %q must be one of: %s", sub.AspectRatio, strings.Join(config.AspectRatios(), ", "))
	}
	if sub.UseCaptions {
		if sub.CaptionTemplate != "" && c.opts.CaptionTemplates != nil && !slices.Contains(c.opts.CaptionTemplates, sub.CaptionTemplate) {
			return sub, fmt.Errorf("caption_template_id %q must be one of: %s", sub.CaptionTemplate, strings.Join(c.opts.CaptionTemplates, ", "))
		}
		if sub.CaptionLanguage == "" {
			sub.CaptionLanguage = "en"
		}
	}
	return sub, nil
}

func (c *Coordinator) run(id string, sub Submission, outKey string) {
	defer c.wg.Done()
	log := c.log.With().Str("task_id", id).Logger()

	if err := c.pool.Acquire(c.ctx, 1); err != nil {
		discardSpool(sub.Source)
		c.fail(id, usecase.StageAcquire, fmt.Errorf("not started: %w", err))
		return
	}
	defer c.pool.Release(1)

	ctx := c.ctx
	if c.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.TaskTimeout)
		defer cancel()
	}

	ws, err := media.NewWorkspace(c.files, id)
	if err != nil {
		discardSpool(sub.Source)
		c.fail(id, usecase.StageAcquire, types.AcquisitionError("create workspace", err))
		return
	}
	defer func() {
		if err := ws.Release(); err != nil {
			log.Warn().Err(err).Msg("workspace cleanup failed")
		}
	}()
	outDir, err := c.files.Dir(outKey)
	if err != nil {
		discardSpool(sub.Source)
		c.fail(id, usecase.StageAcquire, types.AcquisitionError("create output dir", err))
		return
	}

	var (
		stageMu sync.Mutex
		stage   = usecase.StageAcquire
	)
	c.store.Update(id, func(t *task.Task) {
		t.Status = task.StatusProcessing
		t.Stage = stage
		t.Message = "started"
	})
	report := func(e usecase.Event) {
		stageMu.Lock()
		stage = e.Stage
		stageMu.Unlock()
		c.store.Update(id, func(t *task.Task) {
			t.Stage = e.Stage
			t.Progress = max(t.Progress, e.Progress)
			t.Message = e.Message
		})
	}

	started := time.Now()
	res, err := c.runner.Run(ctx, usecase.Input{
		TaskID:          id,
		Source:          sub.Source,
		Workspace:       ws,
		OutDir:          outDir,
		MaxClips:        sub.MaxClips,
		AspectRatio:     sub.AspectRatio,
		UseCaptions:     sub.UseCaptions,
		CaptionTemplate: sub.CaptionTemplate,
		CaptionLanguage: sub.CaptionLanguage,
	}, report)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = overBudget(err, c.opts.TaskTimeout)
		}
		stageMu.Lock()
		failedStage := stage
		stageMu.Unlock()
		c.fail(id, failedStage, err)
		return
	}

	res.Manifest = c.writeManifest(ctx, id, outKey, res, log)
	applied, _ := c.store.Update(id, func(t *task.Task) {
		t.Status = task.StatusCompleted
		t.Stage = usecase.StageFinalize
		t.Progress = 1
		t.Message = fmt.Sprintf("%d clip(s) created, %d failed", res.Summary.ClipsCreated, res.Summary.ClipsFailed)
		t.Result = res
	})
	if !applied {
		log.Warn().Msg("task already terminal, result discarded")
		return
	}
	log.Info().Dur("elapsed", time.Since(started)).Int("clips", res.Summary.ClipsCreated).Msg("task completed")
}

func (c *Coordinator) fail(id, stage string, err error) {
	summary := types.Summarize(id, stage, err)
	applied, _ := c.store.Update(id, func(t *task.Task) {
		t.Status = task.StatusFailed
		if summary.Stage != "" {
			t.Stage = summary.Stage
		}
		t.Message = summary.Message
		t.Error = summary
	})
	if applied {
		c.log.Warn().Str("task_id", id).Str("stage", summary.Stage).Str("kind", string(summary.Kind)).Msg(summary.Message)
	}
}

type manifest struct {
	TaskID string         `json:"task_id"`
	Result *types.Result  `json:"result"`
	Meta   map[string]any `json:"meta"`
}

// writeManifest stores the result next to the clips and returns its key, or
// "" when it could not be written.
func (c *Coordinator) writeManifest(ctx context.Context, id, outKey string, res *types.Result, log zerolog.Logger) string {
	b, err := json.MarshalIndent(manifest{
		TaskID: id,
		Result: res,
		Meta:   map[string]any{"generated_at": time.Now().UTC()},
	}, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("marshal manifest")
		return ""
	}
	key, err := c.files.Write(ctx, path.Join(outKey, "manifest.json"), b)
	if err != nil {
		log.Warn().Err(err).Msg("write manifest")
		return ""
	}
	log.Info().Str("manifest", key).Int("clips", len(res.Clips)).Msg("manifest written")
	return key
}

// Status returns the polling view of one task.
func (c *Coordinator) Status(id string) (task.StatusView, error) {
	t, err := c.store.Get(id)
	if err != nil {
		return task.StatusView{}, err
	}
	return t.StatusView(), nil
}

// List returns task summaries ordered by creation time.
func (c *Coordinator) List(kind types.SourceKind) []task.Summary {
	tasks := c.store.List(kind)
	out := make([]task.Summary, len(tasks))
	for i, t := range tasks {
		out[i] = t.Summary()
	}
	return out
}

// ClipsRoot is the directory holding every task's output.
func (c *Coordinator) ClipsRoot() (string, error) { return c.files.Dir(storage.ClipsDir) }

// RunRetention evicts old terminal tasks until ctx is done.
func (c *Coordinator) RunRetention(ctx context.Context) {
	ttl := c.opts.TaskRetention
	if ttl <= 0 {
		return
	}
	interval := min(max(ttl/24, time.Minute), time.Hour)
	c.store.RunRetention(ctx, interval, ttl, func(t task.Task) {
		if err := c.files.RemoveAll(path.Join(storage.WorkDir, t.ID)); err != nil {
			c.log.Warn().Err(err).Str("task_id", t.ID).Msg("retention cleanup failed")
			return
		}
		c.log.Debug().Str("task_id", t.ID).Msg("task evicted")
	})
}

// Shutdown stops accepting work, fails every unfinished task and waits for
// the running ones to return or ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	for _, t := range c.store.List("") {
		if t.Status.Terminal() {
			continue
		}
		stage := t.Stage
		c.store.Update(t.ID, func(t *task.Task) {
			t.Status = task.StatusFailed
			t.Message = "service shutting down"
			t.Error = &types.TaskError{Kind: types.KindCancelled, Stage: stage, Message: fmt.Sprintf("task=%s stage=%s: service shutting down", t.ID, stage)}
		})
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// overBudget notes the task deadline on err, keeping its classification.
func overBudget(err error, budget time.Duration) error {
	var se *types.StageError
	if errors.As(err, &se) {
		tagged := *se
		tagged.Msg = fmt.Sprintf("task exceeded its %s budget: %s", budget, se.Msg)
		return &tagged
	}
	return fmt.Errorf("task exceeded its %s budget: %w", budget, err)
}

// discardSpool removes an upload that will never reach acquisition.
func discardSpool(src media.Source) {
	if src.Kind == types.KindUpload && src.Path != "" {
		os.Remove(src.Path)
	}
}

// buildRunOutDir names a task's output directory after its input, the
// submission time and a short hash that keeps reruns apart.
func buildRunOutDir(outRoot, inputName, taskID string, now time.Time) string {
	name := strings.TrimSuffix(path.Base(inputName), path.Ext(inputName))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%s|%d", inputName, taskID, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return path.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
