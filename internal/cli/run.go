package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/autoclip/internal/logging"
	"github.com/forPelevin/autoclip/internal/media"
	"github.com/forPelevin/autoclip/internal/pipeline"
	"github.com/forPelevin/autoclip/internal/task"
)

const pollEvery = 500 * time.Millisecond

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file-or-url>",
		Short: "Process one video in the foreground and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	// Visible flags
	cmd.Flags().Int("clips", 0, "Number of clips (default: DEFAULT_MAX_CLIPS)")
	cmd.Flags().String("aspect", "", "Aspect ratio: 9:16, 16:9, 1:1 or original")
	cmd.Flags().Bool("captions", false, "Caption every rendered clip")
	cmd.Flags().String("template", "", "Caption template id")
	cmd.Flags().String("data-dir", "", "Working and output directory (overrides DATA_DIR)")

	// Hidden tuning flag (internal)
	cmd.Flags().Bool("verbose", false, "Log pipeline internals to stderr")
	_ = cmd.Flags().MarkHidden("verbose")
	return cmd
}

func run(cmd *cobra.Command, input string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	clipsN, _ := cmd.Flags().GetInt("clips")
	aspect, _ := cmd.Flags().GetString("aspect")
	captions, _ := cmd.Flags().GetBool("captions")
	template, _ := cmd.Flags().GetString("template")
	verbose, _ := cmd.Flags().GetBool("verbose")

	log := logging.Nop()
	if verbose {
		log = logging.New(cfg.AppEnv, cmd.ErrOrStderr())
	}

	src, err := sourceFor(input)
	if err != nil {
		return err
	}

	coord, err := pipeline.Build(cfg, log)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	}()

	sub, err := coord.Submit(pipeline.Submission{
		Source:          src,
		MaxClips:        clipsN,
		AspectRatio:     aspect,
		UseCaptions:     captions,
		CaptionTemplate: template,
	})
	if err != nil {
		return err
	}

	view, err := follow(cmd.Context(), coord, sub.TaskID, logf(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		return err
	}
	if view.Status == task.StatusFailed {
		return fmt.Errorf("task %s failed: %s", view.ID, view.Error.Message)
	}
	return nil
}

// sourceFor treats http(s) inputs as URLs and everything else as a local path.
func sourceFor(input string) (media.Source, error) {
	if u, err := url.Parse(input); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return media.FromURL(input), nil
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return media.Source{}, err
	}
	if _, err := os.Stat(abs); err != nil {
		return media.Source{}, fmt.Errorf("input: %w", err)
	}
	return media.FromFile(abs), nil
}

type statusSource interface {
	Status(id string) (task.StatusView, error)
}

// follow polls id until it is terminal, reporting each stage or progress
// change.
func follow(ctx context.Context, src statusSource, id string, report func(format string, args ...any)) (task.StatusView, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	t := time.NewTicker(pollEvery)
	defer t.Stop()

	var last string
	for {
		v, err := src.Status(id)
		if err != nil {
			return v, err
		}
		line := fmt.Sprintf("[%3.0f%%] %s", v.Progress*100, strings.TrimSpace(v.Stage+" "+v.Message))
		if line != last {
			report("%s", line)
			last = line
		}
		if v.Status.Terminal() {
			if v.Status == task.StatusFailed && v.Error == nil {
				return v, errors.New("task failed without an error summary")
			}
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-t.C:
		}
	}
}

func logf(w io.Writer) func(format string, args ...any) {
	return func(format string, args ...any) {
		fmt.Fprintf(w, format+"\n", args...)
	}
}
