// Package transcribe turns a task's audio into one transcript by splitting it
// into size-bounded chunks and transcribing them concurrently.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/retry"
	"github.com/forPelevin/autoclip/internal/types"
)

type Transcriber struct {
	Audio ports.AudioTool
	ASR   ports.ASR

	// MaxChunkBytes bounds the wav bytes handed to one ASR call.
	MaxChunkBytes int64
	// MaxConcurrent is the number of chunks allowed in flight at once.
	MaxConcurrent int
	Policy        retry.Policy
	Log           zerolog.Logger
}

// DefaultPolicy retries a chunk once after a short pause.
func DefaultPolicy(callTimeout time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: 2,
		Backoff:     []time.Duration{time.Second},
		Timeout:     callTimeout,
	}
}

// Progress is told how many chunks have finished out of total.
type Progress func(done, total int)

// Transcribe extracts the audio of media into dir, splits it and transcribes
// the chunks. Any chunk that exhausts its retries fails the whole call with a
// transcription error; the remaining chunks are cancelled.
func (t *Transcriber) Transcribe(ctx context.Context, media types.MediaHandle, dir string, progress Progress) (types.Transcript, error) {
	if !media.HasAudio {
		return types.Transcript{}, types.TranscriptionError("source has no audio track", nil)
	}
	wav := filepath.Join(dir, "audio.wav")
	if err := t.Audio.ExtractAudioMono16k(ctx, media.Path, wav); err != nil {
		return types.Transcript{}, types.TranscriptionError("extract audio", err)
	}
	st, err := os.Stat(wav)
	if err != nil {
		return types.Transcript{}, types.TranscriptionError("extract audio", err)
	}
	dur, err := t.Audio.ProbeDuration(ctx, wav)
	if err != nil {
		return types.Transcript{}, types.TranscriptionError("probe audio", err)
	}

	chunks := PlanChunks(dur, st.Size(), t.MaxChunkBytes)
	if len(chunks) == 0 {
		return types.Transcript{}, types.TranscriptionError("chunking produced zero chunks", nil)
	}
	t.Log.Info().Int("chunks", len(chunks)).Dur("audio", dur).Int64("bytes", st.Size()).Msg("transcribing")

	if err := t.run(ctx, wav, dir, chunks, progress); err != nil {
		return types.Transcript{}, err
	}
	return Merge(chunks), nil
}

func (t *Transcriber) run(ctx context.Context, wav, dir string, chunks []Chunk, progress Progress) error {
	width := t.MaxConcurrent
	if width <= 0 {
		width = 1
	}
	gate := semaphore.NewWeighted(int64(width))
	g, gctx := errgroup.WithContext(ctx)
	var done atomic.Int32

	for i := range chunks {
		c := &chunks[i]
		g.Go(func() error {
			if err := gate.Acquire(gctx, 1); err != nil {
				return err
			}
			defer gate.Release(1)

			if err := t.transcribeChunk(gctx, wav, dir, c, len(chunks)); err != nil {
				return err
			}
			n := done.Add(1)
			if progress != nil {
				progress(int(n), len(chunks))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if _, ok := types.KindOf(err); ok {
			return err
		}
		return types.TranscriptionError("transcription interrupted", err)
	}
	return nil
}

func (t *Transcriber) transcribeChunk(ctx context.Context, wav, dir string, c *Chunk, total int) error {
	log := t.Log.With().Int("chunk", c.Index).Logger()
	chunkDir := filepath.Join(dir, "chunk_"+strconv.Itoa(c.Index))
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return types.TranscriptionError(fmt.Sprintf("chunk %d: workspace", c.Index), err)
	}

	c.Path = wav
	if total > 1 {
		c.Path = filepath.Join(chunkDir, "audio.wav")
		if err := t.Audio.ExtractAudioRange(ctx, wav, c.Start, c.End, c.Path); err != nil {
			return types.TranscriptionError(fmt.Sprintf("chunk %d: split audio", c.Index), err)
		}
	}

	attempts, err := t.Policy.Do(ctx, func(ctx context.Context) error {
		tr, err := t.ASR.Transcribe(ctx, c.Path, chunkDir)
		if err != nil {
			log.Warn().Err(err).Msg("chunk attempt failed")
			return err
		}
		c.Transcript = tr
		return nil
	})
	c.Attempts = attempts
	if err != nil {
		return types.TranscriptionError(fmt.Sprintf("chunk %d failed after %d attempt(s)", c.Index, attempts), err)
	}
	log.Debug().Int("attempts", attempts).Int("segments", len(c.Transcript.Segments)).Msg("chunk transcribed")
	return nil
}
