package transcribe

import (
	"strings"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

// Chunk is one contiguous slice of the task's audio.
type Chunk struct {
	Index int
	Start time.Duration
	End   time.Duration
	Bytes int64
	Path  string

	Attempts   int
	Transcript types.Transcript
}

func (c Chunk) Duration() time.Duration { return c.End - c.Start }

// wavHeaderBytes is the canonical PCM header every extracted chunk carries.
const wavHeaderBytes = 44

// PlanChunks splits audio of the given duration and byte size into
// equal-length contiguous chunks covering [0, duration). Each chunk file,
// header included, stays within maxBytes: the sample payload is spread so
// shares differ by at most one byte. Zero duration or size yields no chunks.
func PlanChunks(duration time.Duration, size, maxBytes int64) []Chunk {
	if duration <= 0 || size <= 0 {
		return nil
	}
	payload, budget := size, maxBytes
	if size > wavHeaderBytes && maxBytes > wavHeaderBytes {
		payload, budget = size-wavHeaderBytes, maxBytes-wavHeaderBytes
	}
	header := size - payload

	n := int64(1)
	if maxBytes > 0 && size > maxBytes {
		n = (payload + budget - 1) / budget
	}
	step := duration / time.Duration(n)
	share, extra := payload/n, payload%n

	out := make([]Chunk, 0, n)
	for i := int64(0); i < n; i++ {
		c := Chunk{
			Index: int(i),
			Start: time.Duration(i) * step,
			End:   time.Duration(i+1) * step,
			Bytes: header + share,
		}
		if i < extra {
			c.Bytes++
		}
		if i == n-1 {
			c.End = duration
		}
		out = append(out, c)
	}
	return out
}

// Merge joins chunk transcripts in index order. Each chunk's timestamps are
// shifted by the summed durations of the chunks before it, so the result sits
// on the source timeline regardless of completion order.
func Merge(chunks []Chunk) types.Transcript {
	ordered := make([]Chunk, len(chunks))
	for _, c := range chunks {
		ordered[c.Index] = c
	}

	var (
		out    types.Transcript
		texts  []string
		offset time.Duration
	)
	for _, c := range ordered {
		off := offset.Seconds()
		for _, s := range c.Transcript.Segments {
			seg := types.Segment{Start: s.Start + off, End: s.End + off, Text: s.Text}
			if len(s.Words) > 0 {
				seg.Words = make([]types.Word, len(s.Words))
				for i, w := range s.Words {
					seg.Words[i] = types.Word{Start: w.Start + off, End: w.End + off, Word: w.Word}
				}
			}
			out.Segments = append(out.Segments, seg)
		}
		if t := chunkText(c.Transcript); t != "" {
			texts = append(texts, t)
		}
		offset += c.Duration()
	}
	out.Text = strings.Join(texts, " ")
	return out
}

func chunkText(tr types.Transcript) string {
	if t := strings.TrimSpace(tr.Text); t != "" {
		return t
	}
	parts := make([]string, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
