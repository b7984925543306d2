package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

// Render builds an ASS subtitle file for the [start, end) range of the source
// transcript. Event times are relative to start, so the file matches a clip
// cut at start. Word timestamps give karaoke highlighting; without them the
// overlapping segment text is shown for the whole clip.
func Render(tr types.Transcript, start, end time.Duration, opts Options) (string, error) {
	if end <= start {
		return "", fmt.Errorf("subtitles: empty range %s-%s", start, end)
	}
	st, err := opts.style()
	if err != nil {
		return "", err
	}

	doc := document{st: st}
	if words := wordsIn(tr, start, end); len(words) > 0 {
		for _, ln := range breakLines(words, st.lineChars, st.lineWords) {
			doc.dialogue(ln[0].at, ln[len(ln)-1].until, karaoke(ln))
		}
		return doc.String(), nil
	}

	text := speechIn(tr, start, end)
	if text == "" {
		return "", fmt.Errorf("subtitles: no speech between %s and %s", start, end)
	}
	doc.dialogue(0, end-start, escape(text))
	return doc.String(), nil
}

// cue is one spoken word on the clip's own timeline.
type cue struct {
	at, until time.Duration
	text      string
}

func wordsIn(tr types.Transcript, start, end time.Duration) []cue {
	var out []cue
	for _, s := range tr.Segments {
		for _, w := range s.Words {
			from, to := seconds(w.Start), seconds(w.End)
			text := escape(w.Word)
			if to <= start || from >= end || text == "" {
				continue
			}
			out = append(out, cue{at: max(from, start) - start, until: min(to, end) - start, text: text})
		}
	}
	return out
}

func speechIn(tr types.Transcript, start, end time.Duration) string {
	var parts []string
	for _, s := range tr.Segments {
		if seconds(s.End) <= start || seconds(s.Start) >= end {
			continue
		}
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// breakLines groups words into lines of at most maxWords words and maxChars
// characters (a single longer word still gets its own line).
func breakLines(words []cue, maxChars, maxWords int) [][]cue {
	var (
		lines [][]cue
		cur   []cue
		width int
	)
	for _, w := range words {
		n := len([]rune(w.text))
		if len(cur) > 0 && (len(cur) >= maxWords || width+1+n > maxChars) {
			lines = append(lines, cur)
			cur, width = nil, 0
		}
		if len(cur) > 0 {
			width++
		}
		cur = append(cur, w)
		width += n
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	return lines
}

// karaoke tags every word with its duration in centiseconds.
func karaoke(line []cue) string {
	var b strings.Builder
	for _, w := range line {
		fmt.Fprintf(&b, `{\k%d}%s `, max(1, int((w.until-w.at)/(10*time.Millisecond))), w.text)
	}
	return b.String()
}

type document struct {
	st     style
	events strings.Builder
}

func (d *document) dialogue(from, to time.Duration, text string) {
	fmt.Fprintf(&d.events, "Dialogue: 0,%s,%s,Caption,,0,0,0,,%s\n", timestamp(from), timestamp(to), text)
}

const header = `[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, %s, %d, %s, %s, &H00000000, &H64000000, %d,0,0,0,100,100,0,0,1,%d,2,2, 80,80,%d,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

func (d *document) String() string {
	bold := 0
	if d.st.bold {
		bold = 1
	}
	return fmt.Sprintf(header,
		d.st.resX, d.st.resY,
		d.st.font, d.st.fontSize, d.st.primary, d.st.karaoke, bold, d.st.outline, d.st.marginV,
	) + d.events.String()
}

// timestamp formats d as H:MM:SS.cc, truncating to centiseconds.
func timestamp(d time.Duration) string {
	cs := max(0, int64(d/(10*time.Millisecond)))
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360000, cs/6000%60, cs/100%60, cs%100)
}

// escape keeps text from opening override blocks.
func escape(s string) string {
	return strings.TrimSpace(strings.NewReplacer(`\`, `\\`, "{", "(", "}", ")").Replace(s))
}

func seconds(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
