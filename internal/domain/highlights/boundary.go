package highlights

import (
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/autoclip/internal/types"
)

// Timing is the word and segment timeline used to land clip ends on a
// natural stop.
type Timing struct {
	words   []timedWord
	segEnds []time.Duration
}

type timedWord struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// collectAllWords flattens word timings. A segment without words counts as
// one word spanning the segment.
func collectAllWords(tr types.Transcript) []timedWord {
	out := make([]timedWord, 0, 1024)
	for _, s := range tr.Segments {
		if len(s.Words) == 0 {
			if tw, ok := newTimedWord(s.Start, s.End, s.Text); ok {
				out = append(out, tw)
			}
			continue
		}
		for _, w := range s.Words {
			if tw, ok := newTimedWord(w.Start, w.End, w.Word); ok {
				out = append(out, tw)
			}
		}
	}
	return out
}

func newTimedWord(start, end float64, text string) (timedWord, bool) {
	ws, we := dur(start), dur(end)
	text = strings.TrimSpace(text)
	if we <= ws || text == "" {
		return timedWord{}, false
	}
	return timedWord{Start: ws, End: we, Text: text}, true
}

func NewTiming(tr types.Transcript) Timing {
	t := Timing{
		words:   collectAllWords(tr),
		segEnds: make([]time.Duration, 0, len(tr.Segments)),
	}
	for _, s := range tr.Segments {
		if se := dur(s.End); se > 0 {
			t.segEnds = append(t.segEnds, se)
		}
	}
	sort.Slice(t.words, func(i, j int) bool {
		if t.words[i].Start == t.words[j].Start {
			return t.words[i].End < t.words[j].End
		}
		return t.words[i].Start < t.words[j].Start
	})
	sort.Slice(t.segEnds, func(i, j int) bool { return t.segEnds[i] < t.segEnds[j] })
	return t
}

// Fit clamps [st, en) into [minClip, maxClip] and moves the end to the best
// nearby stop. ok is false when no valid range remains.
func (t Timing) Fit(st, en, minClip, maxClip time.Duration) (time.Duration, time.Duration, bool) {
	if st < 0 {
		st = 0
	}
	if en <= st {
		return 0, 0, false
	}
	maxEnd := st + maxClip
	minEnd := st + minClip
	if en > maxEnd {
		en = maxEnd
	}
	if en < minEnd {
		return 0, 0, false
	}

	end := t.naturalEnd(st, en, minEnd, maxEnd)
	if end < minEnd {
		return 0, 0, false
	}
	if end > maxEnd {
		end = maxEnd
	}
	return st, end, true
}

const (
	endExtension   = 2 * time.Second
	pauseThreshold = 350 * time.Millisecond
	pauseLookback  = 8 * time.Second
)

// naturalEnd tries, in order: a scored sentence boundary, the longest pause,
// the last segment end, the last word end.
func (t Timing) naturalEnd(start, requested, minEnd, maxEnd time.Duration) time.Duration {
	requested = max(minEnd, min(requested, maxEnd))
	searchEnd := min(requested+endExtension, maxEnd)

	if end, ok := t.bestSentenceEnd(start, requested, minEnd, searchEnd); ok {
		return end
	}
	if end, ok := t.longestPause(max(searchEnd-pauseLookback, minEnd), searchEnd); ok && end >= minEnd {
		return end
	}
	if end := latestIn(t.segEnds, minEnd, searchEnd); end >= minEnd {
		return end
	}
	wordEnds := make([]time.Duration, 0, len(t.words))
	for _, w := range t.words {
		wordEnds = append(wordEnds, w.End)
	}
	if end := latestIn(wordEnds, minEnd, searchEnd); end >= minEnd {
		return end
	}
	return requested
}

func (t Timing) longestPause(from, to time.Duration) (time.Duration, bool) {
	var best, bestEnd time.Duration
	for i := 0; i+1 < len(t.words); i++ {
		cur, next := t.words[i], t.words[i+1]
		if cur.End < from || cur.End > to || next.Start <= cur.End {
			continue
		}
		if gap := next.Start - cur.End; gap >= pauseThreshold && gap > best {
			best, bestEnd = gap, cur.End
		}
	}
	return bestEnd, best > 0
}

func latestIn(ds []time.Duration, lo, hi time.Duration) time.Duration {
	var out time.Duration
	for _, d := range ds {
		if d >= lo && d <= hi && d > out {
			out = d
		}
	}
	return out
}

type sentenceEnd struct {
	end        time.Duration
	words      int
	lastWord   string
	sentence   string
	nextWord   string
	pauseAfter time.Duration
}

func (t Timing) bestSentenceEnd(clipStart, requested, minEnd, searchEnd time.Duration) (time.Duration, bool) {
	ends := t.sentenceEnds(clipStart, minEnd, searchEnd)
	if len(ends) == 0 {
		return 0, false
	}
	best := 0
	bestScore := ends[0].score(requested)
	for i := 1; i < len(ends); i++ {
		s := ends[i].score(requested)
		if s > bestScore || (s == bestScore && ends[i].end > ends[best].end) {
			best, bestScore = i, s
		}
	}
	return ends[best].end, true
}

func (t Timing) sentenceEnds(clipStart, minEnd, searchEnd time.Duration) []sentenceEnd {
	words := t.words
	var out []sentenceEnd
	for i, w := range words {
		if w.End < minEnd || w.End > searchEnd || !hasTerminalPunctuation(w.Text) {
			continue
		}

		from := 0
		for j := i - 1; j >= 0; j-- {
			if words[j].End <= clipStart || hasTerminalPunctuation(words[j].Text) {
				from = j + 1
				break
			}
		}

		se := sentenceEnd{end: w.End}
		var parts []string
		for k := from; k <= i; k++ {
			if words[k].End <= clipStart {
				continue
			}
			parts = append(parts, words[k].Text)
			if norm := normalizeToken(words[k].Text); norm != "" {
				se.words++
				se.lastWord = norm
			}
		}
		if len(parts) == 0 {
			continue
		}
		se.sentence = strings.ToLower(strings.Join(parts, " "))
		if i+1 < len(words) {
			if words[i+1].Start > w.End {
				se.pauseAfter = words[i+1].Start - w.End
			}
			se.nextWord = normalizeToken(words[i+1].Text)
		}
		out = append(out, se)
	}
	return out
}

// score prefers complete, resolved sentences followed by a pause, close to
// the requested end.
func (c sentenceEnd) score(requested time.Duration) float64 {
	distance := c.end - requested
	if distance < 0 {
		distance = -distance
	}
	score := -0.30 * distance.Seconds()
	closure := hasClosureCue(c.sentence)

	switch {
	case c.words >= 8:
		score += 1.1
	case c.words >= 5:
		score += 0.5
	case c.words < 4:
		score -= 0.8
	}

	switch {
	case c.pauseAfter >= 450*time.Millisecond:
		score += 1.0
	case c.pauseAfter >= 250*time.Millisecond:
		score += 0.4
	case c.pauseAfter < 120*time.Millisecond:
		score -= 0.35
	}

	if closure {
		score += 1.1
	}
	if danglingTail[c.lastWord] || c.lastWord == "" {
		score -= 2.0
	}
	// An unanswered question right before more speech is a cliffhanger, not an end.
	if strings.HasSuffix(c.sentence, "?") && c.pauseAfter < 450*time.Millisecond {
		score -= 2.4
	}
	if continuationStart[c.nextWord] && c.pauseAfter < 350*time.Millisecond {
		score -= 0.8
	}
	if c.pauseAfter < 120*time.Millisecond && c.nextWord != "" {
		score -= 0.8
	}
	if c.words < 5 && !closure && c.pauseAfter < 200*time.Millisecond {
		score -= 0.9
	}
	return score
}

var closureCues = []string{
	"that's it", "that is it", "that's why", "that's how", "there you go",
	"we're out", "we are out", "i'm out", "i am out", "goodbye", "finally",
	"done", "finished", "let's go", "lets go", "we won", "i won", "you won",
	"we did it",
}

func hasClosureCue(s string) bool {
	for _, cue := range closureCues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

var danglingTail = setOf(
	"and", "but", "or", "so", "because", "if", "when", "then",
	"to", "of", "for", "with", "from", "into", "onto",
	"the", "a", "an", "this", "that", "these", "those",
	"my", "your", "our", "their", "his", "her", "its",
)

var continuationStart = setOf("and", "but", "or", "so", "because", "then", "if", "when", "while", "that")

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, "\"'`[](){}.,!?;:")
}

func hasTerminalPunctuation(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), "\"'`)]}")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}
