package highlights

import (
	"regexp"
	"strings"
)

var (
	reNumber   = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?%?`)
	reHowTo    = regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first(ly)?|second(ly)?|third|finally|do\s+this)\b`)
	reStep     = regexp.MustCompile(`(?i)\bstep\s+\d+\b`)
	reHookWord = regexp.MustCompile(`(?i)\b(important|key|secret|mistake|never|always|remember|truth|nobody|everyone|wrong)\b`)
	reReason   = regexp.MustCompile(`(?i)\b(here\s+is\s+why|the\s+reason|because|turns\s+out)\b`)
	reYou      = regexp.MustCompile(`(?i)\b(you|your|you're)\b`)
	reFiller   = regexp.MustCompile(`(?i)\b(um+|uh+|erm|you\s+know|i\s+mean|sort\s+of|kind\s+of)\b`)
)

// Signals rate a stretch of speech on two axes, each in [0, 10]. Info
// rewards concrete, instructive content; Hook rewards lines that hold
// attention.
type Signals struct {
	Info float64
	Hook float64
}

// Measure scores text. Empty text scores zero on both axes.
func Measure(text string) Signals {
	t := strings.TrimSpace(text)
	if t == "" {
		return Signals{}
	}
	words := len(strings.Fields(t))

	info := 0.4 * count(reNumber, t)
	if reHowTo.MatchString(t) {
		info += 1.2
	}
	info -= 0.5 * count(reFiller, t)
	// Long windows dilute whatever they contain.
	info -= 0.004 * float64(words)

	hook := 0.9*count(reHookWord, t) + 0.6*count(reReason, t) + 0.4*count(reStep, t)
	hook += 0.7*float64(strings.Count(t, "?")) + 0.3*float64(strings.Count(t, "!"))
	if you := count(reYou, t); you > 0 {
		hook += min(you*0.2, 1)
	}

	return Signals{Info: clamp10(info), Hook: clamp10(hook)}
}

func count(re *regexp.Regexp, s string) float64 {
	return float64(len(re.FindAllStringIndex(s, -1)))
}

func clamp10(x float64) float64 { return max(0, min(x, 10)) }
