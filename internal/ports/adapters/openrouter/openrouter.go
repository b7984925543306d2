package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/autoclip/internal/domain/highlights"
	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/ports/adapters/endpoint"
	"github.com/forPelevin/autoclip/internal/retry"
	"github.com/forPelevin/autoclip/internal/types"
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
	policy  retry.Policy
	log     zerolog.Logger
}

const (
	requestTimeout   = 90 * time.Second
	promptCandidates = 80
)

var _ ports.HighlightScorer = (*Adapter)(nil)

// BaseURL is the rule OPENROUTER_BASE_URL must satisfy.
var BaseURL = endpoint.Rule{
	Setting:      "OPENROUTER_BASE_URL",
	AllowSetting: "OPENROUTER_ALLOWED_HOSTS",
	Default:      "https://openrouter.ai",
	Hosts:        []string{"openrouter.ai", "api.openrouter.ai"},
}

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "anthropic/claude-3.5-sonnet"
	}
	baseURL = BaseURL.Normalize(baseURL)
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     zerolog.Nop(),
		policy: retry.Policy{
			MaxAttempts: 2,
			Backoff:     []time.Duration{2 * time.Second},
			Timeout:     requestTimeout,
		},
	}
}

// WithLogger sets where rejected responses are logged.
func (a *Adapter) WithLogger(log zerolog.Logger) *Adapter {
	a.log = log
	return a
}

// WithPolicy replaces the retry policy applied to each completion request.
func (a *Adapter) WithPolicy(p retry.Policy) *Adapter {
	a.policy = p
	return a
}

type promptCandidate struct {
	Idx      int     `json:"idx"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
	Info     float64 `json:"info"`
	Hook     float64 `json:"hook"`
}

type modelClip struct {
	Idx      int      `json:"idx"`
	StartSec float64  `json:"start_sec"`
	EndSec   float64  `json:"end_sec"`
	Score    float64  `json:"score"`
	Title    string   `json:"title"`
	Caption  string   `json:"caption"`
	Tags     []string `json:"tags"`
	Reason   string   `json:"reason"`
}

// Score builds local candidates from the transcript and asks the model to
// choose among them. Any unusable model answer falls back to the local
// ranking, so only transport and status errors are returned.
func (a *Adapter) Score(ctx context.Context, tr types.Transcript, req ports.ScoreRequest) ([]types.ClipSpec, error) {
	if req.MaxClips <= 0 || req.MaxClip <= 0 || req.MaxClip < req.MinClip {
		return nil, nil
	}
	timing := highlights.NewTiming(tr)
	top := highlights.Shortlist(highlights.BuildCandidates(tr, req.MinClip, req.MaxClip), promptCandidates)
	if len(top) == 0 {
		return nil, nil
	}
	fallback := func() []types.ClipSpec {
		return highlights.Pick(top, req.MaxClips, req.MinClip, req.MaxClip, timing)
	}

	arr := make([]promptCandidate, 0, len(top))
	for i, c := range top {
		arr = append(arr, promptCandidate{Idx: i, StartSec: c.Start.Seconds(), EndSec: c.End.Seconds(), Text: c.Text, Info: c.InfoScore, Hook: c.HookScore})
	}
	pb, err := json.Marshal(map[string]any{
		"maxClips":   req.MaxClips,
		"minSec":     req.MinClip.Seconds(),
		"maxSec":     req.MaxClip.Seconds(),
		"candidates": arr,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	content, err := a.complete(ctx, "Candidates JSON:\n"+string(pb))
	if err != nil {
		return nil, err
	}
	clean, err := jsonObject(content)
	if err != nil {
		a.log.Debug().Err(err).Msg("openrouter answer unusable, ranking locally")
		return fallback(), nil
	}
	var out struct {
		Clips []modelClip `json:"clips"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return fallback(), nil
	}

	res := make([]types.ClipSpec, 0, min(len(out.Clips), req.MaxClips))
	for _, c := range out.Clips {
		st, en, ok := fitRange(c, top, req, timing)
		if !ok || !highlights.Distinct(res, st, en, highlights.MinGap) {
			continue
		}
		res = append(res, toClipSpec(c, st, en, top))
		if len(res) >= req.MaxClips {
			break
		}
	}
	if len(res) == 0 {
		res = fallback()
	}
	return res, nil
}

func toClipSpec(c modelClip, st, en time.Duration, top []types.Candidate) types.ClipSpec {
	title := strings.TrimSpace(c.Title)
	caption := strings.TrimSpace(c.Caption)
	if title == "" {
		title = "Highlight"
	}
	if caption == "" {
		caption = title
	}
	score := c.Score
	if score <= 0 && c.Idx >= 0 && c.Idx < len(top) {
		score = highlights.Strength(top[c.Idx])
	}
	return types.ClipSpec{
		Start:   st,
		End:     en,
		Score:   clamp01(score),
		Title:   title,
		Caption: caption,
		Tags:    c.Tags,
		Reason:  strings.TrimSpace(c.Reason),
	}
}

func clamp01(x float64) float64 {
	if x > 1 {
		// models sometimes answer on a 0-10 scale
		x /= 10
	}
	return max(0, min(x, 1))
}

// fitRange snaps the model's range onto speech boundaries, falling back to
// the candidate it referenced when the range itself cannot be fitted.
func fitRange(c modelClip, cands []types.Candidate, req ports.ScoreRequest, timing highlights.Timing) (time.Duration, time.Duration, bool) {
	st := time.Duration(c.StartSec * float64(time.Second))
	en := time.Duration(c.EndSec * float64(time.Second))
	if st, en, ok := timing.Fit(st, en, req.MinClip, req.MaxClip); ok {
		return st, en, true
	}
	if c.Idx < 0 || c.Idx >= len(cands) {
		return 0, 0, false
	}
	return timing.Fit(cands[c.Idx].Start, cands[c.Idx].End, req.MinClip, req.MaxClip)
}
