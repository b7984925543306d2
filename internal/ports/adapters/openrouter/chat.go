package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/forPelevin/autoclip/internal/logging"
	"github.com/forPelevin/autoclip/internal/retry"
)

const instructions = `You pick short-form highlight clips from a long video transcript.
Rules:
- Answer with one JSON object matching the schema. No markdown, no code fences.
- Prefer clips that are both informative and hooky.
- Score each clip from 0 to 1 by how well it stands alone.
- Return between 0 and maxClips clips. Clips must not overlap.
- Every clip lasts between minSec and maxSec seconds.
- Start cleanly and end on a complete thought, ideally right after the payoff.`

// clipSchema constrains the model's answer when the provider supports
// structured output.
const clipSchema = `{
  "type": "object",
  "required": ["clips"],
  "properties": {
    "clips": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["idx", "start_sec", "end_sec", "score", "title", "caption", "tags", "reason"],
        "properties": {
          "idx": {"type": "integer"},
          "start_sec": {"type": "number"},
          "end_sec": {"type": "number"},
          "score": {"type": "number"},
          "title": {"type": "string"},
          "caption": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}},
          "reason": {"type": "string"}
        }
      }
    }
  }
}`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Stream         bool           `json:"stream"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends one chat completion under the retry policy and returns the
// first choice's text. Empty text means the model gave nothing usable.
func (a *Adapter) complete(ctx context.Context, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: "autoclip_highlights", Schema: json.RawMessage(clipSchema)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	_, err = a.policy.Do(ctx, func(ctx context.Context) error {
		t, err := a.post(ctx, body)
		text = t
		return err
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("openrouter timeout (model=%s): %w", a.model, err)
	}
	return text, err
}

func (a *Adapter) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("openrouter request: %s", logging.Redact(err.Error(), a.key)))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		a.log.Debug().Int("status", resp.StatusCode).
			Str("body", truncate(logging.Redact(string(rb), a.key), 400)).
			Msg("openrouter rejected request")
		err := fmt.Errorf("openrouter status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.Transient(err)
		}
		return "", err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return contentText(out.Choices[0].Message.Content), nil
}

// contentText accepts a plain string or an array of {type, text} parts, as
// different providers answer either way. Anything else reads as empty.
func contentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// jsonObject pulls the outermost {...} out of a model answer, tolerating
// code fences and chatter around it.
func jsonObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}
	if rest, ok := strings.CutPrefix(t, "```"); ok {
		if _, body, found := strings.Cut(rest, "\n"); found {
			t = body
		}
		t = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "```"))
	}
	open, end := strings.Index(t, "{"), strings.LastIndex(t, "}")
	if open < 0 || end <= open {
		return "", fmt.Errorf("openrouter: no JSON object in %q", truncate(t, 200))
	}
	return t[open : end+1], nil
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
