// Package zapcap talks to the ZapCap captioning API: upload a clip, start a
// captioning task, poll it, download the captioned video.
package zapcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/autoclip/internal/logging"
	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/ports/adapters/endpoint"
	"github.com/forPelevin/autoclip/internal/retry"
)

const (
	DefaultBaseURL = "https://api.zapcap.ai"

	// Files above partSize go through the presigned multipart flow.
	partSize = 10 << 20
)

type Adapter struct {
	key        string
	baseURL    string
	templateID string
	client     *http.Client
	policy     retry.Policy
	log        zerolog.Logger
}

var _ ports.Captioner = (*Adapter)(nil)

// BaseURL is the rule ZAPCAP_API_BASE must satisfy.
var BaseURL = endpoint.Rule{
	Setting:      "ZAPCAP_API_BASE",
	AllowSetting: "ZAPCAP_ALLOWED_HOSTS",
	Default:      DefaultBaseURL,
	Hosts:        []string{"api.zapcap.ai"},
}

func New(apiKey, baseURL, templateID string) *Adapter {
	baseURL = BaseURL.Normalize(baseURL)
	return &Adapter{
		key:        apiKey,
		baseURL:    baseURL,
		templateID: templateID,
		client:     &http.Client{Timeout: 5 * time.Minute},
		log:        zerolog.Nop(),
		policy: retry.Policy{
			MaxAttempts: 2,
			Backoff:     []time.Duration{time.Second},
		},
	}
}

// WithLogger sets where rejected responses are logged.
func (a *Adapter) WithLogger(log zerolog.Logger) *Adapter {
	a.log = log
	return a
}

// WithPolicy replaces the retry policy used for every API call.
func (a *Adapter) WithPolicy(p retry.Policy) *Adapter {
	a.policy = p
	return a
}

// Submit uploads the clip and starts a captioning task for it.
func (a *Adapter) Submit(ctx context.Context, req ports.CaptionRequest) (ports.CaptionJob, error) {
	if a.key == "" {
		return ports.CaptionJob{}, errors.New("zapcap: api key not configured")
	}
	st, err := os.Stat(req.ClipPath)
	if err != nil {
		return ports.CaptionJob{}, fmt.Errorf("zapcap: clip: %w", err)
	}

	var videoID string
	if st.Size() <= partSize {
		videoID, err = a.simpleUpload(ctx, req.ClipPath)
	} else {
		videoID, err = a.multipartUpload(ctx, req.ClipPath, st.Size())
	}
	if err != nil {
		return ports.CaptionJob{}, err
	}

	template := req.TemplateID
	if template == "" {
		template = a.templateID
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}
	var created struct {
		TaskID string `json:"taskId"`
	}
	err = a.doJSON(ctx, http.MethodPost, "/videos/"+videoID+"/task", map[string]any{
		"autoApprove": true,
		"language":    lang,
		"templateId":  template,
	}, &created)
	if err != nil {
		return ports.CaptionJob{}, fmt.Errorf("zapcap: create task: %w", err)
	}
	if created.TaskID == "" {
		return ports.CaptionJob{}, errors.New("zapcap: create task: response has no taskId")
	}
	return ports.CaptionJob{ID: created.TaskID, VideoID: videoID, ClipPath: req.ClipPath}, nil
}

// Poll checks the task once. A completed task is downloaded next to the
// clip before Poll reports it ready.
func (a *Adapter) Poll(ctx context.Context, job ports.CaptionJob) (ports.CaptionStatus, error) {
	var st struct {
		Status      string `json:"status"`
		Error       string `json:"error"`
		DownloadURL string `json:"downloadUrl"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/videos/"+job.VideoID+"/task/"+job.ID, nil, &st); err != nil {
		return ports.CaptionStatus{}, fmt.Errorf("zapcap: status: %w", err)
	}

	switch st.Status {
	case "completed":
		if st.DownloadURL == "" {
			return ports.CaptionStatus{State: ports.CaptionFailed, Message: "completed without a download url"}, nil
		}
		out := captionedPath(job.ClipPath)
		if err := a.download(ctx, st.DownloadURL, out); err != nil {
			return ports.CaptionStatus{}, fmt.Errorf("zapcap: download: %w", err)
		}
		return ports.CaptionStatus{State: ports.CaptionReady, OutputPath: out}, nil
	case "failed":
		a.log.Debug().Str("task", job.ID).Str("error", logging.Redact(st.Error, a.key)).Msg("zapcap task failed")
		return ports.CaptionStatus{State: ports.CaptionFailed, Message: "zapcap task failed"}, nil
	default:
		return ports.CaptionStatus{State: ports.CaptionPending, Message: st.Status}, nil
	}
}

func captionedPath(clip string) string {
	ext := filepath.Ext(clip)
	return strings.TrimSuffix(clip, ext) + ".captioned" + ext
}

func (a *Adapter) simpleUpload(ctx context.Context, path string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	_, err := a.policy.Do(ctx, func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f); err != nil {
			return err
		}
		if err := mw.Close(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/videos", &body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return a.send(req, &out)
	})
	if err != nil {
		return "", fmt.Errorf("zapcap: upload: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("zapcap: upload: response has no id")
	}
	return out.ID, nil
}

type uploadSession struct {
	UploadID      string            `json:"uploadId"`
	VideoID       string            `json:"videoId"`
	PresignedURLs []json.RawMessage `json:"presignedUrls"`
	URLs          []json.RawMessage `json:"urls"`
}

type uploadedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

func (a *Adapter) multipartUpload(ctx context.Context, path string, size int64) (string, error) {
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	n := int((size + partSize - 1) / partSize)
	parts := make([]map[string]int64, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, map[string]int64{"contentLength": min(partSize, size-int64(i)*partSize)})
	}

	var sess uploadSession
	err := a.doJSON(ctx, http.MethodPost, "/videos/upload", map[string]any{
		"uploadParts": parts,
		"filename":    name,
		"contentType": contentType,
	}, &sess)
	if err != nil {
		return "", fmt.Errorf("zapcap: create upload: %w", err)
	}
	urls, err := sess.partURLs()
	if err != nil {
		return "", err
	}
	if len(urls) < n {
		return "", fmt.Errorf("zapcap: create upload: got %d part urls for %d parts", len(urls), n)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	done := make([]uploadedPart, 0, n)
	buf := make([]byte, partSize)
	for i := 0; i < n; i++ {
		m, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("zapcap: read part %d: %w", i+1, err)
		}
		etag, err := a.putPart(ctx, urls[i], contentType, buf[:m])
		if err != nil {
			return "", fmt.Errorf("zapcap: upload part %d/%d: %w", i+1, n, err)
		}
		done = append(done, uploadedPart{PartNumber: i + 1, ETag: etag})
	}

	err = a.doJSON(ctx, http.MethodPost, "/videos/upload/complete", map[string]any{
		"uploadId":    sess.UploadID,
		"videoId":     sess.VideoID,
		"filename":    name,
		"contentType": contentType,
		"parts":       done,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("zapcap: complete upload: %w", err)
	}
	return sess.VideoID, nil
}

// partURLs accepts either bare strings or {url|uploadUrl|presignedUrl} objects.
func (s uploadSession) partURLs() ([]string, error) {
	raw := s.PresignedURLs
	if len(raw) == 0 {
		raw = s.URLs
	}
	if len(raw) == 0 {
		return nil, errors.New("zapcap: create upload: no presigned urls in response")
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var u string
		if err := json.Unmarshal(r, &u); err == nil {
			out = append(out, u)
			continue
		}
		var obj struct {
			URL          string `json:"url"`
			UploadURL    string `json:"uploadUrl"`
			PresignedURL string `json:"presignedUrl"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			return nil, fmt.Errorf("zapcap: unexpected part url %s", r)
		}
		switch {
		case obj.URL != "":
			out = append(out, obj.URL)
		case obj.UploadURL != "":
			out = append(out, obj.UploadURL)
		case obj.PresignedURL != "":
			out = append(out, obj.PresignedURL)
		default:
			return nil, fmt.Errorf("zapcap: no url in part %s", r)
		}
	}
	return out, nil
}

func (a *Adapter) putPart(ctx context.Context, url, contentType string, chunk []byte) (string, error) {
	var etag string
	_, err := a.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(chunk))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		resp, err := a.client.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()
		if err := a.checkStatus(resp); err != nil {
			return err
		}
		etag = strings.Trim(resp.Header.Get("ETag"), `"`)
		return nil
	})
	return etag, err
}

func (a *Adapter) download(ctx context.Context, url, out string) error {
	return a.attempt(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("x-api-key", a.key)
		resp, err := a.client.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()
		if err := a.checkStatus(resp); err != nil {
			return err
		}

		tmp := out + ".part"
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			os.Remove(tmp)
			return retry.Transient(err)
		}
		if err := f.Close(); err != nil {
			os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, out)
	})
}

func (a *Adapter) attempt(ctx context.Context, fn func(context.Context) error) error {
	_, err := a.policy.Do(ctx, fn)
	return err
}

func (a *Adapter) doJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}
	return a.attempt(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return a.send(req, out)
	})
}

func (a *Adapter) send(req *http.Request, out any) error {
	req.Header.Set("x-api-key", a.key)
	resp, err := a.client.Do(req)
	if err != nil {
		return retry.Transient(errors.New(logging.Redact(err.Error(), a.key)))
	}
	defer resp.Body.Close()
	if err := a.checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus turns a non-2xx response into an error; 429 and 5xx are
// marked retryable.
func (a *Adapter) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(logging.Redact(string(b), a.key))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	a.log.Debug().Int("status", resp.StatusCode).Str("body", msg).Msg("zapcap rejected request")
	err := fmt.Errorf("status %d", resp.StatusCode)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.Transient(err)
	}
	return err
}
