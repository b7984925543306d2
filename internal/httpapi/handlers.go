package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forPelevin/autoclip/internal/media"
	"github.com/forPelevin/autoclip/internal/pipeline"
	"github.com/forPelevin/autoclip/internal/storage"
	"github.com/forPelevin/autoclip/internal/types"
)

// options are the submission parameters shared by every source kind.
type options struct {
	MaxClips          int    `json:"max_clips"`
	AspectRatio       string `json:"aspect_ratio"`
	UseCaptions       bool   `json:"use_captions"`
	CaptionTemplateID string `json:"caption_template_id"`
	CaptionLanguage   string `json:"caption_language"`
}

func (o options) submission(src media.Source) pipeline.Submission {
	return pipeline.Submission{
		Source:          src,
		MaxClips:        o.MaxClips,
		AspectRatio:     o.AspectRatio,
		UseCaptions:     o.UseCaptions,
		CaptionTemplate: o.CaptionTemplateID,
		CaptionLanguage: o.CaptionLanguage,
	}
}

type urlRequest struct {
	URL string `json:"url"`
	options
}

type fileRequest struct {
	Path string `json:"path"`
	options
}

func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) SubmitURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	a.submit(w, req.submission(media.FromURL(req.URL)))
}

func (a *API) SubmitFile(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	a.submit(w, req.submission(media.FromFile(req.Path)))
}

func (a *API) SubmitUpload(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			a.fail(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		a.fail(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := formOptions(r)
	if err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		a.fail(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer f.Close()

	src, err := a.svc.SpoolUpload(r.Context(), f, hdr.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			a.fail(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		if kind, ok := types.KindOf(err); ok && kind == types.KindAcquisition {
			a.fail(w, http.StatusBadRequest, err.Error())
			return
		}
		a.log.Error().Err(err).Msg("spool upload")
		a.fail(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	a.submit(w, opts.submission(src))
}

func (a *API) submit(w http.ResponseWriter, sub pipeline.Submission) {
	res, err := a.svc.Submit(sub)
	switch {
	case err == nil:
		a.json(w, http.StatusAccepted, res)
	case errors.Is(err, pipeline.ErrInvalidSubmission):
		a.fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrShuttingDown):
		a.fail(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.log.Error().Err(err).Msg("submit task")
		a.fail(w, http.StatusInternalServerError, "could not create task")
	}
}

func (a *API) GetTask(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.Status(chi.URLParam(r, "id"))
	if errors.Is(err, types.ErrNotFound) {
		a.fail(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "could not read task")
		return
	}
	a.json(w, http.StatusOK, v)
}

func (a *API) ListTasks(w http.ResponseWriter, r *http.Request) {
	kind := types.SourceKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		a.fail(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", kind))
		return
	}
	a.json(w, http.StatusOK, map[string]any{"tasks": a.svc.List(kind)})
}

func formOptions(r *http.Request) (options, error) {
	o := options{
		AspectRatio:       r.FormValue("aspect_ratio"),
		CaptionTemplateID: r.FormValue("caption_template_id"),
		CaptionLanguage:   r.FormValue("caption_language"),
	}
	if v := strings.TrimSpace(r.FormValue("max_clips")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return o, fmt.Errorf("max_clips must be an integer")
		}
		o.MaxClips = n
	}
	if v := strings.TrimSpace(r.FormValue("use_captions")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("use_captions must be a boolean")
		}
		o.UseCaptions = b
	}
	return o, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func (a *API) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) fail(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
