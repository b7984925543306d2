// Package media turns a submission's input into one probed local media file
// inside the task's workspace.
package media

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/forPelevin/autoclip/internal/types"
)

// Source is one of three input variants; Kind selects which fields apply.
type Source struct {
	Kind types.SourceKind

	// Path is the spooled upload for KindUpload and the caller's file for
	// KindFile.
	Path string
	// Filename is the client-side name of an upload.
	Filename string
	// URL is the remote location for KindURL.
	URL string
}

func FromUpload(spooledPath, filename string) Source {
	return Source{Kind: types.KindUpload, Path: spooledPath, Filename: filename}
}

func FromURL(rawURL string) Source {
	return Source{Kind: types.KindURL, URL: strings.TrimSpace(rawURL)}
}

func FromFile(path string) Source {
	return Source{Kind: types.KindFile, Path: path}
}

// Validate checks the fields each variant needs before a task is created.
func (s Source) Validate() error {
	switch s.Kind {
	case types.KindUpload:
		if s.Path == "" {
			return errors.New("upload has no spooled file")
		}
		return checkExtension(s.Filename)
	case types.KindURL:
		u, err := url.Parse(s.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid url %q: http(s) url with host required", s.URL)
		}
		return nil
	case types.KindFile:
		if s.Path == "" {
			return errors.New("file path is empty")
		}
		return checkExtension(s.Path)
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// Name is a human label for the input, used to name output directories.
func (s Source) Name() string {
	switch s.Kind {
	case types.KindUpload:
		return filepath.Base(s.Filename)
	case types.KindURL:
		if u, err := url.Parse(s.URL); err == nil && u.Path != "" && u.Path != "/" {
			return filepath.Base(u.Path)
		}
		return "remote"
	default:
		return filepath.Base(s.Path)
	}
}

// Metadata records where the media came from on the task.
func (s Source) Metadata() map[string]string {
	switch s.Kind {
	case types.KindUpload:
		return map[string]string{"filename": filepath.Base(s.Filename)}
	case types.KindURL:
		return map[string]string{"url": s.URL}
	default:
		return map[string]string{"path": s.Path}
	}
}

var allowedExt = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// AllowedExtensions lists the accepted container extensions.
func AllowedExtensions() []string { return []string{".avi", ".mkv", ".mov", ".mp4", ".webm"} }

func checkExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExt[ext] {
		return fmt.Errorf("unsupported file type %q: allowed %s", ext, strings.Join(AllowedExtensions(), " "))
	}
	return nil
}

var contentTypeExt = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"video/x-matroska": ".mkv",
	"video/webm":       ".webm",
}

// extensionFor picks the container extension of a download from its URL path,
// falling back to the response content type.
func extensionFor(rawURL, contentType string) (string, error) {
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(filepath.Ext(u.Path))
		if allowedExt[ext] {
			return ext, nil
		}
	}
	mainType := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	if ext, ok := contentTypeExt[mainType]; ok {
		return ext, nil
	}
	return "", fmt.Errorf("unsupported content type %q", contentType)
}
