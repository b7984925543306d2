package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/autoclip/internal/logging"
	"github.com/forPelevin/autoclip/internal/storage"
	"github.com/forPelevin/autoclip/internal/types"
)

type fakeProber struct {
	err   error
	calls []string
}

func (f *fakeProber) Probe(_ context.Context, path string) (types.MediaHandle, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return types.MediaHandle{}, f.err
	}
	return types.MediaHandle{Path: path, Duration: time.Minute, Width: 1920, Height: 1080, HasAudio: true}, nil
}

func setup(t *testing.T, maxSize int64) (*Acquirer, *fakeProber, *storage.FileStore, *Workspace) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ws, err := NewWorkspace(store, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	p := &fakeProber{}
	return NewAcquirer(p, maxSize, logging.Nop()), p, store, ws
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func assertKind(t *testing.T, err error, want types.ErrorKind) {
	t.Helper()
	if kind, ok := types.KindOf(err); !ok || kind != want {
		t.Fatalf("expected %s error, got %v", want, err)
	}
}

func TestResolve_File(t *testing.T) {
	a, p, _, ws := setup(t, 1024)
	in := writeFile(t, "talk.MP4", "video")

	h, err := a.Resolve(context.Background(), FromFile(in), ws)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.Path != ws.Path("source.mp4") || h.Size != 5 {
		t.Fatalf("unexpected handle: %+v", h)
	}
	if _, err := os.Stat(in); err != nil {
		t.Fatalf("caller's file must stay in place: %v", err)
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected one probe, got %d", len(p.calls))
	}
}

func TestResolve_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.mp4") }},
		{"oversized", func(t *testing.T) string { return writeFile(t, "big.mp4", strings.Repeat("x", 2048)) }},
		{"bad extension", func(t *testing.T) string { return writeFile(t, "notes.txt", "x") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, p, _, ws := setup(t, 1024)
			_, err := a.Resolve(context.Background(), FromFile(tt.path(t)), ws)
			assertKind(t, err, types.KindAcquisition)
			if len(p.calls) != 0 {
				t.Fatalf("probe must not run for rejected input")
			}
		})
	}
}

func TestResolve_ProbeFailureRemovesCopy(t *testing.T) {
	a, p, _, ws := setup(t, 0)
	p.err = errors.New("no video stream found")
	_, err := a.Resolve(context.Background(), FromFile(writeFile(t, "a.mkv", "x")), ws)
	assertKind(t, err, types.KindAcquisition)
	if _, err := os.Stat(ws.Path("source.mkv")); !os.IsNotExist(err) {
		t.Fatalf("expected workspace copy removed")
	}
}

func TestResolve_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "video/webm")
			_, _ = w.Write([]byte("webm-bytes"))
		case "/clip.mov":
			_, _ = w.Write([]byte("mov"))
		case "/stream":
			w.Header().Set("Content-Type", "video/mp4")
			// No Content-Length: the limit must hold on the bytes read.
			for i := 0; i < 4; i++ {
				_, _ = w.Write([]byte(strings.Repeat("x", 512)))
				w.(http.Flusher).Flush()
			}
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Run("content type", func(t *testing.T) {
		a, _, _, ws := setup(t, 1024)
		h, err := a.Resolve(context.Background(), FromURL(srv.URL+"/ok"), ws)
		if err != nil || h.Path != ws.Path("source.webm") {
			t.Fatalf("unexpected: %+v err=%v", h, err)
		}
	})
	t.Run("url extension", func(t *testing.T) {
		a, _, _, ws := setup(t, 1024)
		h, err := a.Resolve(context.Background(), FromURL(srv.URL+"/clip.mov"), ws)
		if err != nil || h.Path != ws.Path("source.mov") {
			t.Fatalf("unexpected: %+v err=%v", h, err)
		}
	})
	for _, p := range []string{"/missing", "/stream", "/page"} {
		t.Run(p, func(t *testing.T) {
			a, _, _, ws := setup(t, 1024)
			_, err := a.Resolve(context.Background(), FromURL(srv.URL+p), ws)
			assertKind(t, err, types.KindAcquisition)
			entries, _ := os.ReadDir(ws.Dir())
			if len(entries) != 0 {
				t.Fatalf("expected empty workspace, found %d entries", len(entries))
			}
		})
	}
}

func TestResolve_Unreachable(t *testing.T) {
	a, _, _, ws := setup(t, 0)
	_, err := a.Resolve(context.Background(), FromURL("http://127.0.0.1:1/x.mp4"), ws)
	assertKind(t, err, types.KindAcquisition)
}

func TestSpoolUpload(t *testing.T) {
	a, _, store, ws := setup(t, 1024)
	ctx := context.Background()

	src, err := SpoolUpload(ctx, store, strings.NewReader("upload"), "My Talk.mov", 1024)
	if err != nil {
		t.Fatalf("spool: %v", err)
	}
	if src.Kind != types.KindUpload || src.Name() != "My Talk.mov" {
		t.Fatalf("unexpected source: %+v", src)
	}
	h, err := a.Resolve(ctx, src, ws)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if b, _ := os.ReadFile(h.Path); string(b) != "upload" {
		t.Fatalf("unexpected content %q", b)
	}
	if _, err := os.Stat(src.Path); !os.IsNotExist(err) {
		t.Fatalf("spooled upload must be consumed")
	}

	_, err = SpoolUpload(ctx, store, strings.NewReader(strings.Repeat("x", 2000)), "big.mp4", 1024)
	assertKind(t, err, types.KindAcquisition)
	_, err = SpoolUpload(ctx, store, strings.NewReader("x"), "virus.exe", 1024)
	assertKind(t, err, types.KindAcquisition)
}

func TestSource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		wantErr bool
	}{
		{"file ok", FromFile("/videos/a.mp4"), false},
		{"file ext", FromFile("/videos/a.gif"), true},
		{"file empty", FromFile(""), true},
		{"url ok", FromURL(" https://cdn.example.com/v "), false},
		{"url scheme", FromURL("ftp://cdn.example.com/v.mp4"), true},
		{"url host", FromURL("https:///v.mp4"), true},
		{"upload ok", FromUpload("/data/uploads/x.mp4", "x.mp4"), false},
		{"unknown", Source{Kind: "torrent"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkspace_ReleaseOnce(t *testing.T) {
	_, _, _, ws := setup(t, 0)
	if err := os.WriteFile(ws.Path("audio.wav"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Fatalf("workspace still present")
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}
