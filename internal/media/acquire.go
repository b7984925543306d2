package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/autoclip/internal/ports"
	"github.com/forPelevin/autoclip/internal/storage"
	"github.com/forPelevin/autoclip/internal/types"
)

// Acquirer resolves any Source into a probed copy inside a task workspace.
type Acquirer struct {
	Prober  ports.Prober
	Client  *http.Client
	MaxSize int64
	Log     zerolog.Logger
}

func NewAcquirer(prober ports.Prober, maxSize int64, log zerolog.Logger) *Acquirer {
	return &Acquirer{
		Prober:  prober,
		Client:  &http.Client{Timeout: 30 * time.Minute},
		MaxSize: maxSize,
		Log:     log,
	}
}

// Resolve dispatches on the source kind. Every failure is an acquisition
// error; a partial copy never outlives the call.
func (a *Acquirer) Resolve(ctx context.Context, src Source, ws *Workspace) (types.MediaHandle, error) {
	var (
		local string
		err   error
	)
	switch src.Kind {
	case types.KindUpload:
		local, err = a.fromUpload(ctx, src, ws)
	case types.KindURL:
		local, err = a.fromURL(ctx, src, ws)
	case types.KindFile:
		local, err = a.fromFile(ctx, src, ws)
	default:
		err = types.AcquisitionError(fmt.Sprintf("unknown source kind %q", src.Kind), nil)
	}
	if err != nil {
		return types.MediaHandle{}, err
	}

	h, err := a.Prober.Probe(ctx, local)
	if err != nil {
		os.Remove(local)
		return types.MediaHandle{}, types.AcquisitionError("unsupported or unreadable media", err)
	}
	if h.Size == 0 {
		if st, err := os.Stat(local); err == nil {
			h.Size = st.Size()
		}
	}
	a.Log.Info().
		Str("source", string(src.Kind)).
		Dur("duration", h.Duration).
		Int("width", h.Width).
		Int("height", h.Height).
		Bool("has_audio", h.HasAudio).
		Msg("media acquired")
	return h, nil
}

// fromUpload moves the spooled upload into the workspace. The spool is gone
// afterwards whether or not the move succeeded.
func (a *Acquirer) fromUpload(ctx context.Context, src Source, ws *Workspace) (string, error) {
	defer os.Remove(src.Path)
	if err := checkExtension(src.Filename); err != nil {
		return "", types.AcquisitionError("upload rejected", err)
	}
	dst := ws.Path("source" + strings.ToLower(filepath.Ext(src.Filename)))
	if err := a.copyLimited(ctx, src.Path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (a *Acquirer) fromFile(ctx context.Context, src Source, ws *Workspace) (string, error) {
	if err := checkExtension(src.Path); err != nil {
		return "", types.AcquisitionError("file rejected", err)
	}
	dst := ws.Path("source" + strings.ToLower(filepath.Ext(src.Path)))
	if err := a.copyLimited(ctx, src.Path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (a *Acquirer) copyLimited(ctx context.Context, from, to string) error {
	st, err := os.Stat(from)
	if err != nil {
		return types.AcquisitionError("source file missing", err)
	}
	if st.IsDir() {
		return types.AcquisitionError(fmt.Sprintf("%s is a directory", from), nil)
	}
	if a.MaxSize > 0 && st.Size() > a.MaxSize {
		return types.AcquisitionError(fmt.Sprintf("file is %d bytes, limit is %d", st.Size(), a.MaxSize), nil)
	}
	in, err := os.Open(from)
	if err != nil {
		return types.AcquisitionError("open source file", err)
	}
	defer in.Close()
	return a.writeLimited(ctx, in, to)
}

func (a *Acquirer) fromURL(ctx context.Context, src Source, ws *Workspace) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", types.AcquisitionError("invalid url", err)
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return "", types.AcquisitionError("source unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.AcquisitionError(fmt.Sprintf("source returned HTTP %d", resp.StatusCode), nil)
	}
	if a.MaxSize > 0 && resp.ContentLength > a.MaxSize {
		return "", types.AcquisitionError(fmt.Sprintf("remote file is %d bytes, limit is %d", resp.ContentLength, a.MaxSize), nil)
	}
	ext, err := extensionFor(src.URL, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", types.AcquisitionError("download rejected", err)
	}
	dst := ws.Path("source" + ext)
	if err := a.writeLimited(ctx, resp.Body, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// writeLimited streams r into dst, enforcing MaxSize on the bytes actually
// read so a missing or lying Content-Length cannot bypass it.
func (a *Acquirer) writeLimited(ctx context.Context, r io.Reader, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return types.AcquisitionError("create workspace copy", err)
	}
	src := r
	var lr *io.LimitedReader
	if a.MaxSize > 0 {
		lr = &io.LimitedReader{R: r, N: a.MaxSize + 1}
		src = lr
	}
	_, err = io.Copy(f, readerWithContext(ctx, src))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && lr != nil && lr.N <= 0 {
		err = types.AcquisitionError(fmt.Sprintf("input exceeds limit of %d bytes", a.MaxSize), nil)
	}
	if err != nil {
		os.Remove(dst)
		var se *types.StageError
		if errors.As(err, &se) {
			return err
		}
		return types.AcquisitionError("copy media", err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader { return ctxReader{ctx: ctx, r: r} }

// SpoolUpload saves an upload body under the store's uploads area before a
// task exists, rejecting bodies above maxSize or with a disallowed extension.
func SpoolUpload(ctx context.Context, store *storage.FileStore, r io.Reader, filename string, maxSize int64) (Source, error) {
	if err := checkExtension(filename); err != nil {
		return Source{}, types.AcquisitionError("upload rejected", err)
	}
	key := path.Join(storage.UploadsDir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
	p, _, err := store.WriteLimited(ctx, key, r, maxSize)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return Source{}, types.AcquisitionError(fmt.Sprintf("upload exceeds limit of %d bytes", maxSize), err)
		}
		return Source{}, types.AcquisitionError("spool upload", err)
	}
	return FromUpload(p, filename), nil
}
