package media

import (
	"path"
	"path/filepath"
	"sync"

	"github.com/forPelevin/autoclip/internal/storage"
)

// Workspace is a task's scratch directory. It holds the normalized source,
// the extracted audio and chunk files, and is removed once the task is
// terminal.
type Workspace struct {
	store *storage.FileStore
	key   string
	dir   string

	once sync.Once
	err  error
}

func NewWorkspace(store *storage.FileStore, taskID string) (*Workspace, error) {
	key := path.Join(storage.WorkDir, taskID)
	dir, err := store.Dir(key)
	if err != nil {
		return nil, err
	}
	return &Workspace{store: store, key: key, dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name ...string) string {
	return filepath.Join(append([]string{w.dir}, name...)...)
}

// Release removes the workspace. Only the first call does any work.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.err = w.store.RemoveAll(w.key)
	})
	return w.err
}
