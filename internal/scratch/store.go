// Package scratch manages the on-disk area where uploaded databases are
// materialized before they are opened.
//
// Every request gets its own subdirectory under the store root, named by a
// random id, so one request's cleanup can never touch another request's
// file. Stale subdirectories are reclaimed by [Store.Sweep], which runs at
// the start of every upload and on a schedule (see [Sweeper]).
package scratch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/JonMunkholm/sqlview/internal/logging"
)

// ErrTooLarge is returned by [File.Write] when the payload exceeds the limit.
var ErrTooLarge = errors.New("payload exceeds size limit")

// fileSuffix is appended to every materialized database.
const fileSuffix = ".sqlite3"

// Store allocates request-scoped scratch files under a root directory.
type Store struct {
	root   string
	retain bool
}

// New returns a Store rooted at root. When retain is set, released files are
// kept on disk until a sweep finds them older than its max age.
func New(root string, retain bool) *Store {
	return &Store{root: root, retain: retain}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// File is one request's materialized database. It is owned by a single
// request and must be released exactly once, on every exit path.
type File struct {
	ID   string
	Dir  string
	Path string

	store    *Store
	size     int64
	released bool
}

// Allocate creates a fresh request directory and an empty database file in
// it. The root is created if absent.
func (s *Store) Allocate() (*File, error) {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}

	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create request dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "upload-*"+fileSuffix)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("close scratch file: %w", err)
	}

	return &File{ID: id, Dir: dir, Path: path, store: s}, nil
}

// Write copies r into the file, truncating any previous content. A limit
// of zero or less disables the size check. The file is synced before
// returning so the engine sees the complete payload.
func (f *File) Write(r io.Reader, limit int64) (int64, error) {
	out, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open scratch file: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	n, err := io.Copy(out, src)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("write scratch file: %w", err)
	}
	if limit > 0 && n > limit {
		out.Close()
		return n, fmt.Errorf("%w: more than %s", ErrTooLarge, humanize.IBytes(uint64(limit)))
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, fmt.Errorf("sync scratch file: %w", err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close scratch file: %w", err)
	}

	f.size = n
	return n, nil
}

// Size returns the number of bytes written by the last successful Write.
func (f *File) Size() int64 {
	return f.size
}

// Release gives the file back to the store. Unless the store retains files,
// the request directory and everything the engine left next to the database
// (journal, wal, shm) are removed. Calling Release more than once is a no-op.
func (f *File) Release(ctx context.Context) error {
	if f.released {
		return nil
	}
	f.released = true

	logger := logging.WithFields(ctx, "scratch_id", f.ID)
	if f.store.retain {
		logger.Info("retaining scratch file for inspection", "path", f.Path)
		return nil
	}

	PurgeAll(ctx, f.Dir)
	if err := os.Remove(f.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("failed to remove request dir", "dir", f.Dir, "error", err)
		return fmt.Errorf("remove request dir: %w", err)
	}
	logger.Debug("scratch released", "dir", f.Dir)
	return nil
}

// PurgeAll removes every regular file directly inside dir and returns how
// many were removed. Per-file failures are logged and skipped; a missing
// directory is not an error.
func PurgeAll(ctx context.Context, dir string) int {
	logger := logging.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Error("failed to list scratch dir", "dir", dir, "error", err)
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			logger.Error("failed to delete scratch file", "path", path, "error", err)
			continue
		}
		removed++
		logger.Debug("deleted scratch file", "path", path)
	}
	return removed
}

// Sweep removes request directories and stray files under the root whose
// modification time is older than maxAge. Entries that cannot be removed are
// logged and left for the next sweep. It returns the number of entries
// removed; sweeping an empty or missing root removes nothing.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) int {
	logger := logging.FromContext(ctx)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Error("failed to list scratch root", "dir", s.root, "error", err)
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Removed concurrently.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.root, e.Name())
		switch {
		case e.IsDir():
			err = os.RemoveAll(path)
		case e.Type().IsRegular():
			err = os.Remove(path)
		default:
			continue
		}
		if err != nil {
			logger.Error("failed to sweep scratch entry", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("swept stale scratch entries", "removed", removed, "max_age", maxAge.String())
	}
	return removed
}
