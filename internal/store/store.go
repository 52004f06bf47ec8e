package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// tmpDirName holds in-flight writes under the store root, on the same
// filesystem as the final locations so publishing is a rename.
const tmpDirName = ".tmp"

// CorruptionError reports an existing entry that fails integrity
// expectations; the entry is recomputed under an implicit rebuild.
type CorruptionError struct {
	Key Key
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("store entry %s is corrupt: %v", e.Key, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Store is a filesystem-backed content-addressed store. Concurrent writers
// to the same key perform the work at most once; writers to different keys
// do not contend. Entries become visible only through an atomic rename, so
// readers never observe a partially written file.
type Store struct {
	root   string
	logger *slog.Logger
	group  singleflight.Group
}

// New opens (creating if needed) a store rooted at root.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, tmpDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Store{root: root, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger for the store.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.logger = logger
	return s
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// TempDir creates a private staging directory on the store's filesystem,
// for producers whose external tools write multiple outputs before any of
// them can be published. Callers remove it when done.
func (s *Store) TempDir() (string, error) {
	dir := filepath.Join(s.root, tmpDirName, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	return dir, nil
}

// PathOf resolves a key to its absolute location.
func (s *Store) PathOf(k Key) string {
	return filepath.Join(s.root, k.RelPath())
}

// Exists reports whether a finalized, non-empty entry is present at key.
// A zero-byte entry counts as absent: it fails the integrity expectation
// and will be recomputed by the next Publish.
func (s *Store) Exists(k Key) bool {
	return s.Verify(k) == nil
}

// Verify checks the integrity expectations of an existing entry.
// Returns nil for a valid entry, os.ErrNotExist when absent, and a
// *CorruptionError for an entry that is present but unusable.
func (s *Store) Verify(k Key) error {
	info, err := os.Stat(s.PathOf(k))
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}
	if info.Size() == 0 {
		return &CorruptionError{Key: k, Err: fmt.Errorf("entry is empty")}
	}
	return nil
}

type publishResult struct {
	path    string
	written bool
}

// Publish computes and atomically installs the entry at key. The write
// callback receives a private temporary path; on success the temporary
// file is renamed into place. Concurrent Publish calls for the same key
// and rebuild flag execute write at most once; late callers share the
// first result. Rebuild and non-rebuild callers never coalesce, so a
// rebuild request cannot ride along on a skip result.
//
// With rebuild false an existing valid entry short-circuits (written is
// false). With rebuild true the entry is recomputed and republished; the
// swap is still atomic. A corrupt existing entry is recomputed regardless
// of rebuild.
func (s *Store) Publish(ctx context.Context, k Key, rebuild bool, write func(tmpPath string) error) (path string, written bool, err error) {
	flightKey := k.RelPath()
	if rebuild {
		flightKey = "rebuild\x00" + flightKey
	}
	v, err, _ := s.group.Do(flightKey, func() (any, error) {
		final := s.PathOf(k)

		if !rebuild {
			switch verr := s.Verify(k); {
			case verr == nil:
				return publishResult{path: final, written: false}, nil
			case os.IsNotExist(verr):
				// fall through to compute
			default:
				s.logger.Warn("recomputing corrupt store entry",
					slog.String("key", k.String()),
					slog.String("error", verr.Error()),
				)
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create entry directory: %w", err)
		}

		tmp := filepath.Join(s.root, tmpDirName, uuid.NewString())
		defer os.RemoveAll(tmp)

		if err := write(tmp); err != nil {
			return nil, err
		}

		info, err := os.Stat(tmp)
		if err != nil {
			return nil, fmt.Errorf("write produced no output for %s: %w", k, err)
		}
		if !info.IsDir() && info.Size() == 0 {
			return nil, fmt.Errorf("write produced an empty output for %s", k)
		}

		// A rebuild replaces the old entry; rename over it atomically.
		if err := os.Rename(tmp, final); err != nil {
			if rebuild {
				if rmErr := os.RemoveAll(final); rmErr == nil {
					err = os.Rename(tmp, final)
				}
			}
			if err != nil {
				return nil, fmt.Errorf("failed to publish %s: %w", k, err)
			}
		}

		s.logger.Debug("published store entry", slog.String("key", k.String()))
		return publishResult{path: final, written: true}, nil
	})
	if err != nil {
		return "", false, err
	}
	res := v.(publishResult)
	return res.path, res.written, nil
}
