// Package scratch tracks temporary directories for one invocation and
// removes them together when the invocation ends.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Tracker owns every scratch directory acquired during a run. Create
// one per invocation and defer Release.
type Tracker struct {
	root   string
	logger *zap.Logger

	mu       sync.Mutex
	dirs     []string
	released bool
}

// New returns a Tracker that creates directories under root. An empty
// root means the system temporary directory.
func New(root string, logger *zap.Logger) (*Tracker, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{root: root, logger: logger}, nil
}

// Dir creates a fresh directory whose name starts with prefix.
func (t *Tracker) Dir(prefix string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return "", fmt.Errorf("scratch tracker already released")
	}

	dir, err := os.MkdirTemp(t.root, prefix)
	if err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	t.dirs = append(t.dirs, dir)

	t.logger.Debug("Acquired scratch directory", zap.String("dir", dir))
	return dir, nil
}

// Len returns how many directories are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dirs)
}

// Release removes every tracked directory. It is safe to call more
// than once; later calls are no-ops.
func (t *Tracker) Release() error {
	t.mu.Lock()
	dirs := t.dirs
	t.dirs = nil
	t.released = true
	t.mu.Unlock()

	var errs []error
	for _, dir := range dirs {
		// Never remove anything outside the configured root
		rel, err := filepath.Rel(t.root, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			errs = append(errs, fmt.Errorf("refusing to remove %s outside scratch root", dir))
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
			continue
		}
		t.logger.Debug("Released scratch directory", zap.String("dir", dir))
	}
	return errors.Join(errs...)
}
