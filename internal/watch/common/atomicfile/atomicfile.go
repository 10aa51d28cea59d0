// Package atomicfile stages whole-file rewrites next to their target so a
// crash leaves either the old or the new content, never a partial file.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Staged is a fully written temporary file awaiting Commit or Discard.
type Staged struct {
	target string
	tmp    string
	done   bool
}

// Stage writes data to a temporary file in the directory of target and
// syncs it. The target itself is untouched until Commit.
func Stage(target string, data []byte, perm os.FileMode) (*Staged, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", target, err)
	}
	tmp := f.Name()
	fail := func(err error) (*Staged, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("stage %s: %w", target, err)
	}
	if _, err := f.Write(data); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("stage %s: %w", target, err)
	}
	return &Staged{target: target, tmp: tmp}, nil
}

// Commit atomically replaces the target with the staged content.
func (s *Staged) Commit() error {
	if s.done {
		return errors.New("atomicfile: already finalized")
	}
	s.done = true
	if err := os.Rename(s.tmp, s.target); err != nil {
		_ = os.Remove(s.tmp)
		return fmt.Errorf("replace %s: %w", s.target, err)
	}
	return nil
}

// Discard removes the staged content. Discarding a committed file is a no-op.
func (s *Staged) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := os.Remove(s.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WriteFile stages and commits data in one step.
func WriteFile(target string, data []byte, perm os.FileMode) error {
	s, err := Stage(target, data, perm)
	if err != nil {
		return err
	}
	return s.Commit()
}
