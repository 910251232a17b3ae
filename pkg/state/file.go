package state

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

var discard = log.New(io.Discard, "", 0)

// FileStore keeps the snapshot as an indented JSON array in one file.
type FileStore struct {
	Path string
}

// NewFileStore returns a store at path. Nothing is touched until Load or
// Commit.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Location() string { return s.Path }

func (s *FileStore) Load(ctx context.Context) (schedule.Snapshot, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoState, s.Path)
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", s.Path, err)
	}
	snap, err := schedule.DecodeSnapshot(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.Path, err)
	}
	return snap, nil
}

// Commit writes to a temporary file in the same directory and renames it
// over Path, so readers see either the old or the new snapshot.
func (s *FileStore) Commit(ctx context.Context, snap schedule.Snapshot) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := schedule.EncodeSnapshot(f, snap); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Chmod(tmp, 0600); err != nil {
		return fmt.Errorf("failed to set state file mode: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
