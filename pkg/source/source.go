// Package source provides the current schedule to the sync engine.
package source

import (
	"context"
	"fmt"
	"os"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

// Source produces the current snapshot. It is read-only to the engine.
type Source interface {
	Load(ctx context.Context) (schedule.Snapshot, error)
	Name() string
}

// File reads a JSON array of task records, e.g. data/schedule.json.
type File struct {
	Path string
}

// NewFile returns a source reading path.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Name() string { return "file:" + f.Path }

// Load fails when the file is missing or is not a JSON array. Individual
// records that are not usable tasks are kept and reported by the diff.
func (f *File) Load(ctx context.Context) (schedule.Snapshot, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open schedule file %s: %w", f.Path, err)
	}
	defer fh.Close()

	snap, err := schedule.DecodeSnapshot(fh)
	if err != nil {
		return nil, fmt.Errorf("unable to read schedule file %s: %w", f.Path, err)
	}
	return snap, nil
}

// Static serves a fixed snapshot.
type Static schedule.Snapshot

func (s Static) Name() string { return "static" }

func (s Static) Load(ctx context.Context) (schedule.Snapshot, error) {
	out := make(schedule.Snapshot, len(s))
	copy(out, s)
	return out, nil
}
