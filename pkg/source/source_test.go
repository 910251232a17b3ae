package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

func TestFileLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"task": "Gym", "date": "2024-01-01", "time": "08:00-09:00"},
		{"task": "Read", "start_time": "2024-01-01T21:00:00", "priority": "low"}
	]`), 0600))

	snap, err := NewFile(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, "Gym", snap[0].Task)
	assert.Equal(t, "low", snap[1].Priority)
}

func TestFileLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFile(filepath.Join(dir, "missing.json")).Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"task": "Gym"}`), 0600))
	_, err = NewFile(bad).Load(context.Background())
	assert.Error(t, err)

	null := filepath.Join(dir, "null.json")
	require.NoError(t, os.WriteFile(null, []byte("null\n"), 0600))
	snap, err := NewFile(null).Load(context.Background())
	assert.Error(t, err, "null must not read as an empty schedule")
	assert.Nil(t, snap)
}

func TestStaticCopies(t *testing.T) {
	s := Static{{Task: "Gym"}}
	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	snap[0].Task = "changed"
	assert.Equal(t, "Gym", s[0].Task)
	assert.Equal(t, schedule.Snapshot{{Task: "changed"}}, snap)
}
