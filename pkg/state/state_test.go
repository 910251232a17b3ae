package state

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

var sample = schedule.Snapshot{
	{Task: "Gym", Date: "2024-01-01", Time: "08:00-09:00"},
	{Task: "Read", StartTime: "2024-01-01T21:00:00", Priority: "high"},
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	db, err := OpenSQLiteStore(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"file":   NewFileStore(filepath.Join(dir, "nested", "last_sync_state.json")),
		"sqlite": db,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx)
			require.ErrorIs(t, err, ErrNoState)

			require.NoError(t, store.Commit(ctx, sample))
			got, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, sample, got)

			require.NoError(t, store.Commit(ctx, nil))
			got, err = store.Load(ctx)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	for name, body := range map[string]string{
		"syntax": "{not json",
		"null":   "null\n",
		"object": `{"task": "Gym"}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0600))

			_, err := NewFileStore(path).Load(context.Background())
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestNullStateFallsBackToPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("null"), 0600))

	res := Resolve(context.Background(), NewFileStore(path), sample, AssumeSynced, nil)
	assert.Equal(t, OriginAssumeSynced, res.Origin)
	assert.Equal(t, sample, res.Snapshot)
	assert.ErrorIs(t, res.LoadErr, ErrCorrupt)
}

func TestFileStoreCommitReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Commit(ctx, sample))
	require.NoError(t, store.Commit(ctx, sample[:1]))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample[:1], got)
}

func TestSQLiteStoreCorruptAndHistory(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()
	store.History = 3

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Commit(ctx, sample))
	}
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = store.db.Exec(`INSERT INTO snapshots (committed_at, body) VALUES (0, 'garbage')`)
	require.NoError(t, err)
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = store.db.Exec(`INSERT INTO snapshots (committed_at, body) VALUES (0, 'null')`)
	require.NoError(t, err)
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"":              AssumeSynced,
		"assume-synced": AssumeSynced,
		"Defensive":     AssumeSynced,
		"bootstrap":     Bootstrap,
		" empty ":       Bootstrap,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePolicy("yolo")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	current := schedule.Snapshot{{Task: "Swim", Date: "2024-02-01", Time: "07:00"}}

	t.Run("loaded state wins regardless of policy", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
		require.NoError(t, store.Commit(ctx, sample))

		for _, p := range []Policy{AssumeSynced, Bootstrap} {
			res := Resolve(ctx, store, current, p, nil)
			assert.Equal(t, OriginStore, res.Origin)
			assert.NoError(t, res.LoadErr)
			assert.Equal(t, sample, res.Snapshot)
		}
	})

	t.Run("empty array is a valid state", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0600))

		res := Resolve(ctx, NewFileStore(path), current, AssumeSynced, nil)
		assert.Equal(t, OriginStore, res.Origin)
		assert.Empty(t, res.Snapshot)
	})

	for _, content := range []string{"", "{broken", `{"task": "x"}`} {
		path := filepath.Join(t.TempDir(), "state.json")
		if content != "" {
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		}
		store := NewFileStore(path)

		t.Run("assume synced "+content, func(t *testing.T) {
			var logs bytes.Buffer
			res := Resolve(ctx, store, current, AssumeSynced, log.New(&logs, "", 0))
			assert.Equal(t, OriginAssumeSynced, res.Origin)
			assert.Error(t, res.LoadErr)
			assert.Equal(t, current, res.Snapshot)
			assert.Contains(t, logs.String(), string(AssumeSynced))
		})

		t.Run("bootstrap "+content, func(t *testing.T) {
			res := Resolve(ctx, store, current, Bootstrap, nil)
			assert.Equal(t, OriginBootstrap, res.Origin)
			assert.Error(t, res.LoadErr)
			assert.NotNil(t, res.Snapshot)
			assert.Empty(t, res.Snapshot)
		})
	}
}
