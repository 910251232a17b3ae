package orgmode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

const agenda = `#+TITLE: Week
* Notes
Some text that belongs to no task.
* TODO [#A] Gym :health:morning:
  SCHEDULED: <2024-01-01 Mon 8:00-9:00>
  :PROPERTIES:
  :ID:       5f2c-11
  :END:
  Legs day.
  Stretch after.
** NEXT Read chapter 3
   DEADLINE: <2024-01-03 Wed 21:00> SCHEDULED: <2024-01-01 Mon 21:30>
* DONE Pay rent
  SCHEDULED: <2024-01-01 Mon 10:00>
* TODO Someday
* TODO Holiday
  SCHEDULED: <2024-01-05 Fri>
`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(agenda))
	require.NoError(t, err)
	require.Len(t, entries, 5)

	gym := entries[0]
	assert.Equal(t, "TODO", gym.Keyword)
	assert.Equal(t, "A", gym.Priority)
	assert.Equal(t, "Gym", gym.Title)
	assert.Equal(t, []string{"health", "morning"}, gym.Tags)
	assert.Equal(t, "5f2c-11", gym.ID)
	assert.Equal(t, "2024-01-01", gym.Date)
	assert.Equal(t, "08:00-09:00", gym.Clock)
	assert.Equal(t, []string{"Legs day.", "Stretch after."}, gym.Body)

	read := entries[1]
	assert.Equal(t, "NEXT", read.Keyword)
	assert.Equal(t, "Read chapter 3", read.Title)
	assert.Equal(t, "2024-01-01", read.Date, "SCHEDULED wins over DEADLINE")
	assert.Equal(t, "21:30", read.Clock)
	assert.False(t, read.Deadline)

	assert.False(t, entries[2].Active())
	assert.Equal(t, "", entries[3].Date)
	assert.Equal(t, "2024-01-05", entries[4].Date)
	assert.Equal(t, "", entries[4].Clock)
}

func TestDeadlineOnly(t *testing.T) {
	entries, err := Parse(strings.NewReader("* TODO File taxes\n  DEADLINE: <2024-04-15 Mon 17:00>\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Deadline)
	assert.Equal(t, "17:00", entries[0].Clock)
}

func TestSourceLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "week.org")
	require.NoError(t, os.WriteFile(path, []byte(agenda), 0600))

	snap, err := NewSource([]string{path}, "").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 2, "done, undated and all-day entries are skipped")

	assert.Equal(t, "Gym", snap[0].Task)
	assert.Equal(t, "08:00-09:00", snap[0].Time)
	assert.Equal(t, "high", snap[0].Priority)
	assert.Equal(t, "Legs day.\nStretch after.", snap[0].Desc)
	assert.JSONEq(t, `"5f2c-11"`, string(snap[0].Extra["org_id"]))

	task, err := schedule.NewNormalizer(time.UTC).Normalize(snap[0])
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), task.Start)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), task.End)

	snap, err = NewSource([]string{path}, "health").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)

	_, err = NewSource([]string{filepath.Join(dir, "missing.org")}, "").Load(context.Background())
	assert.Error(t, err)

	_, err = NewSource(nil, "").Load(context.Background())
	assert.Error(t, err)
}
