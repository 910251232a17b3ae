package taskwarrior

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

const export = `[
	{
		"uuid": "f45a05b3-c12e-42e5-9c9c-333333333333",
		"description": "Buy milk",
		"status": "pending",
		"due": "20230101T120000Z",
		"project": "Groceries",
		"priority": "H",
		"tags": ["buy", "food"],
		"annotations": [
			{"entry": "20230101T120500Z", "description": "Don't forget almond milk"},
			{"entry": "20230101T120600Z", "description": "and bread"}
		]
	},
	{
		"uuid": "a1",
		"description": "Write report",
		"status": "pending",
		"scheduled": "20230102T010000Z",
		"due": "20230105T010000Z",
		"est": "PT1H30M"
	},
	{"uuid": "a2", "description": "Someday", "status": "pending"}
]`

func fakeRun(out string, err error, got *[]string) runFunc {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*got = append([]string{name}, args...)
		return []byte(out), err
	}
}

func TestLoad(t *testing.T) {
	var args []string
	c := NewClient([]string{"+cal"}, time.UTC)
	c.run = fakeRun(export, nil, &args)

	snap, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"task", "+cal", "export", "rc.hooks=0"}, args)
	require.Len(t, snap, 2)

	milk := snap[0]
	assert.Equal(t, "Buy milk", milk.Task)
	assert.Equal(t, "2023-01-01T12:00:00Z", milk.StartTime)
	assert.Equal(t, "2023-01-01T13:00:00Z", milk.EndTime)
	assert.Equal(t, "Don't forget almond milk\nand bread", milk.Desc)
	assert.Equal(t, "H", milk.Priority)
	assert.JSONEq(t, `"f45a05b3-c12e-42e5-9c9c-333333333333"`, string(milk.Extra["uuid"]))

	report := snap[1]
	assert.Equal(t, "2023-01-02T01:00:00Z", report.StartTime, "scheduled wins over due")
	assert.Equal(t, "2023-01-02T02:30:00Z", report.EndTime)
}

func TestRecordsNormalize(t *testing.T) {
	var args []string
	c := NewClient(nil, nil)
	c.run = fakeRun(export, nil, &args)
	assert.Equal(t, DefaultFilter, c.Filter)

	snap, err := c.Load(context.Background())
	require.NoError(t, err)

	n := schedule.NewNormalizer(nil)
	task, err := n.Normalize(snap[0])
	require.NoError(t, err)
	assert.True(t, task.Start.Equal(time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2023-01-01T20:00:00+08:00", snap[0].StartTime)
}

func TestLoadFailure(t *testing.T) {
	var args []string
	c := NewClient(nil, nil)
	c.run = fakeRun("", errors.New("task: command not found"), &args)
	_, err := c.Load(context.Background())
	assert.Error(t, err)

	c.run = fakeRun("not json", nil, &args)
	_, err = c.Load(context.Background())
	assert.ErrorContains(t, err, "unmarshal")
}

func TestParseTasks(t *testing.T) {
	input := `{"uuid": "1", "description": "a", "status": "pending", "due": "20230101T120000Z"}
{"uuid": "2", "description": "b", "status": "completed", "end": "0"}`

	tasks, err := ParseTasks(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].Description)
	assert.True(t, tasks[0].Due.Time.Equal(time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, COMPLETED, tasks[1].Status)
	assert.True(t, tasks[1].End.IsZero())

	tasks, err = ParseTasks(strings.NewReader("\n [" + strings.ReplaceAll(input, "}\n{", "},{") + "]"))
	require.NoError(t, err)
	require.Len(t, tasks, 2, "export arrays decode too")
	assert.Equal(t, "b", tasks[1].Description)

	tasks, err = ParseTasks(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = ParseTasks(strings.NewReader(`{"due": "yesterday"}`))
	assert.Error(t, err)
	_, err = ParseTasks(strings.NewReader(`[{"due": "yesterday"}]`))
	assert.Error(t, err)
}

func TestReaderClient(t *testing.T) {
	input := `[
		{"uuid": "1", "description": "Buy milk", "status": "pending", "due": "20230101T120000Z"},
		{"uuid": "2", "description": "Old", "status": "completed", "due": "20230101T080000Z"},
		{"uuid": "3", "description": "Gone", "status": "deleted", "due": "20230101T090000Z"},
		{"uuid": "4", "description": "Someday", "status": "pending"}
	]`
	c := NewReaderClient(strings.NewReader(input), time.UTC)
	assert.Equal(t, "taskwarrior:stdin", c.Name())

	snap, err := c.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "Buy milk", snap[0].Task)
	assert.Equal(t, "2023-01-01T12:00:00Z", snap[0].StartTime)
	assert.Equal(t, "2023-01-01T13:00:00Z", snap[0].EndTime)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"PT1H", time.Hour, false},
		{"PT30M", 30 * time.Minute, false},
		{"PT1H30M15S", time.Hour + 30*time.Minute + 15*time.Second, false},
		{"P1D", 0, true},
		{"PT", 0, true},
		{"PT0M", 0, true},
		{"PT1X", 0, true},
		{"1h", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
