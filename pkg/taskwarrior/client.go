// Package taskwarrior exposes a Taskwarrior database as a schedule source.
package taskwarrior

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

// DefaultFilter selects tasks that can still happen.
var DefaultFilter = []string{"status:pending"}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Client runs `task export` and maps the result to schedule records.
type Client struct {
	Filter []string
	// Zone is the zone timestamps are rendered in. Taskwarrior exports UTC.
	Zone   *time.Location
	Logger *log.Logger
	// Input, when set, is read instead of running task, e.g. `task export`
	// piped into lifeops. Filter is not applied to it.
	Input io.Reader

	run runFunc
}

func NewClient(filter []string, zone *time.Location) *Client {
	if len(filter) == 0 {
		filter = DefaultFilter
	}
	if zone == nil {
		zone = schedule.FallbackZone
	}
	return &Client{Filter: filter, Zone: zone, run: runTask}
}

// NewReaderClient reads exported tasks from r. Completed and deleted tasks
// in the stream are dropped.
func NewReaderClient(r io.Reader, zone *time.Location) *Client {
	c := NewClient(nil, zone)
	c.Input = r
	return c
}

func (c *Client) Name() string {
	if c.Input != nil {
		return "taskwarrior:stdin"
	}
	return "taskwarrior:" + strings.Join(c.Filter, " ")
}

// GetTasks runs `task <filter> export` with hooks disabled, or reads Input
// when set.
func (c *Client) GetTasks(ctx context.Context) ([]Task, error) {
	if c.Input != nil {
		return c.readInput()
	}
	args := append(append([]string{}, c.Filter...), "export", "rc.hooks=0")
	run := c.run
	if run == nil {
		run = runTask
	}
	output, err := run(ctx, "task", args...)
	if err != nil {
		return nil, err
	}

	var tasks []Task
	if err := json.Unmarshal(output, &tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal taskwarrior output: %w", err)
	}
	return tasks, nil
}

// Load exports the tasks and converts every dated one into a record.
// Undated tasks cannot be placed on a calendar and are skipped.
func (c *Client) Load(ctx context.Context) (schedule.Snapshot, error) {
	tasks, err := c.GetTasks(ctx)
	if err != nil {
		return nil, err
	}
	snap := make(schedule.Snapshot, 0, len(tasks))
	for _, t := range tasks {
		r, ok := c.ToRecord(t)
		if !ok {
			if c.Logger != nil {
				c.Logger.Printf("Skipping undated task %s (%q)", t.UUID, t.Description)
			}
			continue
		}
		snap = append(snap, r)
	}
	return snap, nil
}

// ToRecord maps a task to a schedule record. The start is the scheduled
// date, else the due date. The end is start plus the estimate, else
// schedule.DefaultDuration. Annotations become the description.
func (c *Client) ToRecord(t Task) (schedule.Record, bool) {
	var start time.Time
	switch {
	case t.Scheduled.set():
		start = t.Scheduled.Time
	case t.Due.set():
		start = t.Due.Time
	default:
		return schedule.Record{}, false
	}

	zone := c.Zone
	if zone == nil {
		zone = schedule.FallbackZone
	}
	start = start.In(zone)

	length := schedule.DefaultDuration
	if est, err := ParseDuration(t.Est); err == nil && est > 0 {
		length = est
	} else if err != nil && c.Logger != nil {
		c.Logger.Printf("Ignoring estimate of task %s: %v", t.UUID, err)
	}

	notes := make([]string, 0, len(t.Annotations))
	for _, a := range t.Annotations {
		notes = append(notes, a.Description)
	}

	r := schedule.Record{
		Task:      t.Description,
		StartTime: start.Format(time.RFC3339),
		EndTime:   start.Add(length).Format(time.RFC3339),
		Desc:      strings.Join(notes, "\n"),
		Priority:  t.Priority,
	}
	if t.UUID != "" {
		id, _ := json.Marshal(t.UUID)
		r.Extra = map[string]json.RawMessage{"uuid": id}
	}
	return r, true
}

func (c *Client) readInput() ([]Task, error) {
	tasks, err := ParseTasks(c.Input)
	if err != nil {
		return nil, err
	}
	open := tasks[:0]
	for _, t := range tasks {
		if t.Status == COMPLETED || t.Status == DELETED {
			continue
		}
		open = append(open, t)
	}
	return open, nil
}

// ParseTasks decodes either a `task export` array or a stream of task
// objects, as hooks receive them.
func ParseTasks(r io.Reader) ([]Task, error) {
	br := bufio.NewReader(r)
	if first, err := peekNonSpace(br); err == nil && first == '[' {
		var tasks []Task
		if err := json.NewDecoder(br).Decode(&tasks); err != nil {
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		return tasks, nil
	}

	var tasks []Task
	decoder := json.NewDecoder(br)
	for {
		var task Task
		if err := decoder.Decode(&task); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b, br.UnreadByte()
	}
}

func runTask(ctx context.Context, name string, args ...string) ([]byte, error) {
	output, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("taskwarrior command failed: exit code %d, %s, stderr: %s",
				exitErr.ExitCode(), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("taskwarrior command failed: %w", err)
	}
	return output, nil
}
