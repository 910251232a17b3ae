package taskwarrior

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	PENDING   = "pending"
	COMPLETED = "completed"
	WAITING   = "waiting"
	DELETED   = "deleted"
)

// CustomTime reads Taskwarrior's compact UTC timestamps.
type CustomTime struct {
	time.Time
}

const taskwarriorTimeLayout = "20060102T150405Z"

func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "0" || s == "null" {
		ct.Time = time.Time{}
		return nil
	}

	t, err := time.Parse(taskwarriorTimeLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse Taskwarrior time string '%s': %w", s, err)
	}
	ct.Time = t
	return nil
}

func (ct CustomTime) MarshalJSON() ([]byte, error) {
	if ct.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + ct.Time.UTC().Format(taskwarriorTimeLayout) + `"`), nil
}

func (ct *CustomTime) set() bool { return ct != nil && !ct.IsZero() }

type Annotation struct {
	Description string      `json:"description"`
	Entry       *CustomTime `json:"entry"`
}

// Task is one entry of `task export`. Est is the estimate UDA
// (uda.estimate.label=est), exported as an ISO 8601 duration.
type Task struct {
	UUID        string       `json:"uuid"`
	Description string       `json:"description"`
	Due         *CustomTime  `json:"due,omitempty"`
	Scheduled   *CustomTime  `json:"scheduled,omitempty"`
	Status      string       `json:"status"`
	Project     string       `json:"project,omitempty"`
	Priority    string       `json:"priority,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Start       *CustomTime  `json:"start,omitempty"`
	End         *CustomTime  `json:"end,omitempty"`
	Est         string       `json:"est,omitempty"`
}

var durationPart = regexp.MustCompile(`(\d+)([HMS])`)

// ParseDuration parses the time part of an ISO 8601 duration (PT1H30M).
// The empty string is a zero duration.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	rest, ok := strings.CutPrefix(s, "PT")
	if !ok || rest == "" {
		return 0, fmt.Errorf("invalid ISO 8601 duration: %s", s)
	}

	var total time.Duration
	matched := 0
	for _, m := range durationPart.FindAllStringSubmatch(rest, -1) {
		value, _ := strconv.Atoi(m[1])
		matched += len(m[0])
		switch m[2] {
		case "H":
			total += time.Duration(value) * time.Hour
		case "M":
			total += time.Duration(value) * time.Minute
		case "S":
			total += time.Duration(value) * time.Second
		}
	}
	if matched != len(rest) || total == 0 {
		return 0, fmt.Errorf("invalid ISO 8601 duration: %s", s)
	}
	return total, nil
}
