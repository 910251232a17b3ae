// Package orgmode reads TODO entries from Org-mode files as a schedule
// source.
package orgmode

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// Entry is one headline with a TODO keyword.
type Entry struct {
	Keyword  string
	Priority string // A, B or C
	Title    string
	Tags     []string
	ID       string

	// Date and Clock come from SCHEDULED, else DEADLINE. Clock is "HH:MM"
	// or "HH:MM-HH:MM" and empty for all-day timestamps.
	Date     string
	Clock    string
	Deadline bool

	Body []string
}

// Active reports whether the entry still needs doing.
func (e Entry) Active() bool {
	switch e.Keyword {
	case "TODO", "NEXT", "WAITING":
		return true
	}
	return false
}

func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

var (
	headlineRegex = regexp.MustCompile(`^\*+\s+(TODO|NEXT|WAITING|DONE|CANCELLED)\b\s*(?:\[#([A-Z])\]\s*)?(.*?)(?:\s+(:[\w@#%:]+:))?\s*$`)
	anyHeadline   = regexp.MustCompile(`^\*+\s`)
	plannedRegex  = regexp.MustCompile(`(SCHEDULED|DEADLINE):\s*<(\d{4}-\d{2}-\d{2})(?:\s+[^\s\d>]+)?(?:\s+(\d{1,2}:\d{2})(?:-(\d{1,2}:\d{2}))?)?[^>]*>`)
	planningLine  = regexp.MustCompile(`^(SCHEDULED|DEADLINE|CLOSED):`)
	idRegex       = regexp.MustCompile(`^:ID:\s+(\S+)`)
)

// Parse returns every TODO-keyword entry in r, in file order.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var entries []Entry
	var current *Entry
	inDrawer := false

	flush := func() {
		if current != nil {
			entries = append(entries, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if anyHeadline.MatchString(raw) {
			flush()
			inDrawer = false
			if m := headlineRegex.FindStringSubmatch(raw); m != nil {
				current = &Entry{Keyword: m[1], Priority: m[2], Title: strings.TrimSpace(m[3])}
				if m[4] != "" {
					current.Tags = strings.Split(strings.Trim(m[4], ":"), ":")
				}
			}
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case line == ":PROPERTIES:" || line == ":LOGBOOK:":
			inDrawer = true
		case line == ":END:":
			inDrawer = false
		case inDrawer:
			if m := idRegex.FindStringSubmatch(line); m != nil {
				current.ID = m[1]
			}
		case planningLine.MatchString(line):
			for _, m := range plannedRegex.FindAllStringSubmatch(line, -1) {
				scheduled := m[1] == "SCHEDULED"
				if current.Date != "" && !(scheduled && current.Deadline) {
					continue
				}
				current.Date, current.Deadline = m[2], !scheduled
				current.Clock = clock(m[3], m[4])
			}
		case line != "":
			current.Body = append(current.Body, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func clock(from, to string) string {
	if from == "" {
		return ""
	}
	if to == "" {
		return pad(from)
	}
	return pad(from) + "-" + pad(to)
}

// pad turns H:MM into HH:MM.
func pad(hm string) string {
	if len(hm) == 4 {
		return "0" + hm
	}
	return hm
}
