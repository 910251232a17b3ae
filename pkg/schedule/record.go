package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Known record keys. Anything else is carried through untouched in Extra.
const (
	keyTask        = "task"
	keyDate        = "date"
	keyTime        = "time"
	keyStartTime   = "start_time"
	keyEndTime     = "end_time"
	keyDesc        = "desc"
	keyDescription = "description"
	keyPriority    = "priority"
)

// Record is a raw task record as it appears in the schedule file and in the
// persisted state. Time may be given either as StartTime/EndTime or as a
// Date plus a Time range such as "08:00-09:00".
type Record struct {
	Task        string
	Date        string
	Time        string
	StartTime   string
	EndTime     string
	Desc        string
	Description string
	Priority    string

	// Extra holds keys this package does not interpret, so a record survives
	// a load/commit round trip byte-for-byte in meaning.
	Extra map[string]json.RawMessage

	// decodeErr is set when the value was not an object or a known key had
	// an unusable JSON type. The record is kept in the snapshot but never
	// normalizes.
	decodeErr error
	// raw is the original value when it was not a JSON object.
	raw json.RawMessage
}

// Snapshot is an ordered list of records: what the calendar should contain.
type Snapshot []Record

// UnmarshalJSON accepts any JSON value. Non-objects and objects with badly
// typed known keys decode without error and are later reported as malformed.
func (r *Record) UnmarshalJSON(b []byte) error {
	*r = Record{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		r.decodeErr = fmt.Errorf("record is not an object: %s", truncate(b, 40))
		r.raw = append(json.RawMessage(nil), b...)
		return nil
	}

	for k, v := range fields {
		var dst *string
		switch k {
		case keyTask:
			dst = &r.Task
		case keyDate:
			dst = &r.Date
		case keyTime:
			dst = &r.Time
		case keyStartTime:
			dst = &r.StartTime
		case keyEndTime:
			dst = &r.EndTime
		case keyDesc:
			dst = &r.Desc
		case keyDescription:
			dst = &r.Description
		case keyPriority:
			dst = &r.Priority
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[k] = v
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			if r.decodeErr == nil {
				r.decodeErr = fmt.Errorf("field %q: %w", k, err)
			}
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[k] = v
			continue
		}
		*dst = s
	}
	return nil
}

// MarshalJSON writes known non-empty fields plus Extra as one object with
// sorted keys. A record that was not an object is written back verbatim.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}

	out := make(map[string]json.RawMessage, len(r.Extra)+8)
	for k, v := range r.Extra {
		out[k] = v
	}
	for k, v := range map[string]string{
		keyTask:        r.Task,
		keyDate:        r.Date,
		keyTime:        r.Time,
		keyStartTime:   r.StartTime,
		keyEndTime:     r.EndTime,
		keyDesc:        r.Desc,
		keyDescription: r.Description,
		keyPriority:    r.Priority,
	} {
		if v == "" {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(out[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Body returns the free-form description, preferring "desc" over "description".
func (r Record) Body() string {
	if r.Desc != "" {
		return r.Desc
	}
	return r.Description
}

// DecodeSnapshot reads a JSON array of records. Anything other than an
// array, null included, is an error: an empty snapshot has to be written as
// [].
func DecodeSnapshot(rd io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(rd).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap == nil {
		return nil, errors.New("failed to decode snapshot: got null, want a JSON array")
	}
	return snap, nil
}

// EncodeSnapshot writes snap as an indented JSON array.
func EncodeSnapshot(w io.Writer, snap Snapshot) error {
	if snap == nil {
		snap = Snapshot{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// scalarString turns a JSON string, number or bool into its text form. null
// decodes to "".
func scalarString(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return "", nil
	}
	switch v[0] {
	case '"':
		var s string
		err := json.Unmarshal(v, &s)
		return s, err
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		return "", fmt.Errorf("unexpected %s value", kind(v[0]))
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

func kind(c byte) string {
	if c == '{' {
		return "object"
	}
	return "array"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
