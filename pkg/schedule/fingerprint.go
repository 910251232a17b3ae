package schedule

import (
	"fmt"
	"time"
)

// Fingerprint identifies a task independently of formatting: the start
// instant in whole Unix seconds plus the exact title. It is comparable and
// is used directly as a map key.
type Fingerprint struct {
	Unix  int64
	Title string
}

// FingerprintOf builds the fingerprint for a start instant and title. Remote
// events go through here too, so both sides share one definition.
func FingerprintOf(start time.Time, title string) Fingerprint {
	return Fingerprint{Unix: start.Unix(), Title: title}
}

// Time returns the start instant.
func (f Fingerprint) Time() time.Time {
	return time.Unix(f.Unix, 0)
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%q@%s", f.Title, f.Time().UTC().Format(time.RFC3339))
}

// Less orders fingerprints by start, then title.
func (f Fingerprint) Less(o Fingerprint) bool {
	if f.Unix != o.Unix {
		return f.Unix < o.Unix
	}
	return f.Title < o.Title
}

// Fingerprint normalizes r and returns its identity key.
func (n Normalizer) Fingerprint(r Record) (Fingerprint, error) {
	t, err := n.Normalize(r)
	if err != nil {
		return Fingerprint{}, err
	}
	return t.Fingerprint(), nil
}

// Fingerprint returns the identity key of a normalized task.
func (t Task) Fingerprint() Fingerprint {
	return FingerprintOf(t.Start, t.Title)
}
