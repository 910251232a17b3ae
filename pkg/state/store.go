// Package state persists the last successfully synced snapshot.
package state

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

var (
	// ErrNoState means the slot has never been written.
	ErrNoState = errors.New("no sync state")
	// ErrCorrupt means the slot exists but could not be parsed.
	ErrCorrupt = errors.New("sync state is corrupt")
)

// Store is a single read/write slot holding the last-known snapshot.
type Store interface {
	// Load returns the last committed snapshot. Failures wrap ErrNoState or
	// ErrCorrupt when they can be classified.
	Load(ctx context.Context) (schedule.Snapshot, error)
	// Commit replaces the slot with snap.
	Commit(ctx context.Context, snap schedule.Snapshot) error
	// Location describes where the slot lives, for logs.
	Location() string
}

// Policy decides what the last-known snapshot is when Load fails.
type Policy string

const (
	// AssumeSynced treats the current snapshot as already synced, so a lost
	// state file creates nothing. Real changes are picked up on the next run.
	AssumeSynced Policy = "assume-synced"
	// Bootstrap treats the last-known snapshot as empty, so every current
	// task is created remotely.
	Bootstrap Policy = "bootstrap"
)

// DefaultPolicy is used when none is configured.
const DefaultPolicy = AssumeSynced

// ParsePolicy accepts the policy names plus a few aliases.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(AssumeSynced), "assume_synced", "defensive":
		return AssumeSynced, nil
	case string(Bootstrap), "empty", "first-run":
		return Bootstrap, nil
	}
	return "", fmt.Errorf("unknown missing-state policy %q (want %q or %q)", s, AssumeSynced, Bootstrap)
}

// Origin says where the last-known snapshot used by a run came from.
type Origin string

const (
	OriginStore        Origin = "store"
	OriginAssumeSynced Origin = "missing-assume-synced"
	OriginBootstrap    Origin = "missing-bootstrap"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Snapshot schedule.Snapshot
	Origin   Origin
	// LoadErr is the Load failure the policy covered, if any.
	LoadErr error
}

// Resolve loads the last-known snapshot from store and applies policy when
// that fails. It never returns an error; the failure is kept in LoadErr.
func Resolve(ctx context.Context, store Store, current schedule.Snapshot, policy Policy, logger *log.Logger) Resolution {
	if logger == nil {
		logger = discard
	}

	snap, err := store.Load(ctx)
	if err == nil {
		return Resolution{Snapshot: snap, Origin: OriginStore}
	}

	switch policy {
	case Bootstrap:
		logger.Printf("state %s unusable (%v); policy %s: treating every current task as new", store.Location(), err, policy)
		return Resolution{Snapshot: schedule.Snapshot{}, Origin: OriginBootstrap, LoadErr: err}
	default:
		logger.Printf("state %s unusable (%v); policy %s: assuming current schedule is already synced", store.Location(), err, AssumeSynced)
		cp := make(schedule.Snapshot, len(current))
		copy(cp, current)
		return Resolution{Snapshot: cp, Origin: OriginAssumeSynced, LoadErr: err}
	}
}
