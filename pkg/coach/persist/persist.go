// Package persist stores per-session coaching state across disconnects:
// guidance snapshots so an interrupted workout resumes at the exact cue,
// and resumption handles so the agent conversation survives a redial.
package persist

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("persist: not found")

// Kind partitions the values stored under one session.
type Kind string

const (
	// KindSnapshot holds the detailed guidance executor snapshot used for
	// exact cue-position resumption.
	KindSnapshot Kind = "snapshot"
	// KindProgress holds a coarse progress summary for display surfaces
	// that do not need the full snapshot.
	KindProgress Kind = "progress"
	// KindIntent marks whether the last teardown was unexpected, so the
	// next launch knows to offer resumption.
	KindIntent Kind = "intent"
	// KindResumption holds the agent session resumption handle.
	KindResumption Kind = "resumption"
)

// Key identifies one stored value.
type Key struct {
	UserID    string
	SessionID string
	Kind      Kind
}

func (k Key) validate() error {
	if k.UserID == "" || k.SessionID == "" || k.Kind == "" {
		return fmt.Errorf("persist: incomplete key %q/%q/%q", k.UserID, k.SessionID, k.Kind)
	}
	return nil
}

// Bridge is the storage contract the connection manager writes through.
type Bridge interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, data []byte) error
	Delete(ctx context.Context, key Key) error
	Close() error
}
