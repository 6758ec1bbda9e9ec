// Package storage keeps the shift-factor tables handed from the estimate
// step to the shift step, keyed by session name.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// ErrEmptyName is returned when a snapshot or lookup has no session name.
var ErrEmptyName = errors.New("session name required")

// Snapshot is an estimated shift-factor table together with the parameters
// it was built from.
type Snapshot struct {
	Session     string      `json:"session"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Source      wlf.Params  `json:"source"`
	Table       shift.Table `json:"table"`
}

// Store holds the latest snapshot per session.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, session string) (Snapshot, bool, error)
}

// ValidateName checks that a session name is usable as a storage key:
// letters, digits, hyphens and underscores only.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid session name %q: only alphanumeric, hyphens, and underscores allowed", name)
		}
	}
	return nil
}
