// Package recovery persists the extraction recovery checkpoint: the record
// that an extraction cycle undeployed a set of packages and has not yet put
// them back. It survives process restarts so an interrupted cycle can be
// finished at the next start.
package recovery

import (
	"time"

	"github.com/arthur-debert/modkeeper/pkg/errors"
)

// FormatVersion is the checkpoint format written by this version
const FormatVersion = 1

// Checkpoint records the packages an extraction cycle undeployed
type Checkpoint struct {
	Version           int       `json:"version"`
	CycleID           string    `json:"cycle_id"`
	PackageIDs        []string  `json:"package_ids"`
	UndeployTimestamp time.Time `json:"undeploy_timestamp"`
	Pending           bool      `json:"pending"`
}

// New creates a pending checkpoint for the given packages
func New(cycleID string, packageIDs []string, undeployedAt time.Time) Checkpoint {
	return Checkpoint{
		Version:           FormatVersion,
		CycleID:           cycleID,
		PackageIDs:        append([]string{}, packageIDs...),
		UndeployTimestamp: undeployedAt.UTC(),
		Pending:           true,
	}
}

// Validate ensures checkpoint integrity
func (c *Checkpoint) Validate() error {
	if c.Version < 1 || c.Version > FormatVersion {
		return errors.Newf(errors.ErrInvalidState, "unsupported checkpoint version %d", c.Version)
	}
	if c.UndeployTimestamp.IsZero() {
		return errors.New(errors.ErrInvalidState, "checkpoint has no undeploy timestamp")
	}
	seen := make(map[string]struct{}, len(c.PackageIDs))
	for _, id := range c.PackageIDs {
		if id == "" {
			return errors.New(errors.ErrInvalidState, "checkpoint lists an empty package id")
		}
		if _, dup := seen[id]; dup {
			return errors.Newf(errors.ErrInvalidState, "checkpoint lists package %s twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
