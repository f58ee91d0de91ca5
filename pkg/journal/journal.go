package journal

import (
	"context"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/progress"
)

// Entry kinds
const (
	KindOperation = "operation"
	KindCycle     = "cycle"
)

// DefaultLimit is how many entries History returns when no limit is given
const DefaultLimit = 50

// Entry is one journal line
type Entry struct {
	ID        int64
	Time      time.Time
	Kind      string
	Operation string
	Package   string
	CycleID   string
	Outcome   string
	Message   string
}

// Journal records and lists entries
type Journal interface {
	Record(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Nop is a Journal that keeps nothing (journal.enabled = false)
type Nop struct{}

func (Nop) Record(context.Context, Entry) error          { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Close() error                                 { return nil }

// StateRecorder returns a progress.Reporter that journals extraction state
// transitions. Other events are ignored. Failures to write are passed to
// onErr, which may be nil.
func StateRecorder(j Journal, onErr func(error)) progress.Reporter {
	return progress.Func(func(e progress.Event) {
		if e.Kind != progress.KindState {
			return
		}
		err := j.Record(context.Background(), Entry{
			Time:      e.Time,
			Kind:      KindCycle,
			Operation: "extraction",
			CycleID:   e.CycleID,
			Outcome:   e.State,
			Message:   e.Message,
		})
		if err != nil && onErr != nil {
			onErr(err)
		}
	})
}
