package extraction

import (
	"sort"
	"sync"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/deploy"
	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/external"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/metrics"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/recovery"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Defaults used when Settings leaves a field zero
const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 30 * time.Minute
)

// Outcome labels passed to metrics.Recorder.IncExtractionOutcome
const (
	OutcomeComplete  = "complete"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
)

// Engine is the part of the deployment engine a cycle drives
type Engine interface {
	UndeployAll() (*deploy.BatchResult, error)
	DeployOnly(ids []string) (*deploy.BatchResult, error)
}

// Deps are the collaborators a cycle needs
type Deps struct {
	FS          afero.Fs
	Engine      Engine
	Checkpoints recovery.Store
	Installer   external.Installer
	Launcher    external.Launcher
	Predicate   Predicate
}

// Settings tune a cycle
type Settings struct {
	GameRoot string
	// Fingerprint is the extractor's output marker, relative to GameRoot.
	// It is deleted before launch so a stale one cannot end the wait early.
	Fingerprint  string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Orchestrator creates extraction cycles, one at a time
type Orchestrator struct {
	deps     Deps
	settings Settings
	clock    clockwork.Clock
	reporter progress.Reporter
	recorder metrics.Recorder
	newID    func() string
	logger   zerolog.Logger

	mu      sync.Mutex
	current *Cycle
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithReporter sets where state and progress events go
func WithReporter(r progress.Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithIDGenerator replaces the uuid cycle id generator
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New creates an orchestrator
func New(deps Deps, settings Settings, opts ...Option) *Orchestrator {
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	o := &Orchestrator{
		deps:     deps,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		reporter: progress.Discard,
		recorder: metrics.NoopRecorder{},
		newID:    uuid.NewString,
		logger:   logging.GetLogger("extraction"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Begin starts a cycle for the currently deployed packages. It fails with
// CONCURRENT_OPERATION while another cycle is unfinished, and with
// INVALID_STATE while a recovery checkpoint from an earlier run is pending.
func (o *Orchestrator) Begin(deployedIDs []string) (*Cycle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil && !o.current.State().Finished() {
		return nil, errors.Newf(errors.ErrConcurrentOperation,
			"extraction cycle %s is still %s", o.current.id, o.current.State())
	}

	pending, err := o.deps.Checkpoints.LoadFrom(o.settings.GameRoot)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, errors.Newf(errors.ErrInvalidState,
			"a recovery checkpoint from cycle %s is pending; recover or discard it first", pending.CycleID).
			WithDetail(errors.DetailPath, recovery.Path(o.settings.GameRoot))
	}

	c := newCycle(o, o.newID(), dedupSorted(deployedIDs))
	o.current = c
	o.logger.Info().Str("cycle", c.id).Int("packages", len(c.packageIDs)).Msg("Extraction cycle started")
	c.publishState(StateModsDetected, StateModsDetected, nil)
	return c, nil
}

// Current returns the most recent cycle, or nil
func (o *Orchestrator) Current() *Cycle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Active reports whether a cycle is unfinished
func (o *Orchestrator) Active() bool {
	c := o.Current()
	return c != nil && !c.State().Finished()
}

func dedupSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
