package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/recovery"
	"github.com/rs/zerolog"
)

// Progress actions published by a cycle, besides state transitions
const (
	ActionCheckpoint = "checkpoint"
	ActionInstall    = "install"
	ActionLaunch     = "launch"
	ActionWait       = "wait"
)

// Cycle is one pass through the extraction state machine
type Cycle struct {
	o          *Orchestrator
	id         string
	packageIDs []string
	logger     zerolog.Logger

	mu         sync.Mutex
	state      State
	published  State
	err        error
	checkpoint *recovery.Checkpoint
	startedAt  time.Time
	changed    chan struct{}
	// launching is set while the launcher runs; cancelling while Cancel
	// redeploys out of PendingLaunch. Either one keeps the other out.
	launching  bool
	cancelling bool

	cancelRequested chan struct{}
	cancelOnce      sync.Once
}

func newCycle(o *Orchestrator, id string, packageIDs []string) *Cycle {
	return &Cycle{
		o:               o,
		id:              id,
		packageIDs:      packageIDs,
		logger:          o.logger.With().Str("cycle", id).Logger(),
		state:           StateModsDetected,
		published:       StateModsDetected,
		changed:         make(chan struct{}),
		cancelRequested: make(chan struct{}),
	}
}

// ID is the cycle's unique id
func (c *Cycle) ID() string { return c.id }

// PackageIDs is the deployed set the cycle started with
func (c *Cycle) PackageIDs() []string {
	return append([]string(nil), c.packageIDs...)
}

// State is the current state
func (c *Cycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the error that moved the cycle into Error, if any
func (c *Cycle) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Confirm undeploys everything and prepares the extractor. The checkpoint
// is on disk before the first package is touched.
func (c *Cycle) Confirm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.transition(StateUndeploying, nil); err != nil {
		return err
	}

	now := c.o.clock.Now()
	cp := recovery.New(c.id, c.packageIDs, now)
	c.mu.Lock()
	c.startedAt = now
	c.mu.Unlock()

	if err := c.o.deps.Checkpoints.SaveTo(c.o.settings.GameRoot, cp); err != nil {
		return c.fail(err)
	}
	c.mu.Lock()
	c.checkpoint = &cp
	c.mu.Unlock()
	c.publish(progress.KindInfo, ActionCheckpoint,
		fmt.Sprintf("recovery checkpoint written for %d packages", len(cp.PackageIDs)))

	if _, err := c.o.deps.Engine.UndeployAll(); err != nil {
		return c.fail(err)
	}
	if err := c.removeFingerprint(); err != nil {
		return c.fail(err)
	}
	if err := c.o.deps.Installer.EnsureInstalled(ctx, true, c.progressFunc(ActionInstall)); err != nil {
		return c.fail(externalFailure(err, "extractor install failed"))
	}
	return c.transition(StatePendingLaunch, nil)
}

// Launch starts the game and begins waiting for the extractor. It returns
// as soon as the game process is started.
func (c *Cycle) Launch(ctx context.Context) error {
	c.mu.Lock()
	if s := c.state; s != StatePendingLaunch || c.launching || c.cancelling {
		c.mu.Unlock()
		return invalidState("launch", s)
	}
	c.launching = true
	c.mu.Unlock()

	err := c.o.deps.Launcher.Launch(ctx, c.progressFunc(ActionLaunch))
	if err == nil {
		err = c.transition(StateWaitingForExtraction, nil)
	} else {
		err = c.fail(externalFailure(err, "game launch failed"))
	}
	c.mu.Lock()
	c.launching = false
	c.mu.Unlock()
	if err != nil {
		return err
	}
	// A Cancel that arrived while launching is picked up by the poll loop

	c.mu.Lock()
	since := c.checkpoint.UndeployTimestamp
	deadline := c.startedAt.Add(c.o.settings.Timeout)
	c.mu.Unlock()
	go c.poll(since, deadline)
	return nil
}

// Cancel abandons the extraction. Before anything was undeployed the cycle
// simply ends; afterwards the recorded packages are redeployed first. While
// waiting, the poll loop does the redeploy and Cancel returns immediately.
func (c *Cycle) Cancel() error {
	switch s := c.State(); s {
	case StateModsDetected:
		return c.transition(StateCancelled, nil)
	case StatePendingLaunch:
		c.mu.Lock()
		switch {
		case c.launching:
			c.mu.Unlock()
			c.requestCancel()
			return nil
		case c.cancelling:
			c.mu.Unlock()
			return invalidState("cancel", StateRedeploying)
		case c.state != StatePendingLaunch:
			c.mu.Unlock()
			return c.Cancel()
		}
		c.cancelling = true
		c.mu.Unlock()
		return c.redeploy(true)
	case StateWaitingForExtraction:
		c.requestCancel()
		return nil
	case StateError:
		return errors.New(errors.ErrInvalidState,
			"cycle is in Error; redeploy anyway or discard the checkpoint")
	default:
		return invalidState("cancel", s)
	}
}

func (c *Cycle) requestCancel() {
	c.cancelOnce.Do(func() { close(c.cancelRequested) })
}

// RedeployAnyway restores the recorded packages after an error, whether or
// not the extractor finished.
func (c *Cycle) RedeployAnyway(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s := c.State(); s != StateError {
		return invalidState("redeploy", s)
	}
	return c.redeploy(false)
}

// Discard drops the checkpoint without restoring anything. The packages it
// lists stay undeployed, which is why acknowledged must be true.
func (c *Cycle) Discard(acknowledged bool) error {
	if s := c.State(); s != StateError {
		return invalidState("discard", s)
	}
	if !acknowledged {
		return errors.New(errors.ErrInvalidInput,
			"discarding leaves the recorded packages undeployed and must be acknowledged")
	}
	if err := c.o.deps.Checkpoints.Delete(c.o.settings.GameRoot); err != nil {
		return err
	}
	c.logger.Warn().Strs("packages", c.packageIDs).Msg("Checkpoint discarded without redeploy")
	return c.transition(StateCancelled, nil)
}

// Wait blocks until the cycle is Complete, Cancelled or in Error. It returns
// the state reached and, for Error, the error that caused it.
func (c *Cycle) Wait(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		state, err, changed := c.published, c.err, c.changed
		c.mu.Unlock()

		if state.Settled() {
			if state == StateError {
				return state, err
			}
			return state, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// poll waits for the predicate, a cancel request or the deadline
func (c *Cycle) poll(since, deadline time.Time) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := c.o.clock
	ticker := clock.NewTicker(c.o.settings.PollInterval)
	defer ticker.Stop()
	timer := clock.NewTimer(deadline.Sub(clock.Now()))
	defer timer.Stop()

	var notify <-chan struct{}
	if n, ok := c.o.deps.Predicate.(Notifier); ok {
		notify = n.Notify()
	}

	c.publish(progress.KindInfo, ActionWait, "waiting for the game to finish extracting")
	if c.extracted(ctx, since) {
		_ = c.redeploy(false)
		return
	}

	for {
		select {
		case <-c.cancelRequested:
			_ = c.redeploy(true)
			return
		case <-timer.Chan():
			c.timedOut()
			return
		case <-ticker.Chan():
		case <-notify:
		}

		// a cancel that raced a tick wins
		select {
		case <-c.cancelRequested:
			_ = c.redeploy(true)
			return
		default:
		}

		if c.extracted(ctx, since) {
			_ = c.redeploy(false)
			return
		}
		if !clock.Now().Before(deadline) {
			c.timedOut()
			return
		}
	}
}

func (c *Cycle) extracted(ctx context.Context, since time.Time) bool {
	done, err := c.o.deps.Predicate.IsComplete(ctx, c.o.settings.GameRoot, since)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Completion check failed, will retry")
		c.publish(progress.KindWarn, ActionWait, err.Error())
		return false
	}
	return done
}

func (c *Cycle) timedOut() {
	err := errors.Newf(errors.ErrExtractionTimeout,
		"extraction did not finish within %s", c.o.settings.Timeout)
	_ = c.fail(err)
}

// redeploy puts back exactly the recorded packages and clears the checkpoint
func (c *Cycle) redeploy(cancelled bool) error {
	if err := c.transition(StateRedeploying, nil); err != nil {
		return err
	}

	ids := c.packageIDs
	cp, err := c.currentCheckpoint()
	if err != nil {
		return c.fail(err)
	}
	if cp != nil {
		ids = cp.PackageIDs
	}

	if _, err := c.o.deps.Engine.DeployOnly(ids); err != nil {
		return c.fail(err)
	}
	if cp != nil {
		if err := c.o.deps.Checkpoints.Delete(c.o.settings.GameRoot); err != nil {
			return c.fail(err)
		}
	}

	if cancelled {
		return c.transition(StateCancelled, nil)
	}
	return c.transition(StateComplete, nil)
}

// currentCheckpoint returns the checkpoint this cycle wrote, falling back to
// disk. It is nil when the cycle failed before writing one.
func (c *Cycle) currentCheckpoint() (*recovery.Checkpoint, error) {
	c.mu.Lock()
	cp := c.checkpoint
	c.mu.Unlock()
	if cp != nil {
		return cp, nil
	}
	disk, err := c.o.deps.Checkpoints.LoadFrom(c.o.settings.GameRoot)
	if err != nil || disk == nil || disk.CycleID != c.id {
		return nil, err
	}
	return disk, nil
}

func (c *Cycle) removeFingerprint() error {
	if c.o.settings.Fingerprint == "" {
		return nil
	}
	path := filepath.Join(c.o.settings.GameRoot, filepath.FromSlash(c.o.settings.Fingerprint))
	if err := c.o.deps.FS.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrFileSystem, "remove stale fingerprint").
			WithDetail(errors.DetailPath, path)
	}
	return nil
}

// fail moves the cycle to Error and returns err
func (c *Cycle) fail(err error) error {
	if terr := c.transition(StateError, err); terr != nil {
		c.logger.Error().Err(terr).Msg("Cannot record cycle failure")
	}
	return err
}

func (c *Cycle) transition(to State, cause error) error {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		return invalidState(fmt.Sprintf("move to %s", to), from)
	}
	c.state = to
	if to == StateError {
		c.err = cause
	} else {
		c.err = nil
	}
	startedAt := c.startedAt
	c.mu.Unlock()

	c.publishState(from, to, cause)
	c.recordOutcome(to, cause, startedAt)

	// waiters wake only after the transition has been published
	c.mu.Lock()
	c.published = to
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
	return nil
}

func (c *Cycle) recordOutcome(to State, cause error, startedAt time.Time) {
	rec := c.o.recorder
	switch to {
	case StateComplete:
		rec.IncExtractionOutcome(OutcomeComplete)
		if !startedAt.IsZero() {
			rec.ObserveExtractionDuration(c.o.clock.Since(startedAt))
		}
	case StateCancelled:
		rec.IncExtractionOutcome(OutcomeCancelled)
	case StateError:
		if errors.IsErrorCode(cause, errors.ErrExtractionTimeout) {
			rec.IncExtractionOutcome(OutcomeTimeout)
		} else {
			rec.IncExtractionOutcome(OutcomeError)
		}
	}
}

func (c *Cycle) publishState(from, to State, cause error) {
	msg := to.String()
	if from != to {
		msg = fmt.Sprintf("%s -> %s", from, to)
	}
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
		c.logger.Error().Err(cause).Str("from", from.String()).Msg("Extraction cycle failed")
	} else {
		c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Cycle transition")
	}
	c.o.reporter.Publish(progress.Event{
		Kind:    progress.KindState,
		Action:  "transition",
		Message: msg,
		State:   to.String(),
		CycleID: c.id,
	})
}

func (c *Cycle) publish(kind progress.Kind, action, message string) {
	c.o.reporter.Publish(progress.Event{
		Kind:    kind,
		Action:  action,
		Message: message,
		CycleID: c.id,
	})
}

func (c *Cycle) progressFunc(action string) func(string) {
	return func(msg string) {
		c.publish(progress.KindInfo, action, msg)
	}
}

func invalidState(what string, s State) error {
	return errors.Newf(errors.ErrInvalidState, "cannot %s: cycle is %s", what, s).
		WithDetail("state", s.String())
}

// externalFailure keeps coded errors and tags the rest as external failures
func externalFailure(err error, message string) error {
	if errors.GetErrorCode(err) != errors.ErrUnknown {
		return err
	}
	return errors.Wrap(err, errors.ErrExternalProcess, message)
}
