// TEST TYPE: Integration Tests
// DEPENDENCIES: In-memory filesystem, real engine, store and checkpoint store,
// fake clock, fake installer and launcher
// PURPOSE: Verify the extraction state machine, crash recovery, timeout and cancel

package extraction

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/deploy"
	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/recovery"
	"github.com/arthur-debert/modkeeper/pkg/store"
	"github.com/arthur-debert/modkeeper/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	gameRoot     = "/game"
	packagesRoot = "/mods"
	fingerprint  = "Extracted/fingerprint.json"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeInstaller struct {
	mu     sync.Mutex
	calls  int
	forced bool
	err    error
}

func (f *fakeInstaller) EnsureInstalled(_ context.Context, force bool, progress func(string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.forced = force
	progress("installed")
	return f.err
}

type fakeLauncher struct {
	launched atomic.Int32
	err      error
	// started and release, when set, hold Launch until the test lets go
	started chan struct{}
	release chan struct{}
}

func (f *fakeLauncher) Launch(context.Context, func(string)) error {
	f.launched.Add(1)
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.err
}

type flagPredicate struct {
	done atomic.Bool
}

func (p *flagPredicate) IsComplete(context.Context, string, time.Time) (bool, error) {
	return p.done.Load(), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Publish(e progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) states() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Kind == progress.KindState {
			out = append(out, e.State)
		}
	}
	return out
}

type fixture struct {
	fs          afero.Fs
	store       *store.DirStore
	engine      *deploy.Engine
	checkpoints *recovery.FileStore
	clock       *clockwork.FakeClock
	installer   *fakeInstaller
	launcher    *fakeLauncher
	predicate   *flagPredicate
	events      *eventLog
	orch        *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, filesystem.NewMemory())
}

// newFixtureOn builds a fresh process over an existing filesystem, which is
// how a restart after a crash looks
func newFixtureOn(t *testing.T, fs afero.Fs) *fixture {
	t.Helper()
	require.NoError(t, fs.MkdirAll(gameRoot, 0755))
	p, err := paths.New(gameRoot)
	require.NoError(t, err)
	p = paths.WithPackagesDir(p, packagesRoot)

	f := &fixture{
		fs:          fs,
		store:       store.New(fs, packagesRoot, nil),
		checkpoints: recovery.NewFileStore(fs),
		clock:       clockwork.NewFakeClockAt(t0),
		installer:   &fakeInstaller{},
		launcher:    &fakeLauncher{},
		predicate:   &flagPredicate{},
		events:      &eventLog{},
	}
	f.engine = deploy.New(fs, f.store, p)
	f.orch = New(Deps{
		FS:          fs,
		Engine:      f.engine,
		Checkpoints: f.checkpoints,
		Installer:   f.installer,
		Launcher:    f.launcher,
		Predicate:   f.predicate,
	}, Settings{
		GameRoot:     gameRoot,
		Fingerprint:  fingerprint,
		PollInterval: 2 * time.Second,
		Timeout:      30 * time.Minute,
	}, WithClock(f.clock), WithReporter(f.events))
	return f
}

// deployPackages stages and deploys one file per package
func (f *fixture) deployPackages(t *testing.T, ids ...string) {
	t.Helper()
	for i, id := range ids {
		rel := "Mods/" + id + ".dat"
		src := filepath.Join(packagesRoot, id, types.FilesDirName, filepath.FromSlash(rel))
		require.NoError(t, f.fs.MkdirAll(filepath.Dir(src), 0755))
		require.NoError(t, afero.WriteFile(f.fs, src, []byte("content of "+id), 0644))
		require.NoError(t, f.store.Save(types.Package{
			ID:        id,
			LoadOrder: i + 1,
			Files:     []types.FileMapping{{Source: rel, Destination: rel}},
		}))
	}
	_, err := f.engine.DeployAll()
	require.NoError(t, err)
}

func (f *fixture) gameFileExists(t *testing.T, id string) bool {
	t.Helper()
	ok, err := afero.Exists(f.fs, filepath.Join(gameRoot, "Mods", id+".dat"))
	require.NoError(t, err)
	return ok
}

func (f *fixture) checkpoint(t *testing.T) *recovery.Checkpoint {
	t.Helper()
	cp, err := f.checkpoints.LoadFrom(gameRoot)
	require.NoError(t, err)
	return cp
}

// launchAndWaitForPoller drives a cycle to WaitingForExtraction and blocks
// until the poll loop has armed its ticker and deadline timer
func (f *fixture) launchAndWaitForPoller(t *testing.T, c *Cycle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Confirm(ctx))
	require.NoError(t, c.Launch(ctx))
	require.NoError(t, f.clock.BlockUntilContext(ctx, 2))
}

func waitSettled(t *testing.T, c *Cycle) (State, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := c.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return state, err
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateModsDetected, StateUndeploying, true},
		{StateModsDetected, StateCancelled, true},
		{StateModsDetected, StatePendingLaunch, false},
		{StateUndeploying, StatePendingLaunch, true},
		{StateUndeploying, StateCancelled, false},
		{StatePendingLaunch, StateWaitingForExtraction, true},
		{StatePendingLaunch, StateRedeploying, true},
		{StateWaitingForExtraction, StateRedeploying, true},
		{StateWaitingForExtraction, StateComplete, false},
		{StateRedeploying, StateComplete, true},
		{StateRedeploying, StateCancelled, true},
		{StateError, StateRedeploying, true},
		{StateError, StateCancelled, true},
		{StateComplete, StateUndeploying, false},
		{StateCancelled, StateModsDetected, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}

	assert.Equal(t, "WaitingForExtraction", StateWaitingForExtraction.String())
	assert.Equal(t, "Unknown", State(99).String())
	assert.True(t, StateError.Settled())
	assert.False(t, StateError.Finished())
}

func TestCycle_CompletesAndRestoresSet(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha", "beta")
	fp := filepath.Join(gameRoot, filepath.FromSlash(fingerprint))
	require.NoError(t, f.fs.MkdirAll(filepath.Dir(fp), 0755))
	require.NoError(t, afero.WriteFile(f.fs, fp, []byte("stale"), 0644))

	c, err := f.orch.Begin([]string{"beta", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, StateModsDetected, c.State())

	require.NoError(t, c.Confirm(context.Background()))
	assert.Equal(t, StatePendingLaunch, c.State())

	cp := f.checkpoint(t)
	require.NotNil(t, cp)
	assert.Equal(t, []string{"alpha", "beta"}, cp.PackageIDs)
	assert.Equal(t, c.ID(), cp.CycleID)
	assert.True(t, cp.Pending)
	assert.False(t, f.gameFileExists(t, "alpha"))
	assert.False(t, f.gameFileExists(t, "beta"))
	stale, err := afero.Exists(f.fs, fp)
	require.NoError(t, err)
	assert.False(t, stale, "stale fingerprint must be removed before launch")
	assert.Equal(t, 1, f.installer.calls)
	assert.True(t, f.installer.forced)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Launch(ctx))
	require.NoError(t, f.clock.BlockUntilContext(ctx, 2))
	assert.Equal(t, int32(1), f.launcher.launched.Load())

	f.predicate.done.Store(true)
	f.clock.Advance(2 * time.Second)

	state, err := waitSettled(t, c)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, state)
	assert.True(t, f.gameFileExists(t, "alpha"))
	assert.True(t, f.gameFileExists(t, "beta"))
	assert.Nil(t, f.checkpoint(t))

	assert.Equal(t, []string{
		"ModsDetected", "Undeploying", "PendingLaunch",
		"WaitingForExtraction", "Redeploying", "Complete",
	}, f.events.states())
}

func TestCycle_CrashAfterCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha", "beta")

	c, err := f.orch.Begin([]string{"alpha", "beta"})
	require.NoError(t, err)
	require.NoError(t, c.Confirm(context.Background()))
	// the process dies here, between undeploy and launch

	restarted := newFixtureOn(t, f.fs)
	cp := restarted.checkpoint(t)
	require.NotNil(t, cp, "restart must find the pending checkpoint")
	assert.Equal(t, []string{"alpha", "beta"}, cp.PackageIDs)

	_, err = restarted.orch.Begin(nil)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidState),
		"a new cycle must not start over a pending checkpoint")

	_, err = restarted.engine.DeployOnly(cp.PackageIDs)
	require.NoError(t, err)
	require.NoError(t, restarted.checkpoints.Delete(gameRoot))

	assert.True(t, restarted.gameFileExists(t, "alpha"))
	assert.True(t, restarted.gameFileExists(t, "beta"))
	assert.Nil(t, restarted.checkpoint(t))
}

func TestCycle_Timeout(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha")

	c, err := f.orch.Begin([]string{"alpha"})
	require.NoError(t, err)
	f.launchAndWaitForPoller(t, c)

	f.clock.Advance(31 * time.Minute)

	state, err := waitSettled(t, c)
	assert.Equal(t, StateError, state)
	assert.True(t, errors.IsErrorCode(err, errors.ErrExtractionTimeout), "got %v", err)
	assert.NotNil(t, f.checkpoint(t), "checkpoint must survive a timeout")
	assert.False(t, f.gameFileExists(t, "alpha"))

	// an Error cycle still blocks a new one
	_, err = f.orch.Begin(nil)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConcurrentOperation))

	require.NoError(t, c.RedeployAnyway(context.Background()))
	assert.Equal(t, StateComplete, c.State())
	assert.True(t, f.gameFileExists(t, "alpha"))
	assert.Nil(t, f.checkpoint(t))
}

func TestCycle_CancelDuringWait(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha", "beta")

	c, err := f.orch.Begin([]string{"alpha", "beta"})
	require.NoError(t, err)
	f.launchAndWaitForPoller(t, c)

	require.NoError(t, c.Cancel())

	state, err := waitSettled(t, c)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, state)

	states := f.events.states()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, []string{"Redeploying", "Cancelled"}, states[len(states)-2:])
	assert.True(t, f.gameFileExists(t, "alpha"))
	assert.True(t, f.gameFileExists(t, "beta"))
	assert.Nil(t, f.checkpoint(t))
}

func TestCycle_CancelBeforeConfirm(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha")

	c, err := f.orch.Begin([]string{"alpha"})
	require.NoError(t, err)
	require.NoError(t, c.Cancel())

	assert.Equal(t, StateCancelled, c.State())
	assert.True(t, f.gameFileExists(t, "alpha"))
	assert.Nil(t, f.checkpoint(t))
	assert.Equal(t, 0, f.installer.calls)

	// finished cycles do not block the next one
	_, err = f.orch.Begin([]string{"alpha"})
	assert.NoError(t, err)
}

func TestCycle_CancelPendingLaunch(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha")

	c, err := f.orch.Begin([]string{"alpha"})
	require.NoError(t, err)
	require.NoError(t, c.Confirm(context.Background()))
	require.NoError(t, c.Cancel())

	assert.Equal(t, StateCancelled, c.State())
	assert.Equal(t, int32(0), f.launcher.launched.Load())
	assert.True(t, f.gameFileExists(t, "alpha"))
	assert.Nil(t, f.checkpoint(t))
}

func TestCycle_CancelWhileLaunching(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha")
	f.launcher.started = make(chan struct{})
	f.launcher.release = make(chan struct{})

	c, err := f.orch.Begin([]string{"alpha"})
	require.NoError(t, err)
	require.NoError(t, c.Confirm(context.Background()))

	launched := make(chan error, 1)
	go func() { launched <- c.Launch(context.Background()) }()
	<-f.launcher.started

	require.NoError(t, c.Cancel())
	assert.Equal(t, StatePendingLaunch, c.State(), "no redeploy while the game is starting")
	assert.False(t, f.gameFileExists(t, "alpha"))
	assert.True(t, errors.IsErrorCode(c.Launch(context.Background()), errors.ErrInvalidState),
		"a second launch is refused")

	close(f.launcher.release)
	require.NoError(t, <-launched)

	state, err := waitSettled(t, c)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, state)
	assert.Equal(t, int32(1), f.launcher.launched.Load())
	assert.True(t, f.gameFileExists(t, "alpha"))
	assert.Nil(t, f.checkpoint(t))
}

func TestCycle_LaunchAfterCancelRefused(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha")

	c, err := f.orch.Begin([]string{"alpha"})
	require.NoError(t, err)
	require.NoError(t, c.Confirm(context.Background()))
	require.NoError(t, c.Cancel())

	assert.True(t, errors.IsErrorCode(c.Launch(context.Background()), errors.ErrInvalidState))
	assert.Equal(t, int32(0), f.launcher.launched.Load())
}

func TestCycle_InstallerFailureThenDiscard(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha")
	f.installer.err = assert.AnError

	c, err := f.orch.Begin([]string{"alpha"})
	require.NoError(t, err)

	err = c.Confirm(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrExternalProcess))
	assert.Contains(t, err.Error(), assert.AnError.Error())
	assert.Equal(t, StateError, c.State())
	assert.NotNil(t, f.checkpoint(t))

	assert.True(t, errors.IsErrorCode(c.Cancel(), errors.ErrInvalidState))
	assert.True(t, errors.IsErrorCode(c.Discard(false), errors.ErrInvalidInput))
	assert.NotNil(t, f.checkpoint(t))

	require.NoError(t, c.Discard(true))
	assert.Equal(t, StateCancelled, c.State())
	assert.Nil(t, f.checkpoint(t))
	assert.False(t, f.gameFileExists(t, "alpha"), "discard does not redeploy")
}

func TestCycle_LaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.deployPackages(t, "alpha")
	f.launcher.err = errors.New(errors.ErrExternalProcess, "no such command")

	c, err := f.orch.Begin([]string{"alpha"})
	require.NoError(t, err)
	require.NoError(t, c.Confirm(context.Background()))

	err = c.Launch(context.Background())
	assert.True(t, errors.IsErrorCode(err, errors.ErrExternalProcess))
	assert.Equal(t, StateError, c.State())

	require.NoError(t, c.RedeployAnyway(context.Background()))
	assert.True(t, f.gameFileExists(t, "alpha"))
}

func TestCycle_InvalidCalls(t *testing.T) {
	f := newFixture(t)
	c, err := f.orch.Begin(nil)
	require.NoError(t, err)

	assert.True(t, errors.IsErrorCode(c.Launch(context.Background()), errors.ErrInvalidState))
	assert.True(t, errors.IsErrorCode(c.RedeployAnyway(context.Background()), errors.ErrInvalidState))
	assert.True(t, errors.IsErrorCode(c.Discard(true), errors.ErrInvalidState))

	_, err = f.orch.Begin(nil)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConcurrentOperation))
	assert.True(t, f.orch.Active())
	assert.Same(t, c, f.orch.Current())
}
