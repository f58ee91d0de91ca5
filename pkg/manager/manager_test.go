// TEST TYPE: Integration Tests
// DEPENDENCIES: testutil in-memory game, in-memory SQLite journal, fake clock,
// fake installer/launcher/predicate
// PURPOSE: Verify the caller-facing API wires engine, extraction, recovery and journal

package manager

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/config"
	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/extraction"
	"github.com/arthur-debert/modkeeper/pkg/journal"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopInstaller struct{}

func (nopInstaller) EnsureInstalled(context.Context, bool, func(string)) error { return nil }

type nopLauncher struct{}

func (nopLauncher) Launch(context.Context, func(string)) error { return nil }

type flagPredicate struct{ done atomic.Bool }

func (p *flagPredicate) IsComplete(context.Context, string, time.Time) (bool, error) {
	return p.done.Load(), nil
}

type env struct {
	*testutil.Game
	clock     *clockwork.FakeClock
	predicate *flagPredicate
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return &env{
		Game:      testutil.NewMemoryGame(t),
		clock:     clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		predicate: &flagPredicate{},
	}
}

// open starts a manager process over the env's filesystem
func (e *env) open(t *testing.T) *Manager {
	t.Helper()
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	m, err := New(config.Default(), e.Paths, Options{
		FS:        e.FS,
		Installer: nopInstaller{},
		Launcher:  nopLauncher{},
		Predicate: e.predicate,
		Clock:     e.clock,
		Journal:   j,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func (e *env) addPackage(t *testing.T, id string, order int, rel, content string) {
	t.Helper()
	e.AddPackage(t, id, testutil.PackageConfig{LoadOrder: order, Files: map[string]string{rel: content}})
}

func TestManager_ResolveAndDeploy(t *testing.T) {
	e := newEnv(t)
	e.addPackage(t, "alpha", 1, "Data/shared.txt", "alpha")
	e.addPackage(t, "beta", 2, "Data/shared.txt", "beta")
	m := e.open(t)

	res, err := m.Resolve()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, res.Order)
	assert.Len(t, res.Packages, 2)
	assert.Empty(t, res.Conflicts, "nothing deployed yet")

	batch, err := m.DeployAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, batch.Succeeded)

	content, ok := e.ReadFile("Data/shared.txt")
	require.True(t, ok)
	assert.Equal(t, "beta", content)

	res, err = m.Resolve()
	require.NoError(t, err)
	assert.True(t, res.HasConflict("alpha"))

	require.NoError(t, m.Undeploy("beta"))
	content, _ = e.ReadFile("Data/shared.txt")
	assert.Equal(t, "alpha", content)

	entries, err := m.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "undeploy", entries[0].Operation)
	assert.Equal(t, "beta", entries[0].Package)
	assert.Equal(t, "deploy_all", entries[1].Operation)
	assert.Equal(t, "success", entries[1].Outcome)
}

func TestManager_EngineBlockedDuringCycle(t *testing.T) {
	e := newEnv(t)
	e.addPackage(t, "alpha", 1, "Data/a.txt", "a")
	m := e.open(t)
	_, err := m.DeployAll()
	require.NoError(t, err)

	c, err := m.StartExtraction(context.Background(), ExtractionOptions{})
	require.NoError(t, err)
	assert.Equal(t, extraction.StateModsDetected, c.State())
	assert.Same(t, c, m.CurrentCycle())

	assert.True(t, errors.IsErrorCode(m.Undeploy("alpha"), errors.ErrConcurrentOperation))
	assert.True(t, errors.IsErrorCode(m.SetLoadOrder("alpha", 3), errors.ErrConcurrentOperation))
	_, err = m.StartExtraction(context.Background(), ExtractionOptions{})
	assert.True(t, errors.IsErrorCode(err, errors.ErrConcurrentOperation))

	assert.True(t, errors.IsErrorCode(m.Cancel("no-such-cycle"), errors.ErrNotFound))
	require.NoError(t, m.Cancel(c.ID()))
	assert.Equal(t, extraction.StateCancelled, c.State())

	assert.NoError(t, m.Undeploy("alpha"))
}

func TestManager_FullExtractionCycle(t *testing.T) {
	e := newEnv(t)
	e.addPackage(t, "alpha", 1, "Data/a.txt", "a")
	e.addPackage(t, "beta", 2, "Data/b.txt", "b")
	m := e.open(t)
	_, err := m.DeployAll()
	require.NoError(t, err)

	events, cancel := m.Subscribe(progress.DefaultBuffer)
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	c, err := m.StartExtraction(ctx, ExtractionOptions{Confirm: true, Launch: true})
	require.NoError(t, err)
	assert.Equal(t, extraction.StateWaitingForExtraction, c.State())

	_, present := e.ReadFile("Data/a.txt")
	assert.False(t, present, "packages are undeployed while extracting")
	cp, err := m.PendingRecovery()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, []string{"alpha", "beta"}, cp.PackageIDs)

	require.NoError(t, e.clock.BlockUntilContext(ctx, 2))
	e.predicate.done.Store(true)
	e.clock.Advance(2 * time.Second)

	state, err := c.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, extraction.StateComplete, state)

	_, present = e.ReadFile("Data/a.txt")
	assert.True(t, present)
	cp, err = m.PendingRecovery()
	require.NoError(t, err)
	assert.Nil(t, cp)

	var sawState bool
	for len(events) > 0 {
		if ev := <-events; ev.Kind == progress.KindState && ev.CycleID == c.ID() {
			sawState = true
		}
	}
	assert.True(t, sawState, "subscribers see state transitions")

	entries, err := m.History(ctx, 50)
	require.NoError(t, err)
	var outcomes []string
	for _, en := range entries {
		if en.Kind == journal.KindCycle {
			outcomes = append(outcomes, en.Outcome)
		}
	}
	require.NotEmpty(t, outcomes)
	assert.Equal(t, "Complete", outcomes[0], "newest cycle entry is the final state")
}

func TestManager_RecoverAfterCrash(t *testing.T) {
	e := newEnv(t)
	e.addPackage(t, "alpha", 1, "Data/a.txt", "a")
	first := e.open(t)
	_, err := first.DeployAll()
	require.NoError(t, err)

	_, err = first.StartExtraction(context.Background(), ExtractionOptions{Confirm: true})
	require.NoError(t, err)
	// process dies before launching the game

	m := e.open(t)
	cp, err := m.PendingRecovery()
	require.NoError(t, err)
	require.NotNil(t, cp)

	_, err = m.StartExtraction(context.Background(), ExtractionOptions{})
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidState))
	assert.True(t, errors.IsErrorCode(m.DiscardRecovery(false), errors.ErrInvalidInput))

	batch, err := m.RecoverPending()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, batch.Succeeded)
	content, ok := e.ReadFile("Data/a.txt")
	require.True(t, ok)
	assert.Equal(t, "a", content)

	cp, err = m.PendingRecovery()
	require.NoError(t, err)
	assert.Nil(t, cp)

	_, err = m.RecoverPending()
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	assert.True(t, errors.IsErrorCode(m.DiscardRecovery(true), errors.ErrNotFound))
}

func TestManager_PendingCheckpointBlocksPackageChanges(t *testing.T) {
	e := newEnv(t)
	e.addPackage(t, "alpha", 1, "Data/a.txt", "a")
	e.addPackage(t, "beta", 2, "Data/b.txt", "b")
	first := e.open(t)
	_, err := first.DeployAll()
	require.NoError(t, err)
	_, err = first.StartExtraction(context.Background(), ExtractionOptions{Confirm: true})
	require.NoError(t, err)

	m := e.open(t)
	require.NoError(t, e.FS.MkdirAll("/downloads/gamma/Data", 0755))
	require.NoError(t, afero.WriteFile(e.FS, "/downloads/gamma/Data/g.txt", []byte("g"), 0644))

	blocked := map[string]func() error{
		"deploy":         func() error { return m.Deploy("beta") },
		"undeploy":       func() error { return m.Undeploy("alpha") },
		"deploy all":     func() error { _, err := m.DeployAll(); return err },
		"undeploy all":   func() error { _, err := m.UndeployAll(); return err },
		"set load order": func() error { return m.SetLoadOrder("alpha", 9) },
		"remove":         func() error { return m.Remove("alpha") },
		"import":         func() error { _, err := m.Import("/downloads/gamma", ""); return err },
	}
	for name, op := range blocked {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidState), err.Error())
		})
	}

	pkgs, err := m.Packages()
	require.NoError(t, err)
	assert.Len(t, pkgs, 2, "nothing was removed or imported")

	batch, err := m.RecoverPending()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, batch.Succeeded)
	for _, rel := range []string{"Data/a.txt", "Data/b.txt"} {
		_, ok := e.ReadFile(rel)
		assert.True(t, ok, rel)
	}

	require.NoError(t, m.Undeploy("beta"), "changes are allowed again once recovered")
}

func TestManager_DeployCannotOverwriteModkeeperFiles(t *testing.T) {
	e := newEnv(t)
	e.addPackage(t, "victim", 1, "Data/v.txt", "v")
	e.addPackage(t, "evil", 2, "modpacks/victim/modpack.toml", "id = 'hijacked'")
	e.addPackage(t, "config-clobber", 3, "modkeeper.toml", "[game]")
	m := e.open(t)

	for _, id := range []string{"evil", "config-clobber"} {
		err := m.Deploy(id)
		require.Error(t, err, id)
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput), err.Error())
	}
	assert.False(t, e.Exists(t, "modkeeper.toml"))

	pkgs, err := m.Packages()
	require.NoError(t, err)
	assert.Len(t, pkgs, 3, "the victim manifest is intact")
	require.NoError(t, m.Deploy("victim"))

	batch, err := m.DeployAll()
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"evil", "config-clobber"}, batch.FailedIDs())
}

func TestManager_DiscardRecovery(t *testing.T) {
	e := newEnv(t)
	e.addPackage(t, "alpha", 1, "Data/a.txt", "a")
	first := e.open(t)
	_, err := first.DeployAll()
	require.NoError(t, err)
	_, err = first.StartExtraction(context.Background(), ExtractionOptions{Confirm: true})
	require.NoError(t, err)

	m := e.open(t)
	require.NoError(t, m.DiscardRecovery(true))
	cp, err := m.PendingRecovery()
	require.NoError(t, err)
	assert.Nil(t, cp)
	_, present := e.ReadFile("Data/a.txt")
	assert.False(t, present, "discard leaves packages undeployed")
}

func TestManager_ImportAndRemove(t *testing.T) {
	e := newEnv(t)
	m := e.open(t)

	src := "/downloads/better-trees"
	require.NoError(t, e.FS.MkdirAll(filepath.Join(src, "Data"), 0755))
	require.NoError(t, afero.WriteFile(e.FS, filepath.Join(src, "Data", "trees.xml"), []byte("<trees/>"), 0644))

	pkg, err := m.Import(src, "")
	require.NoError(t, err)
	assert.Equal(t, "better-trees", pkg.ID)
	assert.False(t, pkg.Deployed)

	pkgs, err := m.Packages()
	require.NoError(t, err)
	require.Len(t, pkgs, 1)

	require.NoError(t, m.Deploy("better-trees"))
	assert.True(t, errors.IsErrorCode(m.Remove("better-trees"), errors.ErrInvalidInput))
	require.NoError(t, m.Undeploy("better-trees"))
	require.NoError(t, m.Remove("better-trees"))

	pkgs, err = m.Packages()
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}
