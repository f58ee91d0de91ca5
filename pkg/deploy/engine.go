package deploy

import (
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/metrics"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/resolve"
	"github.com/arthur-debert/modkeeper/pkg/store"
	"github.com/arthur-debert/modkeeper/pkg/types"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Progress actions published by the engine
const (
	ActionDeploy   = "deploy"
	ActionUndeploy = "undeploy"
	ActionCopy     = "copy"
	ActionSkip     = "skip"
	ActionBackup   = "backup"
	ActionRestore  = "restore"
	ActionRemove   = "remove"
	ActionTransfer = "transfer"
	ActionReorder  = "reorder"
)

// Engine deploys and undeploys packages of one game installation. All
// public operations are mutually exclusive: a call made while another is
// running fails with CONCURRENT_OPERATION instead of waiting.
type Engine struct {
	fs       afero.Fs
	store    store.Store
	paths    paths.Paths
	reporter progress.Reporter
	recorder metrics.Recorder
	logger   zerolog.Logger

	mu sync.Mutex
}

// Option configures an Engine
type Option func(*Engine)

// WithReporter sets where progress events go
func WithReporter(r progress.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New creates an engine
func New(fs afero.Fs, st store.Store, p paths.Paths, opts ...Option) *Engine {
	e := &Engine{
		fs:       fs,
		store:    st,
		paths:    p,
		reporter: progress.Discard,
		recorder: metrics.NoopRecorder{},
		logger:   logging.GetLogger("deploy"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deploy copies a staged package into the game directory. Deploying a
// deployed package is a no-op.
func (e *Engine) Deploy(id string) error {
	return e.exclusive(ActionDeploy, func() error {
		return e.deploy(id)
	})
}

// Undeploy removes a deployed package's files. Undeploying a staged package
// is a no-op.
func (e *Engine) Undeploy(id string) error {
	return e.exclusive(ActionUndeploy, func() error {
		return e.undeploy(id)
	})
}

// exclusive runs fn under the engine lock and records the operation
func (e *Engine) exclusive(op string, fn func() error) error {
	if !e.mu.TryLock() {
		return errors.Newf(errors.ErrConcurrentOperation,
			"cannot %s: another deployment operation is in progress", op)
	}
	defer e.mu.Unlock()

	start := time.Now()
	err := fn()
	e.recorder.ObserveOperation(op, time.Since(start), metrics.ResultOf(err))
	e.refreshGauges()
	return err
}

// snapshot loads and resolves the current package set
type snapshot struct {
	pkgs   []types.Package
	result *resolve.Result
	byID   map[string]types.Package
}

func (e *Engine) snapshot() (*snapshot, error) {
	pkgs, err := e.store.ListPackages()
	if err != nil {
		return nil, err
	}
	result, err := resolve.Resolve(pkgs)
	if err != nil {
		return nil, err
	}
	return &snapshot{pkgs: pkgs, result: result, byID: types.ByID(pkgs)}, nil
}

func (s *snapshot) get(id string) (types.Package, error) {
	p, ok := s.byID[id]
	if !ok {
		return types.Package{}, errors.Newf(errors.ErrNotFound, "package %s not found", id).
			WithDetail(errors.DetailPackage, id)
	}
	return p, nil
}

func (s *snapshot) position(id string) int {
	pos, _ := s.result.Position(id)
	return pos
}

func (e *Engine) deploy(id string) error {
	snap, err := e.snapshot()
	if err != nil {
		return err
	}
	pkg, err := snap.get(id)
	if err != nil {
		return err
	}
	if pkg.Deployed {
		e.publish(progress.KindInfo, id, ActionDeploy, "already deployed")
		return nil
	}

	for _, dep := range pkg.Dependencies {
		if d, ok := snap.byID[dep]; !ok || !d.Deployed {
			return errors.NewMissingDependency(id, dep)
		}
	}
	for _, m := range pkg.Files {
		if err := paths.CheckDestination(e.paths, m.Destination); err != nil {
			return errors.Wrapf(err, errors.ErrInvalidInput, "cannot deploy %s", id)
		}
	}

	l, err := loadLedger(e.fs, e.paths.LedgerPath())
	if err != nil {
		return err
	}

	logger := e.logger.With().Str("package", id).Logger()
	logger.Info().Int("files", len(pkg.Files)).Msg("Deploying package")
	e.publish(progress.KindInfo, id, ActionDeploy, "deploying "+pkg.Name())

	owners := resolve.Owners(snap.result, snap.pkgs)
	myPos := snap.position(id)
	copied := 0

	for _, m := range pkg.Files {
		dest := m.Destination
		target := e.paths.GamePath(dest)

		if owner, ok := owners[dest]; ok {
			if snap.position(owner) > myPos {
				logger.Debug().Str("path", dest).Str("owner", owner).Msg("Later package keeps the file")
				e.publish(progress.KindWarn, id, ActionSkip, dest+" is provided by "+owner)
				continue
			}
		} else if !l.hasBackup(dest) {
			backedUp, err := e.backup(l, dest)
			if err != nil {
				return e.copyFailed(l, id, dest, err)
			}
			if backedUp {
				e.publish(progress.KindInfo, id, ActionBackup, "kept original "+dest)
			}
		}

		if err := e.copyInto(l, pkg.SourcePath(m), target); err != nil {
			return e.copyFailed(l, id, dest, err)
		}
		copied++
		e.publish(progress.KindInfo, id, ActionCopy, dest)
	}

	if err := l.save(e.fs, e.paths.LedgerPath()); err != nil {
		return err
	}

	pkg.Deployed = true
	if err := e.store.Save(pkg); err != nil {
		return err
	}

	e.recorder.AddFilesCopied(copied)
	logger.Info().Int("copied", copied).Msg("Package deployed")
	e.publish(progress.KindInfo, id, ActionDeploy, "deployed "+pkg.Name())
	return nil
}

// copyFailed persists what the ledger learned before the failure and
// returns the filesystem error with the raw OS message.
func (e *Engine) copyFailed(l *ledger, id, dest string, err error) error {
	if saveErr := l.save(e.fs, e.paths.LedgerPath()); saveErr != nil {
		e.logger.Error().Err(saveErr).Msg("Failed to save ledger after copy failure")
	}
	e.publish(progress.KindError, id, ActionCopy, err.Error())
	return errors.Wrapf(err, errors.ErrFileSystem, "failed to deploy %s for package %s", dest, id).
		WithDetail(errors.DetailPackage, id).
		WithDetail(errors.DetailPath, dest)
}

// backup moves an existing, unowned file out of the way
func (e *Engine) backup(l *ledger, dest string) (bool, error) {
	target := e.paths.GamePath(dest)
	exists, err := filesystem.Exists(e.fs, target)
	if err != nil || !exists {
		return false, err
	}

	backupPath := e.backupPath(dest)
	if _, err := filesystem.CopyFile(e.fs, target, backupPath); err != nil {
		return false, err
	}
	l.backups[dest] = struct{}{}
	// The ledger must know about the backup before the original is overwritten
	if err := l.save(e.fs, e.paths.LedgerPath()); err != nil {
		return false, err
	}
	e.logger.Debug().Str("path", dest).Msg("Backed up original file")
	return true, nil
}

func (e *Engine) backupPath(dest string) string {
	return filepath.Join(e.paths.BackupsDir(), filepath.FromSlash(dest))
}

func (e *Engine) copyInto(l *ledger, src, target string) error {
	created, err := filesystem.CopyFile(e.fs, src, target)
	for _, dir := range created {
		if rel, relErr := filepath.Rel(e.paths.GameRoot(), dir); relErr == nil {
			l.createdDirs[filepath.ToSlash(rel)] = struct{}{}
		}
	}
	return err
}

func (e *Engine) undeploy(id string) error {
	snap, err := e.snapshot()
	if err != nil {
		return err
	}
	pkg, err := snap.get(id)
	if err != nil {
		return err
	}
	if !pkg.Deployed {
		e.publish(progress.KindInfo, id, ActionUndeploy, "already staged")
		return nil
	}

	l, err := loadLedger(e.fs, e.paths.LedgerPath())
	if err != nil {
		return err
	}

	logger := e.logger.With().Str("package", id).Logger()
	logger.Info().Int("files", len(pkg.Files)).Msg("Undeploying package")
	e.publish(progress.KindInfo, id, ActionUndeploy, "undeploying "+pkg.Name())

	owners := resolve.Owners(snap.result, snap.pkgs)
	removed := 0

	for _, m := range pkg.Files {
		dest := m.Destination
		if owners[dest] != id {
			continue
		}

		var next string
		for _, claimant := range resolve.Claimants(snap.result, snap.pkgs, dest) {
			if claimant != id {
				next = claimant
			}
		}

		if next != "" {
			if err := e.transfer(l, snap.byID[next], dest); err != nil {
				return e.removeFailed(l, id, dest, err)
			}
			logger.Debug().Str("path", dest).Str("owner", next).Msg("Transferred file ownership")
			e.publish(progress.KindInfo, id, ActionTransfer, dest+" now provided by "+next)
			continue
		}

		restored, err := e.release(l, dest)
		if err != nil {
			return e.removeFailed(l, id, dest, err)
		}
		removed++
		if restored {
			e.publish(progress.KindInfo, id, ActionRestore, "restored original "+dest)
		} else {
			e.publish(progress.KindInfo, id, ActionRemove, dest)
		}
	}

	if err := l.save(e.fs, e.paths.LedgerPath()); err != nil {
		return err
	}

	pkg.Deployed = false
	if err := e.store.Save(pkg); err != nil {
		return err
	}

	e.recorder.AddFilesRemoved(removed)
	logger.Info().Int("removed", removed).Msg("Package undeployed")
	e.publish(progress.KindInfo, id, ActionUndeploy, "undeployed "+pkg.Name())
	return nil
}

func (e *Engine) removeFailed(l *ledger, id, dest string, err error) error {
	if saveErr := l.save(e.fs, e.paths.LedgerPath()); saveErr != nil {
		e.logger.Error().Err(saveErr).Msg("Failed to save ledger after remove failure")
	}
	e.publish(progress.KindError, id, ActionRemove, err.Error())
	return errors.Wrapf(err, errors.ErrFileSystem, "failed to undeploy %s for package %s", dest, id).
		WithDetail(errors.DetailPackage, id).
		WithDetail(errors.DetailPath, dest)
}

// transfer rewrites dest with the copy shipped by owner
func (e *Engine) transfer(l *ledger, owner types.Package, dest string) error {
	m, ok := owner.Mapping(dest)
	if !ok {
		return errors.Newf(errors.ErrInternal, "package %s does not map %s", owner.ID, dest)
	}
	return e.copyInto(l, owner.SourcePath(m), e.paths.GamePath(dest))
}

// release deletes a file no deployed package provides any more, putting
// back the original when one was backed up. Directories the engine created
// are removed once empty.
func (e *Engine) release(l *ledger, dest string) (bool, error) {
	target := e.paths.GamePath(dest)
	if err := e.fs.Remove(target); err != nil && !os.IsNotExist(err) {
		return false, err
	}

	restored := false
	if l.hasBackup(dest) {
		backupPath := e.backupPath(dest)
		if _, err := filesystem.CopyFile(e.fs, backupPath, target); err != nil {
			return false, err
		}
		delete(l.backups, dest)
		if err := e.fs.Remove(backupPath); err != nil && !os.IsNotExist(err) {
			return true, err
		}
		if err := filesystem.PruneEmptyDirs(e.fs, filepath.Dir(backupPath), e.paths.BackupsDir()); err != nil {
			return true, err
		}
		restored = true
	}

	return restored, e.pruneCreatedDirs(l, path.Dir(dest))
}

// pruneCreatedDirs removes engine-created directories bottom-up while they
// are empty. Directories that existed before are never removed.
func (e *Engine) pruneCreatedDirs(l *ledger, rel string) error {
	for ; rel != "." && rel != "/" && rel != ""; rel = path.Dir(rel) {
		if _, created := l.createdDirs[rel]; !created {
			return nil
		}
		dir := e.paths.GamePath(rel)
		exists, err := filesystem.Exists(e.fs, dir)
		if err != nil {
			return err
		}
		if !exists {
			delete(l.createdDirs, rel)
			continue
		}
		empty, err := afero.IsEmpty(e.fs, dir)
		if err != nil {
			return err
		}
		if !empty {
			return nil
		}
		if err := e.fs.Remove(dir); err != nil {
			return err
		}
		delete(l.createdDirs, rel)
	}
	return nil
}

func (e *Engine) publish(kind progress.Kind, pkg, action, message string) {
	e.reporter.Publish(progress.Event{
		Kind:    kind,
		Package: pkg,
		Action:  action,
		Message: message,
	})
}

func (e *Engine) refreshGauges() {
	snap, err := e.snapshot()
	if err != nil {
		return
	}
	deployed := 0
	for _, p := range snap.pkgs {
		if p.Deployed {
			deployed++
		}
	}
	e.recorder.SetDeployedPackages(deployed)
	e.recorder.SetConflicts(len(snap.result.Conflicts))
}
