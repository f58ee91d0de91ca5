package manager

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/config"
	"github.com/arthur-debert/modkeeper/pkg/deploy"
	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/external"
	"github.com/arthur-debert/modkeeper/pkg/extraction"
	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/arthur-debert/modkeeper/pkg/journal"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/metrics"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/recovery"
	"github.com/arthur-debert/modkeeper/pkg/store"
	"github.com/jonboulle/clockwork"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Options override the collaborators New would otherwise build from the
// configuration. Zero fields get the defaults.
type Options struct {
	FS        afero.Fs
	Installer external.Installer
	Launcher  external.Launcher
	Predicate extraction.Predicate
	Clock     clockwork.Clock
	Journal   journal.Journal
	Recorder  metrics.Recorder
}

// Manager manages the packages of one game installation
type Manager struct {
	cfg         *config.Config
	paths       paths.Paths
	fs          afero.Fs
	store       store.Store
	engine      *deploy.Engine
	orch        *extraction.Orchestrator
	checkpoints recovery.Store
	journal     journal.Journal
	bus         *progress.Bus
	recorder    metrics.Recorder
	registry    *prom.Registry
	watcher     *extraction.WatchingPredicate
	logger      zerolog.Logger
}

// Open resolves the game root (argument, MODKEEPER_GAME_ROOT, game.root
// from the user config, then the current directory), loads the layered
// configuration and builds a Manager on the real filesystem.
func Open(gameRoot string, opts Options) (*Manager, error) {
	p, err := paths.New(gameRoot)
	if err != nil {
		return nil, err
	}
	if p.UsedFallback() {
		userCfg, err := config.Load(config.Sources{ConfigDir: p.ConfigDir()})
		if err != nil {
			return nil, err
		}
		if userCfg.Game.Root != "" {
			if p, err = paths.New(userCfg.Game.Root); err != nil {
				return nil, err
			}
		}
	}

	cfg, err := config.Load(config.Sources{ConfigDir: p.ConfigDir(), GameRoot: p.GameRoot()})
	if err != nil {
		return nil, err
	}
	if cfg.Game.PackagesDir != "" && os.Getenv(paths.EnvPackagesDir) == "" {
		p = paths.WithPackagesDir(p, cfg.Game.PackagesDir)
	}
	return New(cfg, p, opts)
}

// New builds a Manager from an already loaded configuration
func New(cfg *config.Config, p paths.Paths, opts Options) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		paths:  p,
		fs:     opts.FS,
		bus:    progress.NewBus(),
		logger: logging.GetLogger("manager"),
	}
	if m.fs == nil {
		m.fs = filesystem.NewOS()
	}

	m.recorder = opts.Recorder
	if m.recorder == nil {
		if cfg.Metrics.Textfile != "" {
			m.registry = prom.NewRegistry()
			m.recorder = metrics.NewPrometheusRecorder(m.registry)
		} else {
			m.recorder = metrics.NoopRecorder{}
		}
	}

	m.journal = opts.Journal
	if m.journal == nil {
		if cfg.Journal.Enabled {
			j, err := journal.Open(p.JournalPath())
			if err != nil {
				return nil, err
			}
			m.journal = j
		} else {
			m.journal = journal.Nop{}
		}
	}

	reporter := progress.Multi(m.bus, journal.StateRecorder(m.journal, func(err error) {
		m.logger.Warn().Err(err).Msg("Cannot write journal entry")
	}))

	m.store = store.New(m.fs, p.PackagesDir(), cfg.Packages.Ignore)
	m.checkpoints = recovery.NewFileStore(m.fs)
	m.engine = deploy.New(m.fs, m.store, p,
		deploy.WithReporter(m.bus), deploy.WithRecorder(m.recorder))

	installer := opts.Installer
	if installer == nil {
		installer = &external.ExtractorInstaller{
			FS:         m.fs,
			BundleDir:  cfg.Extractor.BundleDir,
			GameRoot:   p.GameRoot(),
			InstallDir: cfg.Extractor.InstallDir,
			ForceFlag:  cfg.Extractor.ForceFlag,
		}
	}
	launcher := opts.Launcher
	if launcher == nil {
		if cfg.Game.LaunchCommand != "" {
			launcher = &external.CommandLauncher{
				Command: cfg.Game.LaunchCommand,
				Args:    cfg.Game.LaunchArgs,
				Dir:     p.GameRoot(),
			}
		} else {
			launcher = external.ManualLauncher{}
		}
	}
	predicate := opts.Predicate
	if predicate == nil {
		predicate = m.defaultPredicate()
	}

	orchOpts := []extraction.Option{
		extraction.WithReporter(reporter),
		extraction.WithRecorder(m.recorder),
	}
	if opts.Clock != nil {
		orchOpts = append(orchOpts, extraction.WithClock(opts.Clock))
	}
	m.orch = extraction.New(extraction.Deps{
		FS:          m.fs,
		Engine:      m.engine,
		Checkpoints: m.checkpoints,
		Installer:   installer,
		Launcher:    launcher,
		Predicate:   predicate,
	}, extraction.Settings{
		GameRoot:     p.GameRoot(),
		Fingerprint:  cfg.Extraction.Fingerprint,
		PollInterval: cfg.Extraction.PollInterval,
		Timeout:      cfg.Extraction.Timeout,
	}, orchOpts...)

	return m, nil
}

func (m *Manager) defaultPredicate() extraction.Predicate {
	fp := &extraction.FingerprintPredicate{FS: m.fs, RelPath: m.cfg.Extraction.Fingerprint}
	if !m.cfg.Extraction.Watch {
		return fp
	}
	if _, ok := m.fs.(*afero.OsFs); !ok {
		return fp
	}
	// the fingerprint dir may not exist before the first extraction
	dir := filepath.Dir(m.paths.GamePath(m.cfg.Extraction.Fingerprint))
	if ok, _ := filesystem.Exists(m.fs, dir); !ok {
		dir = m.paths.GameRoot()
	}
	m.watcher = extraction.NewWatchingPredicate(fp, dir)
	return m.watcher
}

// Config returns the merged configuration
func (m *Manager) Config() *config.Config { return m.cfg }

// Paths returns the resolved paths
func (m *Manager) Paths() paths.Paths { return m.paths }

// Subscribe streams progress and state events. Call cancel when done.
func (m *Manager) Subscribe(buffer int) (<-chan progress.Event, func()) {
	return m.bus.Subscribe(buffer)
}

// Close flushes metrics and releases the journal and watcher
func (m *Manager) Close() error {
	var firstErr error
	if m.registry != nil {
		if err := metrics.WriteTextfile(m.registry, m.cfg.Metrics.Textfile); err != nil {
			m.logger.Warn().Err(err).Str("path", m.cfg.Metrics.Textfile).Msg("Cannot write metrics textfile")
			firstErr = err
		}
	}
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
	if err := m.journal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.bus.Close()
	return firstErr
}

// record journals an engine operation. Journal failures are logged only.
func (m *Manager) record(op, pkg string, err error) {
	e := journal.Entry{
		Time:      time.Now(),
		Kind:      journal.KindOperation,
		Operation: op,
		Package:   pkg,
		Outcome:   string(metrics.ResultOf(err)),
	}
	if err != nil {
		e.Message = err.Error()
	}
	if jerr := m.journal.Record(context.Background(), e); jerr != nil {
		m.logger.Warn().Err(jerr).Str("operation", op).Msg("Cannot write journal entry")
	}
}

// guardCycle rejects engine operations while an extraction cycle is
// unfinished
func (m *Manager) guardCycle(op string) error {
	if c := m.orch.Current(); c != nil && !c.State().Finished() {
		return errors.Newf(errors.ErrConcurrentOperation,
			"cannot %s: extraction cycle %s is %s", op, c.ID(), c.State())
	}
	return nil
}

// guard is guardCycle plus a pending checkpoint check. Changing packages
// before the checkpoint is recovered or discarded could make its redeploy
// impossible.
func (m *Manager) guard(op string) error {
	if err := m.guardCycle(op); err != nil {
		return err
	}
	cp, err := m.PendingRecovery()
	if err != nil {
		return err
	}
	if cp != nil {
		return errors.Newf(errors.ErrInvalidState,
			"cannot %s: extraction cycle %s left %d package(s) undeployed; recover or discard it first",
			op, cp.CycleID, len(cp.PackageIDs)).
			WithDetail(errors.DetailPackages, cp.PackageIDs)
	}
	return nil
}
