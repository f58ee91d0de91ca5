package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/modkeeper/pkg/errors"
)

// Environment variable names
const (
	EnvGameRoot    = "MODKEEPER_GAME_ROOT"
	EnvPackagesDir = "MODKEEPER_GAME_PACKAGES_DIR"
	EnvConfigDir   = "MODKEEPER_CONFIG_DIR"
	EnvHome        = "HOME"
)

// Fixed names inside a game installation. These are part of the on-disk
// contract between runs and are not user-configurable.
const (
	AppDirName         = "modkeeper"
	StateDirName       = ".modkeeper"
	DefaultPackagesDir = "modpacks"
	CheckpointFileName = "recovery.json"
	LedgerFileName     = "ledger.json"
	BackupsDirName     = "backups"
	JournalFileName    = "journal.db"
	GameConfigFileName = "modkeeper.toml"
	GameConfigYAMLName = "modkeeper.yaml"
	DotEnvFileName     = ".env"
	UserConfigFileName = "config.toml"
)

// Paths provides centralized path management for one game installation
type Paths interface {
	GameRoot() string
	UsedFallback() bool
	PackagesDir() string
	PackagePath(id string) string
	StateDir() string
	CheckpointPath() string
	LedgerPath() string
	BackupsDir() string
	JournalPath() string
	GameConfigPath() string
	ConfigDir() string
	UserConfigPath() string
	GamePath(rel string) string
}

type paths struct {
	gameRoot     string
	packagesDir  string
	configDir    string
	usedFallback bool
}

// New creates a Paths instance for the given game root.
// If gameRoot is empty, MODKEEPER_GAME_ROOT is used, then the current
// working directory.
func New(gameRoot string) (Paths, error) {
	p := &paths{}

	if gameRoot == "" {
		gameRoot = os.Getenv(EnvGameRoot)
	}
	if gameRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrFileSystem, "failed to get current directory")
		}
		gameRoot = cwd
		p.usedFallback = true
	}

	abs, err := filepath.Abs(expandHome(gameRoot))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileSystem, "failed to get absolute path for game root")
	}
	p.gameRoot = abs

	if dir := os.Getenv(EnvPackagesDir); dir != "" {
		p.packagesDir = p.resolve(dir)
	} else {
		p.packagesDir = filepath.Join(p.gameRoot, DefaultPackagesDir)
	}

	if dir := os.Getenv(EnvConfigDir); dir != "" {
		p.configDir = expandHome(dir)
	} else {
		p.configDir = filepath.Join(xdg.ConfigHome, AppDirName)
	}

	return p, nil
}

// WithPackagesDir returns a copy of p using dir as the packages directory.
// Relative dirs are resolved against the game root.
func WithPackagesDir(p Paths, dir string) Paths {
	src, ok := p.(*paths)
	if !ok || dir == "" {
		return p
	}
	cp := *src
	cp.packagesDir = cp.resolve(dir)
	return &cp
}

func (p *paths) resolve(dir string) string {
	dir = expandHome(dir)
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(p.gameRoot, dir)
}

// expandHome expands a leading ~ to the home directory
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv(EnvHome)
		if homeDir == "" {
			return path
		}
	}

	if len(path) == 1 {
		return homeDir
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

func (p *paths) GameRoot() string    { return p.gameRoot }
func (p *paths) UsedFallback() bool  { return p.usedFallback }
func (p *paths) PackagesDir() string { return p.packagesDir }
func (p *paths) StateDir() string    { return filepath.Join(p.gameRoot, StateDirName) }
func (p *paths) ConfigDir() string   { return p.configDir }
func (p *paths) CheckpointPath() string {
	return filepath.Join(p.StateDir(), CheckpointFileName)
}

// PackagePath returns the directory of a single package
func (p *paths) PackagePath(id string) string {
	return filepath.Join(p.packagesDir, id)
}

func (p *paths) LedgerPath() string     { return filepath.Join(p.StateDir(), LedgerFileName) }
func (p *paths) BackupsDir() string     { return filepath.Join(p.StateDir(), BackupsDirName) }
func (p *paths) JournalPath() string    { return filepath.Join(p.StateDir(), JournalFileName) }
func (p *paths) GameConfigPath() string { return filepath.Join(p.gameRoot, GameConfigFileName) }
func (p *paths) UserConfigPath() string { return filepath.Join(p.configDir, UserConfigFileName) }

// GamePath maps a slash-separated destination relative to the game root to
// an absolute path.
func (p *paths) GamePath(rel string) string {
	return filepath.Join(p.gameRoot, filepath.FromSlash(rel))
}
