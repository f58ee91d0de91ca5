package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/arthur-debert/modkeeper/pkg/types"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// MemoryGameRoot is the game root used by NewMemoryGame
const MemoryGameRoot = "/game"

// Game is a game installation used by a test
type Game struct {
	FS    afero.Fs
	Paths paths.Paths
}

// NewGame creates root on fs and returns a Game whose packages live in
// packagesDir. An empty packagesDir uses the default below the root.
func NewGame(t *testing.T, fs afero.Fs, root, packagesDir string) *Game {
	t.Helper()
	require.NoError(t, fs.MkdirAll(root, 0755))
	p, err := paths.New(root)
	require.NoError(t, err)
	if packagesDir == "" {
		packagesDir = filepath.Join(root, paths.DefaultPackagesDir)
	}
	return &Game{FS: fs, Paths: paths.WithPackagesDir(p, packagesDir)}
}

// NewMemoryGame returns a Game at MemoryGameRoot on a fresh in-memory
// filesystem
func NewMemoryGame(t *testing.T) *Game {
	t.Helper()
	return NewGame(t, filesystem.NewMemory(), MemoryGameRoot, "")
}

// NewDiskGame returns a Game in a temp dir on the real filesystem
func NewDiskGame(t *testing.T) *Game {
	t.Helper()
	return NewGame(t, afero.NewOsFs(), t.TempDir(), "")
}

// PackageConfig declares a package for AddPackage
type PackageConfig struct {
	Name         string
	LoadOrder    int
	Dependencies []string
	Standalone   bool
	Deployed     bool
	// Files maps a destination, relative to the game root, to its content.
	// The payload is stored under the same relative path.
	Files map[string]string
}

type manifest struct {
	Name         string              `toml:"name,omitempty"`
	LoadOrder    int                 `toml:"load_order"`
	Standalone   bool                `toml:"standalone"`
	Deployed     bool                `toml:"deployed"`
	Dependencies []string            `toml:"dependencies,omitempty"`
	Files        []types.FileMapping `toml:"files,omitempty"`
}

// AddPackage writes a package directory and returns its path
func (g *Game) AddPackage(t *testing.T, id string, cfg PackageConfig) string {
	t.Helper()
	dir := g.Paths.PackagePath(id)
	m := manifest{
		Name:         cfg.Name,
		LoadOrder:    cfg.LoadOrder,
		Standalone:   cfg.Standalone,
		Deployed:     cfg.Deployed,
		Dependencies: cfg.Dependencies,
	}

	dests := make([]string, 0, len(cfg.Files))
	for dest := range cfg.Files {
		dests = append(dests, dest)
	}
	sort.Strings(dests)
	for _, dest := range dests {
		writeFile(t, g.FS, filepath.Join(dir, types.FilesDirName, filepath.FromSlash(dest)), cfg.Files[dest])
		m.Files = append(m.Files, types.FileMapping{Source: dest, Destination: dest})
	}

	data, err := toml.Marshal(m)
	require.NoError(t, err)
	writeFile(t, g.FS, filepath.Join(dir, "modpack.toml"), string(data))
	return dir
}

// WriteFile writes a file relative to the game root
func (g *Game) WriteFile(t *testing.T, rel, content string) {
	t.Helper()
	writeFile(t, g.FS, g.Paths.GamePath(rel), content)
}

// ReadFile returns a game file's content and whether it exists
func (g *Game) ReadFile(rel string) (string, bool) {
	data, err := afero.ReadFile(g.FS, g.Paths.GamePath(rel))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Exists reports whether rel exists below the game root
func (g *Game) Exists(t *testing.T, rel string) bool {
	t.Helper()
	ok, err := filesystem.Exists(g.FS, g.Paths.GamePath(rel))
	require.NoError(t, err)
	return ok
}

// CheckpointExists reports whether a recovery checkpoint is on disk
func (g *Game) CheckpointExists(t *testing.T) bool {
	t.Helper()
	ok, err := filesystem.Exists(g.FS, g.Paths.CheckpointPath())
	require.NoError(t, err)
	return ok
}

// Tree snapshots the game directory without the modkeeper state directory
// and the packages directory. Directories get a trailing slash and no
// content.
func (g *Game) Tree(t *testing.T) map[string]string {
	t.Helper()
	root := g.Paths.GameRoot()
	skip := []string{g.Paths.StateDir(), g.Paths.PackagesDir()}

	out := make(map[string]string)
	err := afero.Walk(g.FS, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		for _, s := range skip {
			if p == s || strings.HasPrefix(p, s+string(filepath.Separator)) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		rel, _ := filepath.Rel(root, p)
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			out[rel+"/"] = ""
			return nil
		}
		content, err := afero.ReadFile(g.FS, p)
		if err != nil {
			return err
		}
		out[rel] = string(content)
		return nil
	})
	require.NoError(t, err)
	return out
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}
