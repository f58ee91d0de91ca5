package store

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/arthur-debert/modkeeper/pkg/types"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Store gives access to the packages of one game installation
type Store interface {
	ListPackages() ([]types.Package, error)
	Get(id string) (types.Package, error)
	Save(pkg types.Package) error
	Delete(id string) error
	Import(srcDir, id string) (types.Package, error)
}

// DirStore is a Store backed by a packages directory
type DirStore struct {
	fs     afero.Fs
	root   string
	ignore []string
	logger zerolog.Logger
}

// New creates a store over the packages directory root. Directory names
// matching any of the ignore globs are skipped during discovery.
func New(fs afero.Fs, root string, ignore []string) *DirStore {
	return &DirStore{
		fs:     fs,
		root:   root,
		ignore: ignore,
		logger: logging.GetLogger("store"),
	}
}

// Root returns the packages directory
func (s *DirStore) Root() string { return s.root }

// ListPackages returns every valid package ordered by directory name.
// Packages without an explicit load order get max(existing)+1 in that order.
// Packages whose manifest cannot be read are logged and skipped.
func (s *DirStore) ListPackages() ([]types.Package, error) {
	s.logger.Trace().Str("root", s.root).Msg("Listing packages")

	exists, err := filesystem.Exists(s.fs, s.root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileSystem, "cannot access packages directory").
			WithDetail(errors.DetailPath, s.root)
	}
	if !exists {
		s.logger.Debug().Str("root", s.root).Msg("Packages directory does not exist yet")
		return nil, nil
	}

	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileSystem, "cannot read packages directory").
			WithDetail(errors.DetailPath, s.root)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		pkgs      []types.Package
		unordered []int
	)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() {
			continue
		}
		if strings.HasPrefix(name, ".") {
			s.logger.Trace().Str("name", name).Msg("Skipping hidden directory")
			continue
		}
		if s.shouldIgnore(name) {
			s.logger.Trace().Str("name", name).Msg("Skipping ignored pattern")
			continue
		}

		pkg, hasOrder, err := s.load(name)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("package", name).
				Msg("Failed to load package, skipping")
			continue
		}
		if !hasOrder {
			unordered = append(unordered, len(pkgs))
		}
		pkgs = append(pkgs, pkg)
	}

	if len(unordered) > 0 {
		var ordered []types.Package
		isUnordered := make(map[int]bool, len(unordered))
		for _, i := range unordered {
			isUnordered[i] = true
		}
		for i, p := range pkgs {
			if !isUnordered[i] {
				ordered = append(ordered, p)
			}
		}
		next := types.NextLoadOrder(ordered)
		for _, i := range unordered {
			pkgs[i].LoadOrder = next
			next++
		}
	}

	s.logger.Debug().Int("count", len(pkgs)).Msg("Loaded packages")
	return pkgs, nil
}

func (s *DirStore) shouldIgnore(name string) bool {
	for _, pattern := range s.ignore {
		if matched, _ := path.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Get returns a single package
func (s *DirStore) Get(id string) (types.Package, error) {
	if err := paths.ValidatePackageID(id); err != nil {
		return types.Package{}, err
	}
	pkgs, err := s.ListPackages()
	if err != nil {
		return types.Package{}, err
	}
	for _, p := range pkgs {
		if p.ID == id {
			return p, nil
		}
	}

	// Distinguish a broken manifest from a missing package
	if ok, _ := filesystem.Exists(s.fs, s.dir(id)); ok {
		if _, _, err := s.load(id); err != nil {
			return types.Package{}, err
		}
	}
	return types.Package{}, errors.Newf(errors.ErrNotFound, "package %s not found", id).
		WithDetail(errors.DetailPackage, id)
}

// Save writes the package manifest. The package directory is created when
// missing; a yaml or legacy manifest is replaced by modpack.toml.
func (s *DirStore) Save(pkg types.Package) error {
	pkg = pkg.Clone()
	if err := pkg.Normalize(); err != nil {
		return err
	}

	data, err := encodeManifest(pkg)
	if err != nil {
		return err
	}

	dir := s.dir(pkg.ID)
	if err := filesystem.WriteFileAtomic(s.fs, filepath.Join(dir, ManifestTOML), data, filesystem.FilePerm); err != nil {
		return errors.Wrapf(err, errors.ErrFileSystem, "failed to write manifest for %s", pkg.ID).
			WithDetail(errors.DetailPackage, pkg.ID)
	}

	for _, legacy := range []string{ManifestYAML, ManifestLegacy} {
		legacyPath := filepath.Join(dir, legacy)
		if err := s.fs.Remove(legacyPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFileSystem, "failed to remove %s", legacyPath).
				WithDetail(errors.DetailPackage, pkg.ID)
		} else if err == nil {
			s.logger.Info().Str("package", pkg.ID).Str("manifest", legacy).Msg("Migrated manifest to modpack.toml")
		}
	}

	s.logger.Debug().Str("package", pkg.ID).Bool("deployed", pkg.Deployed).Msg("Saved package")
	return nil
}

// Delete removes a staged package and all its files
func (s *DirStore) Delete(id string) error {
	pkg, err := s.Get(id)
	if err != nil {
		return err
	}
	if pkg.Deployed {
		return errors.Newf(errors.ErrInvalidInput, "package %s is deployed; undeploy it first", id).
			WithDetail(errors.DetailPackage, id)
	}
	if err := s.fs.RemoveAll(pkg.Dir); err != nil {
		return errors.Wrapf(err, errors.ErrFileSystem, "failed to remove package %s", id).
			WithDetail(errors.DetailPackage, id)
	}
	s.logger.Info().Str("package", id).Msg("Removed package")
	return nil
}

func (s *DirStore) dir(id string) string {
	return filepath.Join(s.root, id)
}

// load reads one package directory. hasOrder is false when the manifest does
// not carry a load order.
func (s *DirStore) load(id string) (types.Package, bool, error) {
	if err := paths.ValidatePackageID(id); err != nil {
		return types.Package{}, false, errors.Wrap(err, errors.ErrPackageInvalid, "invalid package directory name").
			WithDetail(errors.DetailPackage, id)
	}
	dir := s.dir(id)

	var (
		m     *manifest
		found bool
	)
	for _, name := range manifestNames {
		data, err := afero.ReadFile(s.fs, filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return types.Package{}, false, errors.Wrapf(err, errors.ErrFileSystem, "cannot read %s", name).
				WithDetail(errors.DetailPackage, id)
		}
		m, err = parseManifest(name, data)
		if err != nil {
			return types.Package{}, false, err
		}
		found = true
		break
	}
	if !found {
		m = &manifest{}
	}

	pkg := m.toPackage(id, dir)
	if len(pkg.Files) == 0 {
		files, err := s.scanFiles(dir)
		if err != nil {
			return types.Package{}, false, err
		}
		pkg.Files = files
	}
	if !found && len(pkg.Files) == 0 {
		return types.Package{}, false, errors.Newf(errors.ErrPackageInvalid,
			"directory %s has neither a manifest nor a %s directory", id, types.FilesDirName).
			WithDetail(errors.DetailPackage, id)
	}

	if err := pkg.Normalize(); err != nil {
		return types.Package{}, false, err
	}
	return pkg, m.LoadOrder != nil, nil
}

// scanFiles derives mappings from the files tree: every file maps to the
// same relative path under the game root.
func (s *DirStore) scanFiles(dir string) ([]types.FileMapping, error) {
	filesDir := filepath.Join(dir, types.FilesDirName)
	if ok, err := filesystem.Exists(s.fs, filesDir); err != nil || !ok {
		return nil, err
	}

	var files []types.FileMapping
	err := afero.Walk(s.fs, filesDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(filesDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, types.FileMapping{Source: rel, Destination: rel})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileSystem, "cannot scan %s", filesDir)
	}
	return files, nil
}
