package store

import (
	"os"
	"path/filepath"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/arthur-debert/modkeeper/pkg/types"
	"github.com/spf13/afero"
)

// Import copies srcDir into the store as a new staged package. When srcDir
// carries a manifest it is copied as a package directory; otherwise its
// content becomes the package's files tree. An empty id uses srcDir's base
// name. The imported package loads after every existing one unless its
// manifest says otherwise.
func (s *DirStore) Import(srcDir, id string) (types.Package, error) {
	if id == "" {
		id = filepath.Base(filepath.Clean(srcDir))
	}
	if err := paths.ValidatePackageID(id); err != nil {
		return types.Package{}, err
	}

	info, err := s.fs.Stat(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Package{}, errors.Newf(errors.ErrNotFound, "import source %s does not exist", srcDir).
				WithDetail(errors.DetailPath, srcDir)
		}
		return types.Package{}, errors.Wrap(err, errors.ErrFileSystem, "cannot access import source").
			WithDetail(errors.DetailPath, srcDir)
	}
	if !info.IsDir() {
		return types.Package{}, errors.Newf(errors.ErrInvalidInput, "import source %s is not a directory", srcDir).
			WithDetail(errors.DetailPath, srcDir)
	}

	dest := s.dir(id)
	if ok, err := filesystem.Exists(s.fs, dest); err != nil {
		return types.Package{}, errors.Wrap(err, errors.ErrFileSystem, "cannot access packages directory")
	} else if ok {
		return types.Package{}, errors.Newf(errors.ErrAlreadyExists, "package %s already exists", id).
			WithDetail(errors.DetailPackage, id)
	}

	existing, err := s.ListPackages()
	if err != nil {
		return types.Package{}, err
	}

	target := filepath.Join(dest, types.FilesDirName)
	if s.hasManifest(srcDir) {
		target = dest
	}
	if err := s.copyTree(srcDir, target); err != nil {
		_ = s.fs.RemoveAll(dest)
		return types.Package{}, errors.Wrapf(err, errors.ErrFileSystem, "failed to import %s", srcDir).
			WithDetail(errors.DetailPackage, id)
	}

	pkg, hasOrder, err := s.load(id)
	if err != nil {
		_ = s.fs.RemoveAll(dest)
		return types.Package{}, err
	}
	if !hasOrder {
		pkg.LoadOrder = types.NextLoadOrder(existing)
	}
	pkg.Deployed = false

	if err := s.Save(pkg); err != nil {
		_ = s.fs.RemoveAll(dest)
		return types.Package{}, err
	}

	s.logger.Info().
		Str("package", id).
		Str("source", srcDir).
		Int("files", len(pkg.Files)).
		Int("loadOrder", pkg.LoadOrder).
		Msg("Imported package")
	return pkg, nil
}

func (s *DirStore) hasManifest(dir string) bool {
	for _, name := range manifestNames {
		if ok, _ := filesystem.Exists(s.fs, filepath.Join(dir, name)); ok {
			return true
		}
	}
	return false
}

func (s *DirStore) copyTree(src, dst string) error {
	return afero.Walk(s.fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return s.fs.MkdirAll(target, filesystem.DirPerm)
		}
		_, err = filesystem.CopyFile(s.fs, p, target)
		return err
	})
}
