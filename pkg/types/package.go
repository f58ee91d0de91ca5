package types

import (
	"path/filepath"
	"sort"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/paths"
)

// FilesDirName is the directory inside a package holding its payload
const FilesDirName = "files"

// FileMapping maps one file of a package onto the game directory
type FileMapping struct {
	// Source is relative to the package's files directory
	Source string `toml:"source" yaml:"source" json:"source"`
	// Destination is relative to the game root, in slash form
	Destination string `toml:"destination" yaml:"destination" json:"destination"`
}

// Package is a third-party content package ("modpack")
type Package struct {
	ID          string
	DisplayName string
	Author      string
	Version     string

	Files        []FileMapping
	Dependencies []string
	LoadOrder    int

	// Standalone packages ship a single opaque binary. They are ordered like
	// any other package but never take part in conflict reporting.
	Standalone bool

	// Deployed is false while the package is only staged
	Deployed bool

	// Dir is the absolute package directory; not persisted
	Dir string
}

// Name returns the display name, falling back to the id
func (p *Package) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// SourcePath returns the absolute path of a mapping's source file
func (p *Package) SourcePath(m FileMapping) string {
	return filepath.Join(p.Dir, FilesDirName, filepath.FromSlash(m.Source))
}

// Destinations returns the package's destination paths in declaration order
func (p *Package) Destinations() []string {
	dests := make([]string, len(p.Files))
	for i, m := range p.Files {
		dests[i] = m.Destination
	}
	return dests
}

// Mapping returns the mapping targeting dest
func (p *Package) Mapping(dest string) (FileMapping, bool) {
	for _, m := range p.Files {
		if m.Destination == dest {
			return m, true
		}
	}
	return FileMapping{}, false
}

// DependsOn reports whether id is a declared dependency
func (p *Package) DependsOn(id string) bool {
	for _, dep := range p.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// Normalize cleans file paths and dependency ids in place and validates the
// result. Destinations must be unique within the package.
func (p *Package) Normalize() error {
	if err := paths.ValidatePackageID(p.ID); err != nil {
		return errors.Wrapf(err, errors.ErrPackageInvalid, "invalid package id %q", p.ID).
			WithDetail(errors.DetailPackage, p.ID)
	}

	seen := make(map[string]struct{}, len(p.Files))
	for i, m := range p.Files {
		src, err := paths.NormalizeRelative(m.Source)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInvalidInput, "package %s: invalid source", p.ID).
				WithDetail(errors.DetailPackage, p.ID)
		}
		dest, err := paths.NormalizeRelative(m.Destination)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInvalidInput, "package %s: invalid destination", p.ID).
				WithDetail(errors.DetailPackage, p.ID)
		}
		if _, dup := seen[dest]; dup {
			return errors.Newf(errors.ErrInvalidInput, "package %s maps %s more than once", p.ID, dest).
				WithDetail(errors.DetailPackage, p.ID).
				WithDetail(errors.DetailPath, dest)
		}
		seen[dest] = struct{}{}
		p.Files[i] = FileMapping{Source: src, Destination: dest}
	}

	if p.Standalone && len(p.Files) != 1 {
		return errors.Newf(errors.ErrInvalidInput,
			"standalone package %s must map exactly one file, found %d", p.ID, len(p.Files)).
			WithDetail(errors.DetailPackage, p.ID)
	}

	deps := make([]string, 0, len(p.Dependencies))
	depSeen := make(map[string]struct{}, len(p.Dependencies))
	for _, dep := range p.Dependencies {
		if dep == "" {
			continue
		}
		if dep == p.ID {
			return errors.Newf(errors.ErrInvalidInput, "package %s depends on itself", p.ID).
				WithDetail(errors.DetailPackage, p.ID)
		}
		if _, dup := depSeen[dep]; dup {
			continue
		}
		depSeen[dep] = struct{}{}
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	p.Dependencies = deps

	return nil
}

// Clone returns a deep copy
func (p Package) Clone() Package {
	cp := p
	cp.Files = append([]FileMapping(nil), p.Files...)
	cp.Dependencies = append([]string(nil), p.Dependencies...)
	return cp
}

// ByID indexes packages by id
func ByID(pkgs []Package) map[string]Package {
	index := make(map[string]Package, len(pkgs))
	for _, p := range pkgs {
		index[p.ID] = p
	}
	return index
}

// NextLoadOrder returns max(existing)+1, or 1 for an empty set
func NextLoadOrder(pkgs []Package) int {
	next := 1
	for _, p := range pkgs {
		if p.LoadOrder >= next {
			next = p.LoadOrder + 1
		}
	}
	return next
}
