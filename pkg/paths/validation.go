package paths

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/modkeeper/pkg/errors"
)

// ValidatePackageID ensures a package id is valid for use as a directory name.
func ValidatePackageID(id string) error {
	if id == "" {
		return errors.New(errors.ErrInvalidInput, "package id cannot be empty")
	}

	if strings.ContainsAny(id, "/\\") {
		return errors.New(errors.ErrInvalidInput, "package id cannot contain path separators")
	}

	if id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return errors.Newf(errors.ErrInvalidInput, "package id cannot start with '.': %q", id)
	}

	invalidChars := ":*?\"<>|"
	if strings.ContainsAny(id, invalidChars) {
		return errors.Newf(errors.ErrInvalidInput,
			"package id contains invalid characters: %s", invalidChars)
	}

	for _, r := range id {
		if r < 32 {
			return errors.New(errors.ErrInvalidInput, "package id contains control characters")
		}
	}

	return nil
}

// NormalizeRelative cleans a manifest path into slash form and rejects
// anything that would escape its base directory.
func NormalizeRelative(p string) (string, error) {
	if p == "" {
		return "", errors.New(errors.ErrInvalidInput, "path cannot be empty")
	}
	if strings.Contains(p, "\x00") {
		return "", errors.New(errors.ErrInvalidInput, "path contains null bytes")
	}

	slashed := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(slashed, "/") || (len(slashed) > 1 && slashed[1] == ':') {
		return "", errors.Newf(errors.ErrInvalidInput, "path must be relative: %s", p)
	}

	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.Newf(errors.ErrInvalidInput, "path escapes its base directory: %s", p)
	}
	if cleaned == StateDirName || strings.HasPrefix(cleaned, StateDirName+"/") {
		return "", errors.Newf(errors.ErrInvalidInput, "path points into the modkeeper state directory: %s", p)
	}

	return cleaned, nil
}

// CheckDestination rejects a normalized destination that would overwrite
// modkeeper's own files inside the game root: the game-local config files
// and, when it lives under the game root, the packages directory.
func CheckDestination(p Paths, dest string) error {
	switch dest {
	case GameConfigFileName, GameConfigYAMLName, DotEnvFileName:
		return errors.Newf(errors.ErrInvalidInput, "destination overwrites the game config: %s", dest).
			WithDetail(errors.DetailPath, dest)
	}

	rel, err := filepath.Rel(p.GameRoot(), p.PackagesDir())
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return nil
	}
	if dest == rel || strings.HasPrefix(dest, rel+"/") {
		return errors.Newf(errors.ErrInvalidInput, "destination points into the packages directory: %s", dest).
			WithDetail(errors.DetailPath, dest)
	}
	return nil
}
