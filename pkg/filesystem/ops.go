package filesystem

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
)

const (
	DirPerm  os.FileMode = 0755
	FilePerm os.FileMode = 0644
)

// Exists reports whether path exists. Errors other than "not exist" are
// returned as is.
func Exists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CopyFile copies src to dst, creating dst's parent directories. The source
// file mode is preserved. Returns the directories it had to create, outermost
// first.
func CopyFile(fs afero.Fs, src, dst string) ([]string, error) {
	info, err := fs.Stat(src)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &os.PathError{Op: "copy", Path: src, Err: os.ErrInvalid}
	}

	created, err := MkdirAllTracked(fs, filepath.Dir(dst))
	if err != nil {
		return created, err
	}

	in, err := fs.Open(src)
	if err != nil {
		return created, err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return created, err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return created, err
	}
	return created, out.Close()
}

// MkdirAllTracked behaves like MkdirAll but returns the directories that did
// not exist before, outermost first.
func MkdirAllTracked(fs afero.Fs, dir string) ([]string, error) {
	var missing []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		ok, err := Exists(fs, d)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if err := fs.MkdirAll(dir, DirPerm); err != nil {
		return nil, err
	}

	created := make([]string, 0, len(missing))
	for i := len(missing) - 1; i >= 0; i-- {
		created = append(created, missing[i])
	}
	return created, nil
}

// WriteFileAtomic replaces path with data so that readers see either the old
// or the new content, never a partial write. The data and the directory
// entry are synced before it returns.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, DirPerm); err != nil {
		return err
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = fs.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := fs.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}

	return syncDir(fs, dir)
}

func syncDir(fs afero.Fs, dir string) error {
	d, err := fs.Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = d.Close()
	}()
	if err := d.Sync(); err != nil && !isSyncUnsupported(err) {
		return err
	}
	return nil
}

// Directory fsync is not supported everywhere (notably on Windows).
func isSyncUnsupported(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, errors.ErrUnsupported)
}

// PruneEmptyDirs removes dir and then each parent while they are empty,
// stopping at (and never removing) stopAt.
func PruneEmptyDirs(fs afero.Fs, dir, stopAt string) error {
	stopAt = filepath.Clean(stopAt)
	for d := filepath.Clean(dir); d != stopAt && len(d) > len(stopAt); d = filepath.Dir(d) {
		ok, err := Exists(fs, d)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		empty, err := afero.IsEmpty(fs, d)
		if err != nil {
			return err
		}
		if !empty {
			return nil
		}
		if err := fs.Remove(d); err != nil {
			return err
		}
	}
	return nil
}

// Checksum returns the sha256 checksum of a file as "sha256:<hex>"
func Checksum(fs afero.Fs, path string) (string, error) {
	file, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
