package deploy

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/spf13/afero"
)

const ledgerVersion = 1

// ledger is the engine's private bookkeeping of what it changed beyond the
// package files themselves
type ledger struct {
	// backups holds destinations whose original file was moved aside
	backups map[string]struct{}
	// createdDirs holds directories, relative to the game root, created by
	// the engine
	createdDirs map[string]struct{}
}

type ledgerFile struct {
	Version     int      `json:"version"`
	Backups     []string `json:"backups"`
	CreatedDirs []string `json:"created_dirs"`
}

func newLedger() *ledger {
	return &ledger{
		backups:     make(map[string]struct{}),
		createdDirs: make(map[string]struct{}),
	}
}

func loadLedger(fs afero.Fs, path string) (*ledger, error) {
	l := newLedger()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, errors.Wrap(err, errors.ErrFileSystem, "failed to read deployment ledger").
			WithDetail(errors.DetailPath, path)
	}

	var lf ledgerFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "deployment ledger is corrupt").
			WithDetail(errors.DetailPath, path)
	}
	for _, b := range lf.Backups {
		l.backups[b] = struct{}{}
	}
	for _, d := range lf.CreatedDirs {
		l.createdDirs[d] = struct{}{}
	}
	return l, nil
}

func (l *ledger) save(fs afero.Fs, path string) error {
	lf := ledgerFile{
		Version:     ledgerVersion,
		Backups:     sortedKeys(l.backups),
		CreatedDirs: sortedKeys(l.createdDirs),
	}
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode deployment ledger")
	}
	if err := filesystem.WriteFileAtomic(fs, path, data, filesystem.FilePerm); err != nil {
		return errors.Wrap(err, errors.ErrFileSystem, "failed to write deployment ledger").
			WithDetail(errors.DetailPath, path)
	}
	return nil
}

func (l *ledger) hasBackup(dest string) bool {
	_, ok := l.backups[dest]
	return ok
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
