package recovery

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Store persists one checkpoint per game installation
type Store interface {
	// SaveTo durably replaces the checkpoint; when it returns, the data is
	// on disk
	SaveTo(gameRoot string, cp Checkpoint) error
	// LoadFrom returns nil when no checkpoint exists
	LoadFrom(gameRoot string) (*Checkpoint, error)
	Delete(gameRoot string) error
}

// FileStore keeps the checkpoint as a single JSON file in the game's state
// directory
type FileStore struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewFileStore creates a checkpoint store
func NewFileStore(fs afero.Fs) *FileStore {
	return &FileStore{fs: fs, logger: logging.GetLogger("recovery")}
}

// Path returns the checkpoint location for a game root
func Path(gameRoot string) string {
	return filepath.Join(gameRoot, paths.StateDirName, paths.CheckpointFileName)
}

func (s *FileStore) SaveTo(gameRoot string, cp Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode recovery checkpoint")
	}

	path := Path(gameRoot)
	if err := filesystem.WriteFileAtomic(s.fs, path, data, filesystem.FilePerm); err != nil {
		return errors.Wrap(err, errors.ErrFileSystem, "failed to write recovery checkpoint").
			WithDetail(errors.DetailPath, path)
	}

	s.logger.Info().
		Str("cycle", cp.CycleID).
		Strs("packages", cp.PackageIDs).
		Bool("pending", cp.Pending).
		Msg("Recovery checkpoint written")
	return nil
}

func (s *FileStore) LoadFrom(gameRoot string) (*Checkpoint, error) {
	path := Path(gameRoot)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrFileSystem, "failed to read recovery checkpoint").
			WithDetail(errors.DetailPath, path)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidState, "recovery checkpoint is corrupt").
			WithDetail(errors.DetailPath, path)
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *FileStore) Delete(gameRoot string) error {
	path := Path(gameRoot)
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrFileSystem, "failed to delete recovery checkpoint").
			WithDetail(errors.DetailPath, path)
	}
	s.logger.Info().Msg("Recovery checkpoint deleted")
	return nil
}
