package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/spf13/afero"
)

// Installer makes sure the extractor is present in the game directory
type Installer interface {
	// EnsureInstalled installs or updates the extractor. With force set, the
	// extractor regenerates the vanilla data on the next game launch.
	EnsureInstalled(ctx context.Context, force bool, progress func(string)) error
}

// ExtractorInstaller copies a bundled extractor into the game directory
type ExtractorInstaller struct {
	FS afero.Fs
	// BundleDir holds the extractor files shipped with modkeeper; empty
	// means the extractor is installed by other means
	BundleDir string
	GameRoot  string
	// InstallDir and ForceFlag are relative to GameRoot
	InstallDir string
	ForceFlag  string
	Now        func() time.Time
}

func (i *ExtractorInstaller) EnsureInstalled(ctx context.Context, force bool, progress func(string)) error {
	logger := logging.GetLogger("external.installer")
	if progress == nil {
		progress = func(string) {}
	}

	if i.BundleDir != "" {
		updated, err := i.syncBundle(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrExternalProcess, "failed to install extractor").
				WithDetail(errors.DetailPath, i.BundleDir)
		}
		if updated > 0 {
			progress(fmt.Sprintf("installed %d extractor files", updated))
		} else {
			progress("extractor is up to date")
		}
		logger.Info().Int("updated", updated).Msg("Extractor checked")
	}

	if force && i.ForceFlag != "" {
		now := time.Now
		if i.Now != nil {
			now = i.Now
		}
		flag := filepath.Join(i.GameRoot, filepath.FromSlash(i.ForceFlag))
		content := []byte(now().UTC().Format(time.RFC3339) + "\n")
		if err := filesystem.WriteFileAtomic(i.FS, flag, content, filesystem.FilePerm); err != nil {
			return errors.Wrap(err, errors.ErrExternalProcess, "failed to request forced extraction").
				WithDetail(errors.DetailPath, flag)
		}
		progress("forced extraction requested")
		logger.Info().Str("flag", flag).Msg("Force extraction flag written")
	}
	return nil
}

// syncBundle copies bundle files whose checksum differs from the installed
// copy and returns how many it copied
func (i *ExtractorInstaller) syncBundle(ctx context.Context) (int, error) {
	target := filepath.Join(i.GameRoot, filepath.FromSlash(i.InstallDir))
	updated := 0

	err := afero.Walk(i.FS, i.BundleDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(i.BundleDir, p)
		if err != nil {
			return err
		}
		dest := filepath.Join(target, rel)

		same, err := sameContent(i.FS, p, dest)
		if err != nil {
			return err
		}
		if same {
			return nil
		}
		if _, err := filesystem.CopyFile(i.FS, p, dest); err != nil {
			return err
		}
		updated++
		return nil
	})
	return updated, err
}

func sameContent(fs afero.Fs, a, b string) (bool, error) {
	exists, err := filesystem.Exists(fs, b)
	if err != nil || !exists {
		return false, err
	}
	sumA, err := filesystem.Checksum(fs, a)
	if err != nil {
		return false, err
	}
	sumB, err := filesystem.Checksum(fs, b)
	if err != nil {
		return false, err
	}
	return sumA == sumB, nil
}
