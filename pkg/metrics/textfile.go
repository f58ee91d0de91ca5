package metrics

import (
	"os"
	"path/filepath"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes every metric of g to path in the Prometheus text
// format. The file is replaced atomically.
func WriteTextfile(g prom.Gatherer, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrFileSystem, "failed to create metrics directory for %s", path)
	}
	if err := prom.WriteToTextfile(path, g); err != nil {
		return errors.Wrapf(err, errors.ErrFileSystem, "failed to write metrics to %s", path)
	}
	return nil
}
