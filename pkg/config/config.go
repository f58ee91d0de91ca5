package config

import (
	"path"
	"strings"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/errors"
)

// Config is the fully merged modkeeper configuration
type Config struct {
	Game       Game       `koanf:"game"`
	Extraction Extraction `koanf:"extraction"`
	Extractor  Extractor  `koanf:"extractor"`
	Packages   Packages   `koanf:"packages"`
	Journal    Journal    `koanf:"journal"`
	Metrics    Metrics    `koanf:"metrics"`
}

// Game describes the managed game installation
type Game struct {
	Root          string   `koanf:"root"`
	PackagesDir   string   `koanf:"packages_dir"`
	LaunchCommand string   `koanf:"launch_command"`
	LaunchArgs    []string `koanf:"launch_args"`
}

// Extraction holds the settings of the vanilla regeneration cycle
type Extraction struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	Timeout      time.Duration `koanf:"timeout"`
	// Fingerprint is the file, relative to the game root, the game writes
	// when extraction has finished.
	Fingerprint string `koanf:"fingerprint"`
	Watch       bool   `koanf:"watch"`
}

// Extractor locates the bundled extractor files
type Extractor struct {
	BundleDir  string `koanf:"bundle_dir"`
	InstallDir string `koanf:"install_dir"`
	ForceFlag  string `koanf:"force_flag"`
}

// Packages holds package discovery settings
type Packages struct {
	Ignore []string `koanf:"ignore"`
}

type Journal struct {
	Enabled bool `koanf:"enabled"`
}

type Metrics struct {
	// Textfile, when set, receives a Prometheus text exposition after
	// every command.
	Textfile string `koanf:"textfile"`
}

// Validate checks the merged configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Extraction.PollInterval <= 0 {
		return errors.Newf(errors.ErrConfigValid,
			"extraction.poll_interval must be positive, got %s", c.Extraction.PollInterval)
	}
	if c.Extraction.Timeout < c.Extraction.PollInterval {
		return errors.Newf(errors.ErrConfigValid,
			"extraction.timeout (%s) must not be shorter than extraction.poll_interval (%s)",
			c.Extraction.Timeout, c.Extraction.PollInterval)
	}

	for key, rel := range map[string]string{
		"extraction.fingerprint": c.Extraction.Fingerprint,
		"extractor.install_dir":  c.Extractor.InstallDir,
		"extractor.force_flag":   c.Extractor.ForceFlag,
	} {
		if rel == "" {
			if key == "extraction.fingerprint" {
				return errors.Newf(errors.ErrConfigValid, "%s must be set", key)
			}
			continue
		}
		if !isRelative(rel) {
			return errors.Newf(errors.ErrConfigValid,
				"%s must be a path relative to the game root, got %q", key, rel)
		}
	}

	for _, pattern := range c.Packages.Ignore {
		if _, err := path.Match(pattern, ""); err != nil {
			return errors.Wrapf(err, errors.ErrConfigValid, "invalid packages.ignore pattern %q", pattern)
		}
	}

	return nil
}

func isRelative(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return false
	}
	cleaned := path.Clean(p)
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}
