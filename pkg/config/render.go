package config

import (
	toml "github.com/pelletier/go-toml/v2"
)

// Map returns the configuration keyed the same way the config files are,
// with durations in their string form.
func (c *Config) Map() map[string]interface{} {
	return map[string]interface{}{
		"game": map[string]interface{}{
			"root":           c.Game.Root,
			"packages_dir":   c.Game.PackagesDir,
			"launch_command": c.Game.LaunchCommand,
			"launch_args":    nonNil(c.Game.LaunchArgs),
		},
		"extraction": map[string]interface{}{
			"poll_interval": c.Extraction.PollInterval.String(),
			"timeout":       c.Extraction.Timeout.String(),
			"fingerprint":   c.Extraction.Fingerprint,
			"watch":         c.Extraction.Watch,
		},
		"extractor": map[string]interface{}{
			"bundle_dir":  c.Extractor.BundleDir,
			"install_dir": c.Extractor.InstallDir,
			"force_flag":  c.Extractor.ForceFlag,
		},
		"packages": map[string]interface{}{
			"ignore": nonNil(c.Packages.Ignore),
		},
		"journal": map[string]interface{}{
			"enabled": c.Journal.Enabled,
		},
		"metrics": map[string]interface{}{
			"textfile": c.Metrics.Textfile,
		},
	}
}

// MarshalTOML renders the effective configuration as TOML
func (c *Config) MarshalTOML() ([]byte, error) {
	return toml.Marshal(c.Map())
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
