package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix          = "MODKEEPER_"
	UserConfigFile     = "config.toml"
	GameConfigTOMLFile = paths.GameConfigFileName
	GameConfigYAMLFile = paths.GameConfigYAMLName
	DotEnvFile         = paths.DotEnvFileName
)

// Sources lists where configuration may come from. Empty fields skip that
// layer.
type Sources struct {
	// ConfigDir holds the user config.toml
	ConfigDir string
	// GameRoot holds modkeeper.toml/modkeeper.yaml and .env
	GameRoot string
	// SkipEnv disables the environment layer, for tests
	SkipEnv bool
}

// Load merges every configuration layer and returns the validated result
func Load(src Sources) (*Config, error) {
	k, err := loadKoanf(src)
	if err != nil {
		return nil, err
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the embedded defaults only
func Default() *Config {
	cfg, err := Load(Sources{SkipEnv: true})
	if err != nil {
		// The embedded defaults are part of the binary
		panic(err)
	}
	return cfg
}

func loadKoanf(src Sources) (*koanf.Koanf, error) {
	logger := logging.GetLogger("config")
	k := koanf.New(".")

	// 1. Load system defaults
	if err := k.Load(staticBytes(defaultsTOML), toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load defaults")
	}

	// 2. User config
	if src.ConfigDir != "" {
		path := filepath.Join(src.ConfigDir, UserConfigFile)
		if err := loadIfExists(k, path, toml.Parser()); err != nil {
			return nil, err
		}
	}

	if src.GameRoot != "" {
		// 3. Game config, TOML preferred over YAML
		loaded := false
		for _, candidate := range []struct {
			name   string
			parser koanf.Parser
		}{
			{GameConfigTOMLFile, toml.Parser()},
			{GameConfigYAMLFile, yaml.Parser()},
		} {
			path := filepath.Join(src.GameRoot, candidate.name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), candidate.parser); err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load game config from %s", path)
			}
			logger.Debug().Str("path", path).Msg("Loaded game config")
			loaded = true
			break
		}
		if !loaded {
			logger.Trace().Str("gameRoot", src.GameRoot).Msg("No game config found")
		}

		// 4. .env in the game root
		if err := loadDotEnv(k, filepath.Join(src.GameRoot, DotEnvFile)); err != nil {
			return nil, err
		}
	}

	// 5. Environment variables
	if !src.SkipEnv {
		if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load env vars")
		}
	}

	return k, nil
}

func loadIfExists(k *koanf.Koanf, path string, parser koanf.Parser) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return errors.Wrapf(err, errors.ErrConfigLoad, "failed to load config from %s", path)
	}
	logger := logging.GetLogger("config")
	logger.Debug().Str("path", path).Msg("Loaded config file")
	return nil
}

// loadDotEnv merges MODKEEPER_* entries of a .env file. Other entries are
// ignored so the file can be shared with other tools.
func loadDotEnv(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfigLoad, "failed to read %s", path)
	}

	flat := make(map[string]interface{})
	for name, value := range values {
		if !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		if key := envKey(name); key != "" {
			flat[key] = value
		}
	}
	if len(flat) == 0 {
		return nil
	}
	if err := k.Load(confmap.Provider(flat, "."), nil); err != nil {
		return errors.Wrapf(err, errors.ErrConfigLoad, "failed to load %s", path)
	}
	return nil
}

// envKey maps MODKEEPER_EXTRACTION_POLL_INTERVAL to extraction.poll_interval
func envKey(name string) string {
	rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, key, ok := strings.Cut(rest, "_")
	if !ok || section == "" || key == "" {
		return ""
	}
	return section + "." + key
}
