// Package config loads modkeeper configuration.
//
// Configuration is layered with koanf. Later layers override earlier ones:
//
//  1. embedded defaults (embedded/defaults.toml)
//  2. user config: $XDG_CONFIG_HOME/modkeeper/config.toml
//  3. game config: <game root>/modkeeper.toml (or modkeeper.yaml)
//  4. <game root>/.env, read with godotenv
//  5. MODKEEPER_<SECTION>_<KEY> environment variables
//
// Environment keys are split on the first underscore after the prefix, so
// MODKEEPER_EXTRACTION_POLL_INTERVAL sets extraction.poll_interval.
package config
