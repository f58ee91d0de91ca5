// Package paths provides centralized path handling for modkeeper.
//
// Two kinds of locations are managed here:
//
//   - Per-installation locations, all derived from the game root: the
//     packages directory and the hidden state directory (.modkeeper) holding
//     the recovery checkpoint, the deployment ledger, vanilla backups and the
//     operation journal.
//   - Per-user locations following the XDG Base Directory specification:
//     the user configuration file and the log file.
//
// # Environment Variables
//
//   - MODKEEPER_GAME_ROOT: game installation directory (default: current directory)
//   - MODKEEPER_GAME_PACKAGES_DIR: override the packages directory
//     (default: <game root>/modpacks)
//   - MODKEEPER_CONFIG_DIR: override the XDG config directory
package paths
