package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// LogFileName is the log file inside $XDG_STATE_HOME/modkeeper
	LogFileName = "modkeeper.log"
	// EnvLogFile overrides the log file location. "off" disables the file.
	EnvLogFile = "MODKEEPER_LOG_FILE"
)

var (
	fileMu  sync.Mutex
	logFile *os.File
)

// SetupLogger configures the global logger for a verbosity level (-v count).
// Records go to stderr and are appended to the log file. Calling it again
// replaces the previous setup.
func SetupLogger(verbosity int) {
	zerolog.SetGlobalLevel(levelFor(verbosity))

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}}

	path := LogFilePath()
	f, err := reopen(path)
	if f != nil {
		writers = append(writers, f)
	}

	ctx := zerolog.New(io.MultiWriter(writers...)).With().Timestamp()
	if verbosity >= 2 {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Logging to console only")
	}
	log.Debug().Int("verbosity", verbosity).Str("log_file", path).Msg("Logger initialized")
}

// SetupWriter points the global logger at w only
func SetupWriter(w io.Writer, verbosity int) {
	zerolog.SetGlobalLevel(levelFor(verbosity))
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

func levelFor(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	}
	return zerolog.TraceLevel
}

// GetLogger returns the global logger tagged with a component name
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// LogFilePath returns the log file location, "" when file logging is off
func LogFilePath() string {
	switch v := os.Getenv(EnvLogFile); v {
	case "":
		return filepath.Join(xdg.StateHome, "modkeeper", LogFileName)
	case "off":
		return ""
	default:
		return v
	}
}

// reopen closes the current log file and opens path in append mode
func reopen(path string) (*os.File, error) {
	fileMu.Lock()
	defer fileMu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	return f, nil
}
