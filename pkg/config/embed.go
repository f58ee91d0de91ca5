package config

import (
	_ "embed"
	"errors"
)

//go:embed embedded/defaults.toml
var defaultsTOML []byte

// DefaultsContent returns the built-in defaults document
func DefaultsContent() string {
	return string(defaultsTOML)
}

// staticBytes feeds an in-memory document to koanf. It only works with a
// parser.
type staticBytes []byte

func (b staticBytes) ReadBytes() ([]byte, error) { return b, nil }

func (b staticBytes) Read() (map[string]interface{}, error) {
	return nil, errors.New("config: staticBytes needs a parser")
}
