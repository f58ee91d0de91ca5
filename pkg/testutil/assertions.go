package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertGameFile checks that rel exists in the game tree with content want
func AssertGameFile(t *testing.T, g *Game, rel, want string, msgAndArgs ...interface{}) bool {
	t.Helper()
	got, ok := g.ReadFile(rel)
	if !assert.True(t, ok, "expected game file %s", rel) {
		return false
	}
	return assert.Equal(t, want, got, msgAndArgs...)
}

// AssertNoGameFile checks that rel is absent from the game tree
func AssertNoGameFile(t *testing.T, g *Game, rel string, msgAndArgs ...interface{}) bool {
	t.Helper()
	_, ok := g.ReadFile(rel)
	return assert.False(t, ok, msgAndArgs...)
}
