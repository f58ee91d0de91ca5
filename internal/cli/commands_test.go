// TEST TYPE: Integration Tests
// DEPENDENCIES: Real temp game root, SQLite journal file, /bin/sh for the
// launch test
// PURPOSE: Verify the commands end to end, including exit codes

package cli

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/paths"
	"github.com/arthur-debert/modkeeper/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type game struct {
	*testutil.Game
}

func newGame(t *testing.T, config string) *game {
	t.Helper()
	t.Setenv(paths.EnvConfigDir, t.TempDir())
	t.Setenv(paths.EnvGameRoot, "")
	t.Setenv(paths.EnvPackagesDir, "")
	t.Setenv(logging.EnvLogFile, "off")

	g := &game{Game: testutil.NewDiskGame(t)}
	if config != "" {
		g.WriteFile(t, "modkeeper.toml", config)
	}
	return g
}

func (g *game) addPackage(t *testing.T, id string, order int, rel, content string) {
	t.Helper()
	g.AddPackage(t, id, testutil.PackageConfig{LoadOrder: order, Files: map[string]string{rel: content}})
}

// run executes one modkeeper invocation against the game root
func (g *game) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--game-root", g.Paths.GameRoot(), "--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

const fastExtraction = `
[extraction]
poll_interval = "20ms"
timeout = "300ms"
`

func TestDeployStatusUndeploy(t *testing.T) {
	g := newGame(t, "")
	g.addPackage(t, "alpha", 1, "Data/shared.txt", "alpha")
	g.addPackage(t, "beta", 2, "Data/shared.txt", "beta")

	out, err := g.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "staged")
	assert.Contains(t, out, "alpha")

	out, err = g.run(t, "", "deploy", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "2 succeeded, 0 failed")

	content, ok := g.ReadFile("Data/shared.txt")
	require.True(t, ok)
	assert.Equal(t, "beta", content)

	out, err = g.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Data/shared.txt: beta overrides alpha")
	assert.Contains(t, out, "overridden: Data/shared.txt")
	assert.NotContains(t, out, "Interrupted extraction")

	out, err = g.run(t, "", "undeploy", "beta")
	require.NoError(t, err)
	assert.Contains(t, out, "undeployed beta")
	content, _ = g.ReadFile("Data/shared.txt")
	assert.Equal(t, "alpha", content)

	out, err = g.run(t, "", "history", "--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "undeploy beta")
}

func TestDeploy_UsageErrors(t *testing.T) {
	g := newGame(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"no ids", []string{"deploy"}},
		{"ids and all", []string{"deploy", "--all", "alpha"}},
		{"undeploy no ids", []string{"undeploy"}},
		{"bad order", []string{"order", "alpha", "first"}},
		{"unknown flag", []string{"deploy", "--everything"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.run(t, "", tt.args...)
			require.Error(t, err)
			assert.Equal(t, errors.ExitUsage, errors.ExitCode(err))
		})
	}
}

func TestImportOrderRemove(t *testing.T) {
	g := newGame(t, "")
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "Data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Data", "mod.txt"), []byte("x"), 0644))

	out, err := g.run(t, "", "import", src, "--id", "imported")
	require.NoError(t, err)
	assert.Contains(t, out, "imported imported (1 files)")

	out, err = g.run(t, "", "order", "imported", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "imported now has load order 7")

	out, err = g.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "   7  staged")

	_, err = g.run(t, "", "remove", "imported")
	require.NoError(t, err)
	out, err = g.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No packages found")

	_, err = g.run(t, "", "remove", "imported")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestExtract_LaunchCommandCompletesCycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	g := newGame(t, `
[game]
launch_command = "`+sh+`"
launch_args = ["-c", "sleep 0.1; mkdir -p Extracted && echo done > Extracted/fingerprint.json"]

[extraction]
poll_interval = "20ms"
timeout = "10s"
`)
	g.addPackage(t, "alpha", 1, "Data/a.txt", "alpha")
	_, err = g.run(t, "", "deploy", "alpha")
	require.NoError(t, err)

	out, err := g.run(t, "", "extract", "--yes")
	require.NoError(t, err, out)
	assert.Contains(t, out, "will undeploy 1 package(s): alpha")
	assert.Contains(t, out, "WaitingForExtraction")
	assert.Contains(t, out, "Extraction cycle finished: Complete")

	content, ok := g.ReadFile("Data/a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha", content)
	assert.False(t, g.CheckpointExists(t))

	out, err = g.run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Complete")
}

func TestExtract_TimeoutThenRecover(t *testing.T) {
	g := newGame(t, fastExtraction)
	g.addPackage(t, "alpha", 1, "Data/a.txt", "alpha")
	_, err := g.run(t, "", "deploy", "alpha")
	require.NoError(t, err)

	out, err := g.run(t, "", "extract", "--yes", "--no-launch")
	require.Error(t, err)
	assert.Equal(t, errors.ExitExtractionTimeout, errors.ExitCode(err))
	assert.Contains(t, out, "modkeeper recover")

	_, ok := g.ReadFile("Data/a.txt")
	assert.False(t, ok, "packages stay undeployed after a failed cycle")
	assert.True(t, g.CheckpointExists(t))

	out, err = g.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Interrupted extraction")
	assert.Contains(t, out, "alpha")

	_, err = g.run(t, "", "extract", "--yes", "--no-launch")
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidState), "a pending checkpoint blocks new cycles")

	for _, args := range [][]string{{"deploy", "alpha"}, {"undeploy", "--all"}, {"order", "alpha", "4"}, {"remove", "alpha"}} {
		out, err = g.run(t, "", args...)
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidState), "%v: a pending checkpoint blocks package changes", args)
		assert.Contains(t, out, "Interrupted extraction", args)
		assert.Contains(t, out, "modkeeper recover", args)
	}

	out, err = g.run(t, "", "list")
	require.NoError(t, err, "read-only commands still work")
	assert.Contains(t, out, "Interrupted extraction")

	out, err = g.run(t, "", "recover", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "ok     alpha")

	content, ok := g.ReadFile("Data/a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha", content)
	assert.False(t, g.CheckpointExists(t))

	out, err = g.run(t, "", "recover")
	require.NoError(t, err)
	assert.Contains(t, out, MsgNoRecovery)
}

func TestRecover_Discard(t *testing.T) {
	g := newGame(t, fastExtraction)
	g.addPackage(t, "alpha", 1, "Data/a.txt", "alpha")
	_, err := g.run(t, "", "deploy", "alpha")
	require.NoError(t, err)
	_, err = g.run(t, "", "extract", "--yes", "--no-launch")
	require.Error(t, err)

	// No answer on a non-terminal stdin is an error, not a yes
	_, err = g.run(t, "", "recover", "--discard")
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	assert.True(t, g.CheckpointExists(t))

	out, err := g.run(t, "n\n", "recover", "--discard")
	require.NoError(t, err)
	assert.Contains(t, out, MsgAborted)
	assert.True(t, g.CheckpointExists(t))

	out, err = g.run(t, "y\n", "recover", "--discard")
	require.NoError(t, err)
	assert.Contains(t, out, MsgRecoveryDropped)
	assert.False(t, g.CheckpointExists(t))

	_, ok := g.ReadFile("Data/a.txt")
	assert.False(t, ok)
	out, err = g.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "staged")
}

func TestExtract_DeclinedPromptChangesNothing(t *testing.T) {
	g := newGame(t, fastExtraction)
	g.addPackage(t, "alpha", 1, "Data/a.txt", "alpha")
	_, err := g.run(t, "", "deploy", "alpha")
	require.NoError(t, err)

	out, err := g.run(t, "no\n", "extract")
	require.NoError(t, err)
	assert.Contains(t, out, MsgConfirmExtract)
	assert.Contains(t, out, MsgAborted)

	_, ok := g.ReadFile("Data/a.txt")
	assert.True(t, ok)
	assert.False(t, g.CheckpointExists(t))
}

func TestConfigCommand(t *testing.T) {
	g := newGame(t, fastExtraction)

	out, err := g.run(t, "", "config", "--defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "[extraction]")
	assert.Contains(t, out, `timeout = "30m"`)

	out, err = g.run(t, "", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "300ms")
	assert.Contains(t, out, "Extracted/fingerprint.json")
}

func TestVersionAndTopics(t *testing.T) {
	g := newGame(t, "")

	out, err := g.run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "modkeeper version")

	out, err = g.run(t, "", "topics")
	require.NoError(t, err)
	for _, topic := range []string{"extraction", "recovery", "load-order"} {
		assert.Contains(t, out, topic)
	}

	out, err = g.run(t, "", "help", "load-order")
	require.NoError(t, err)
	assert.Contains(t, out, "bookkeeping")
	assert.Contains(t, out, "MODKEEPER_GAME_PACKAGES_DIR")
}
