// modkeeper-completions writes shell completion scripts for packaging.
//
//	modkeeper-completions <dir>     writes modkeeper.bash, _modkeeper,
//	                                modkeeper.fish and modkeeper.ps1 into dir
//	modkeeper-completions <shell>   prints one script to stdout
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arthur-debert/modkeeper/internal/cli"
)

var scripts = map[string]string{
	"bash":       "modkeeper.bash",
	"zsh":        "_modkeeper",
	"fish":       "modkeeper.fish",
	"powershell": "modkeeper.ps1",
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <dir|bash|zsh|fish|powershell>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	target := os.Args[1]
	if _, ok := scripts[target]; ok {
		script, err := generate(target)
		if err != nil {
			fail(err)
		}
		_, _ = os.Stdout.Write(script)
		return
	}

	if err := os.MkdirAll(target, 0755); err != nil {
		fail(err)
	}
	for shell, name := range scripts {
		script, err := generate(shell)
		if err != nil {
			fail(err)
		}
		if err := os.WriteFile(filepath.Join(target, name), script, 0644); err != nil {
			fail(err)
		}
	}
}

// generate runs the completion subcommand so both entry points share one
// implementation
func generate(shell string) ([]byte, error) {
	var buf bytes.Buffer
	root := cli.NewRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"completion", shell})
	if err := root.Execute(); err != nil {
		return nil, fmt.Errorf("generating %s completion: %w", shell, err)
	}
	return buf.Bytes(), nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
