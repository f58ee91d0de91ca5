package cli

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/arthur-debert/modkeeper/internal/version"
	"github.com/arthur-debert/modkeeper/pkg/cobrax/topics"
	"github.com/arthur-debert/modkeeper/pkg/config"
	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/journal"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/manager"
	"github.com/arthur-debert/modkeeper/pkg/style"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

//go:embed topics/*.md
var topicFiles embed.FS

// app carries the global flags and the renderer chosen for this run
type app struct {
	verbosity int
	gameRoot  string
	noColor   bool
	renderer  style.Renderer

	// mu serialises output while extraction events are printed
	mu sync.Mutex
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	a := &app{renderer: style.NewPlainRenderer()}

	rootCmd := &cobra.Command{
		Use:     "modkeeper",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(a.verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")

			color := !a.noColor && style.Setup(os.Stdout)
			if !color {
				style.DisableColor()
			}
			a.renderer = style.NewRenderer(color)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().StringVar(&a.gameRoot, "game-root", "", MsgFlagGameRoot)
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, MsgFlagNoColor)

	// Flag parse errors are usage errors
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Wrap(err, errors.ErrInvalidInput, "invalid flags for "+cmd.CommandPath())
	})

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	rootCmd.AddCommand(newDeployCmd(a))
	rootCmd.AddCommand(newUndeployCmd(a))
	rootCmd.AddCommand(newOrderCmd(a))
	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newRemoveCmd(a))
	rootCmd.AddCommand(newExtractCmd(a))
	rootCmd.AddCommand(newRecoverCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newCompletionCmd())

	sub, err := fs.Sub(topicFiles, "topics")
	if err == nil {
		tm, err := topics.InitializeWithOptions(rootCmd, sub, topics.Options{
			Renderer: topics.NewGlamourRenderer(os.Stdout),
		})
		if err == nil {
			rootCmd.AddCommand(newTopicsCmd(tm))
		}
	}

	return rootCmd
}

// withManager opens the manager for the selected game root, runs fn and
// closes it again
func (a *app) withManager(cmd *cobra.Command, opts manager.Options, fn func(*manager.Manager) error) (err error) {
	m, err := manager.Open(a.gameRoot, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if m.Paths().UsedFallback() {
		fmt.Fprintf(cmd.ErrOrStderr(), MsgUsingFallback, m.Paths().GameRoot())
	}
	log.Debug().Str("game_root", m.Paths().GameRoot()).Str("packages", m.Paths().PackagesDir()).Msg("Manager ready")

	if !handlesRecovery[cmd.Name()] {
		if err := a.announceRecovery(cmd, m); err != nil {
			return err
		}
	}
	return fn(m)
}

// handlesRecovery lists the commands that present a pending checkpoint
// themselves
var handlesRecovery = map[string]bool{"status": true, "recover": true}

// announceRecovery tells the user about a checkpoint left by an interrupted
// extraction. Package changes are refused until it is recovered or
// discarded.
func (a *app) announceRecovery(cmd *cobra.Command, m *manager.Manager) error {
	cp, err := m.PendingRecovery()
	if err != nil || cp == nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	w := cmd.ErrOrStderr()
	printCheckpoint(w, cp)
	fmt.Fprintln(w, style.Render(MsgRecoveryHint))
	return nil
}

func (a *app) println(cmd *cobra.Command, s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(cmd.OutOrStdout(), s)
}

func (a *app) printf(cmd *cobra.Command, format string, args ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: MsgVersionShort,
		Long:  MsgVersionLong,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, MsgVersionFormat, version.Version)
			if version.Commit != "" {
				fmt.Fprintf(out, MsgCommitFormat, version.Commit)
			}
			if version.Date != "" {
				fmt.Fprintf(out, MsgBuiltFormat, version.Date)
			}
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: MsgHistoryShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				entries, err := m.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				a.println(cmd, a.renderer.RenderHistory(entries))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", journal.DefaultLimit, MsgFlagLimit)
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: MsgConfigShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if defaults {
				fmt.Fprint(cmd.OutOrStdout(), config.DefaultsContent())
				return nil
			}
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				data, err := m.Config().MarshalTOML()
				if err != nil {
					return errors.Wrap(err, errors.ErrInternal, "cannot render configuration")
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, MsgFlagDefaults)
	return cmd
}

func newTopicsCmd(tm *topics.TopicManager) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: MsgTopicsShort,
		Long:  MsgTopicsLong,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			tm.PrintList(cmd.OutOrStdout(), cmd.Root().Name())
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: MsgCompletionShort,
		Long: `To load completions:

Bash:
  $ source <(modkeeper completion bash)

Zsh:
  $ modkeeper completion zsh > "${fpath[1]}/_modkeeper"

Fish:
  $ modkeeper completion fish | source

PowerShell:
  PS> modkeeper completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}
