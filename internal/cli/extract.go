package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/arthur-debert/modkeeper/pkg/deploy"
	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/external"
	"github.com/arthur-debert/modkeeper/pkg/extraction"
	"github.com/arthur-debert/modkeeper/pkg/manager"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/style"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		yes      bool
		noLaunch bool
	)
	cmd := &cobra.Command{
		Use:     "extract",
		Short:   MsgExtractShort,
		Long:    MsgExtractLong,
		Example: MsgExtractExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := manager.Options{}
			if noLaunch {
				opts.Launcher = external.ManualLauncher{}
			}
			return a.withManager(cmd, opts, func(m *manager.Manager) error {
				return a.runExtraction(cmd, m, yes)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, MsgFlagYes)
	cmd.Flags().BoolVar(&noLaunch, "no-launch", false, MsgFlagNoLaunch)
	return cmd
}

func (a *app) runExtraction(cmd *cobra.Command, m *manager.Manager, yes bool) error {
	events, unsubscribe := m.Subscribe(progress.DefaultBuffer)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for e := range events {
			a.println(cmd, a.renderer.RenderEvent(e))
		}
	}()
	stopEvents := func() {
		unsubscribe()
		<-printed
	}
	defer stopEvents()

	c, err := m.StartExtraction(cmd.Context(), manager.ExtractionOptions{})
	if err != nil {
		return err
	}
	if ids := c.PackageIDs(); len(ids) > 0 {
		a.printf(cmd, MsgExtractPlan, shortID(c.ID()), len(ids), strings.Join(ids, ", "))
	} else {
		a.printf(cmd, MsgExtractNothing, shortID(c.ID()))
	}

	if !yes {
		ok, err := confirm(cmd, MsgConfirmExtract)
		if err != nil || !ok {
			if cerr := c.Cancel(); cerr != nil {
				log.Warn().Err(cerr).Msg("Cannot cancel extraction cycle")
			}
			if err != nil {
				return err
			}
			a.println(cmd, MsgAborted)
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Confirm(ctx); err != nil {
		return a.cycleFailed(cmd, err)
	}
	if err := c.Launch(ctx); err != nil {
		return a.cycleFailed(cmd, err)
	}

	state, err := c.Wait(ctx)
	if err != nil && err == ctx.Err() {
		// Interrupted while waiting
		stop()
		a.println(cmd, MsgCancelling)
		if cerr := c.Cancel(); cerr != nil {
			return cerr
		}
		state, err = c.Wait(context.Background())
	}
	if err != nil {
		return a.cycleFailed(cmd, err)
	}

	stopEvents()
	if state == extraction.StateCancelled {
		a.println(cmd, style.Render(MsgCycleCancelled))
		return nil
	}
	a.printf(cmd, MsgCycleFinished, state)
	return nil
}

// cycleFailed points at recover when the cycle stopped with its checkpoint
// still on disk
func (a *app) cycleFailed(cmd *cobra.Command, err error) error {
	switch errors.GetErrorCode(err) {
	case errors.ErrConcurrentOperation, errors.ErrInvalidState:
	default:
		a.mu.Lock()
		fmt.Fprintln(cmd.ErrOrStderr(), style.Render(MsgCycleFailedHint))
		a.mu.Unlock()
	}
	return err
}

func newRecoverCmd(a *app) *cobra.Command {
	var (
		yes     bool
		discard bool
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: MsgRecoverShort,
		Long:  MsgRecoverLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				cp, err := m.PendingRecovery()
				if err != nil {
					return err
				}
				if cp == nil {
					a.println(cmd, MsgNoRecovery)
					return nil
				}
				printCheckpoint(cmd.OutOrStdout(), cp)

				if discard {
					ok := yes
					if !ok {
						if ok, err = confirm(cmd, MsgConfirmDiscard); err != nil {
							return err
						}
					}
					if !ok {
						a.println(cmd, MsgAborted)
						return nil
					}
					if err := m.DiscardRecovery(true); err != nil {
						return err
					}
					a.println(cmd, MsgRecoveryDropped)
					return nil
				}

				if !yes {
					ok, err := confirm(cmd, MsgConfirmRecover)
					if err != nil {
						return err
					}
					if !ok {
						a.println(cmd, MsgAborted)
						return nil
					}
				}
				res, err := m.RecoverPending()
				a.printBatch(cmd, deploy.OpDeployOnly, res)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, MsgFlagYes)
	cmd.Flags().BoolVar(&discard, "discard", false, MsgFlagDiscard)
	return cmd
}

// confirm asks a yes/no question. Terminals get an interactive prompt;
// anything else is read line by line and must answer explicitly.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && style.IsTerminal(f) {
		return pterm.DefaultInteractiveConfirm.
			WithDefaultValue(false).
			Show(question)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false, errors.New(errors.ErrInvalidInput, MsgErrNeedsConfirm)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
