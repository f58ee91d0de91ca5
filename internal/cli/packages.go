package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/arthur-debert/modkeeper/pkg/deploy"
	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/manager"
	"github.com/arthur-debert/modkeeper/pkg/recovery"
	"github.com/arthur-debert/modkeeper/pkg/style"
	"github.com/arthur-debert/modkeeper/pkg/types"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: MsgListShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				pkgs, err := m.Packages()
				if err != nil {
					return err
				}
				// Listing works without resolving so a dependency cycle
				// does not hide the packages.
				sort.SliceStable(pkgs, func(i, j int) bool {
					if pkgs[i].LoadOrder != pkgs[j].LoadOrder {
						return pkgs[i].LoadOrder < pkgs[j].LoadOrder
					}
					return pkgs[i].ID < pkgs[j].ID
				})
				rows := make([]style.PackageRow, 0, len(pkgs))
				for _, p := range pkgs {
					rows = append(rows, packageRow(p))
				}
				a.println(cmd, a.renderer.RenderPackages(rows))
				return nil
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: MsgStatusShort,
		Long:  MsgStatusLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				res, err := m.Resolve()
				if err != nil {
					return err
				}
				a.println(cmd, a.renderer.RenderPackages(resolvedRows(res)))
				a.println(cmd, "")
				a.println(cmd, a.renderer.RenderConflicts(res.Conflicts))

				if len(res.MissingDependencies) > 0 {
					a.println(cmd, "")
					printMissing(cmd, res.MissingDependencies)
				}

				cp, err := m.PendingRecovery()
				if err != nil {
					return err
				}
				if cp != nil {
					a.println(cmd, "")
					printCheckpoint(cmd.OutOrStdout(), cp)
					a.println(cmd, style.Render(MsgRecoveryHint))
				}
				return nil
			})
		},
	}
}

func newDeployCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "deploy [package-ids...]",
		Short:   MsgDeployShort,
		Example: MsgDeployExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := idsOrAll(args, all); err != nil {
				return err
			}
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				if all {
					res, err := m.DeployAll()
					a.printBatch(cmd, deploy.OpDeployAll, res)
					return err
				}
				for _, id := range args {
					if err := m.Deploy(id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), MsgDeployed, id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, MsgFlagAll)
	return cmd
}

func newUndeployCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "undeploy [package-ids...]",
		Short: MsgUndeployShort,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := idsOrAll(args, all); err != nil {
				return err
			}
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				if all {
					res, err := m.UndeployAll()
					a.printBatch(cmd, deploy.OpUndeployAll, res)
					return err
				}
				for _, id := range args {
					if err := m.Undeploy(id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), MsgUndeployed, id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, MsgFlagAll)
	return cmd
}

func newOrderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "order <package-id> <load-order>",
		Short: MsgOrderShort,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Newf(errors.ErrInvalidInput, MsgErrBadOrder, args[1])
			}
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				if err := m.SetLoadOrder(args[0], order); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), MsgOrderSet, args[0], order)
				return nil
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: MsgImportShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := filepath.Abs(args[0])
			if err != nil {
				return errors.Wrap(err, errors.ErrInvalidInput, "invalid directory "+args[0])
			}
			if id == "" {
				id = filepath.Base(src)
			}
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				pkg, err := m.Import(src, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), MsgImported, pkg.ID, len(pkg.Files))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", MsgFlagID)
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <package-id>",
		Short: MsgRemoveShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, manager.Options{}, func(m *manager.Manager) error {
				if err := m.Remove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), MsgRemoved, args[0])
				return nil
			})
		},
	}
}

func idsOrAll(args []string, all bool) error {
	switch {
	case all && len(args) > 0:
		return errors.New(errors.ErrInvalidInput, MsgErrNotBoth)
	case !all && len(args) == 0:
		return errors.New(errors.ErrInvalidInput, MsgErrIDsOrAll)
	}
	return nil
}

func (a *app) printBatch(cmd *cobra.Command, op string, res *deploy.BatchResult) {
	if res == nil {
		return
	}
	a.println(cmd, a.renderer.RenderBatch(style.BatchView{
		Operation: op,
		Succeeded: res.Succeeded,
		FailedIDs: res.FailedIDs(),
		Failed:    res.Failed,
	}))
}

func packageRow(p types.Package) style.PackageRow {
	status := style.StatusStaged
	if p.Deployed {
		status = style.StatusDeployed
	}
	return style.PackageRow{
		ID:         p.ID,
		Name:       p.Name(),
		Version:    p.Version,
		LoadOrder:  p.LoadOrder,
		Status:     status,
		Files:      len(p.Files),
		Standalone: p.Standalone,
	}
}

func resolvedRows(res *manager.Resolution) []style.PackageRow {
	rows := make([]style.PackageRow, 0, len(res.Packages))
	for _, p := range res.Packages {
		row := packageRow(p)
		if p.Deployed && res.HasConflict(p.ID) {
			row.Status = style.StatusShadowed
			row.Losing = res.Status[p.ID].LosingPaths
		}
		if missing := res.MissingDependencies[p.ID]; len(missing) > 0 {
			row.Status = style.StatusMissing
			row.Missing = missing
		}
		rows = append(rows, row)
	}
	return rows
}

func printMissing(cmd *cobra.Command, missing map[string][]string) {
	ids := make([]string, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, MsgMissingDepsTitle)
	for _, id := range ids {
		fmt.Fprintf(out, MsgMissingDepItem, id, strings.Join(missing[id], ", "))
	}
}

func printCheckpoint(w io.Writer, cp *recovery.Checkpoint) {
	fmt.Fprintf(w, MsgRecoveryPending+"\n",
		shortID(cp.CycleID),
		cp.UndeployTimestamp.Local().Format("2006-01-02 15:04:05"),
		len(cp.PackageIDs), strings.Join(cp.PackageIDs, ", "))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
