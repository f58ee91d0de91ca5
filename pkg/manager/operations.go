package manager

import (
	"context"

	"github.com/arthur-debert/modkeeper/pkg/deploy"
	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/extraction"
	"github.com/arthur-debert/modkeeper/pkg/journal"
	"github.com/arthur-debert/modkeeper/pkg/recovery"
	"github.com/arthur-debert/modkeeper/pkg/resolve"
	"github.com/arthur-debert/modkeeper/pkg/types"
)

// Operation names recorded in the journal
const (
	OpImport  = "import"
	OpRemove  = "remove"
	OpReorder = "set_load_order"
	OpRecover = "recover"
	OpDiscard = "discard_recovery"
)

// Resolution is the package set together with its resolved order
type Resolution struct {
	Packages []types.Package
	*resolve.Result
}

// Resolve loads every package and computes load order and conflicts
func (m *Manager) Resolve() (*Resolution, error) {
	pkgs, err := m.store.ListPackages()
	if err != nil {
		return nil, err
	}
	result, err := resolve.Resolve(pkgs)
	if err != nil {
		return nil, err
	}
	return &Resolution{Packages: result.Sorted(pkgs), Result: result}, nil
}

// Packages lists packages in discovery order, without resolving
func (m *Manager) Packages() ([]types.Package, error) {
	return m.store.ListPackages()
}

// Deploy deploys one package
func (m *Manager) Deploy(id string) error {
	if err := m.guard(deploy.ActionDeploy); err != nil {
		return err
	}
	err := m.engine.Deploy(id)
	m.record(deploy.ActionDeploy, id, err)
	return err
}

// Undeploy undeploys one package
func (m *Manager) Undeploy(id string) error {
	if err := m.guard(deploy.ActionUndeploy); err != nil {
		return err
	}
	err := m.engine.Undeploy(id)
	m.record(deploy.ActionUndeploy, id, err)
	return err
}

// DeployAll deploys every staged package
func (m *Manager) DeployAll() (*deploy.BatchResult, error) {
	if err := m.guard(deploy.OpDeployAll); err != nil {
		return nil, err
	}
	result, err := m.engine.DeployAll()
	m.record(deploy.OpDeployAll, "", err)
	return result, err
}

// UndeployAll undeploys every deployed package
func (m *Manager) UndeployAll() (*deploy.BatchResult, error) {
	if err := m.guard(deploy.OpUndeployAll); err != nil {
		return nil, err
	}
	result, err := m.engine.UndeployAll()
	m.record(deploy.OpUndeployAll, "", err)
	return result, err
}

// SetLoadOrder changes a package's load order and re-syncs contested files
func (m *Manager) SetLoadOrder(id string, order int) error {
	if err := m.guard(OpReorder); err != nil {
		return err
	}
	err := m.engine.SetLoadOrder(id, order)
	m.record(OpReorder, id, err)
	return err
}

// Import copies a package directory into the packages dir, staged
func (m *Manager) Import(srcDir, id string) (types.Package, error) {
	if err := m.guard(OpImport); err != nil {
		return types.Package{}, err
	}
	pkg, err := m.store.Import(srcDir, id)
	m.record(OpImport, pkg.ID, err)
	return pkg, err
}

// Remove deletes a staged package from the packages dir
func (m *Manager) Remove(id string) error {
	if err := m.guard(OpRemove); err != nil {
		return err
	}
	err := m.store.Delete(id)
	m.record(OpRemove, id, err)
	return err
}

// ExtractionOptions control how far StartExtraction drives the new cycle
type ExtractionOptions struct {
	// Confirm undeploys right away instead of leaving the cycle in
	// ModsDetected
	Confirm bool
	// Launch starts the game after a successful Confirm
	Launch bool
}

// StartExtraction begins an extraction cycle for the deployed packages.
// A pending recovery checkpoint must be dealt with first.
func (m *Manager) StartExtraction(ctx context.Context, opts ExtractionOptions) (*extraction.Cycle, error) {
	pkgs, err := m.store.ListPackages()
	if err != nil {
		return nil, err
	}
	var deployed []string
	for _, p := range pkgs {
		if p.Deployed {
			deployed = append(deployed, p.ID)
		}
	}

	c, err := m.orch.Begin(deployed)
	if err != nil {
		return nil, err
	}
	if !opts.Confirm {
		return c, nil
	}
	if err := c.Confirm(ctx); err != nil {
		return c, err
	}
	if !opts.Launch {
		return c, nil
	}
	return c, c.Launch(ctx)
}

// CurrentCycle returns the latest extraction cycle, or nil
func (m *Manager) CurrentCycle() *extraction.Cycle {
	return m.orch.Current()
}

// Cancel cancels the extraction cycle with the given id
func (m *Manager) Cancel(cycleID string) error {
	c := m.orch.Current()
	if c == nil || c.ID() != cycleID {
		return errors.Newf(errors.ErrNotFound, "no extraction cycle %s", cycleID)
	}
	return c.Cancel()
}

// PendingRecovery returns the checkpoint left by an interrupted cycle, or
// nil when there is none
func (m *Manager) PendingRecovery() (*recovery.Checkpoint, error) {
	return m.checkpoints.LoadFrom(m.paths.GameRoot())
}

// RecoverPending redeploys exactly the packages the pending checkpoint
// lists and deletes it. On failure the checkpoint stays for another try.
func (m *Manager) RecoverPending() (*deploy.BatchResult, error) {
	if err := m.guardCycle(OpRecover); err != nil {
		return nil, err
	}
	cp, err := m.PendingRecovery()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, errors.New(errors.ErrNotFound, "no pending recovery checkpoint")
	}

	m.logger.Info().Str("cycle", cp.CycleID).Strs("packages", cp.PackageIDs).Msg("Recovering interrupted extraction")
	result, err := m.engine.DeployOnly(cp.PackageIDs)
	if err == nil {
		err = m.checkpoints.Delete(m.paths.GameRoot())
	}
	m.record(OpRecover, "", err)
	return result, err
}

// DiscardRecovery drops the pending checkpoint without redeploying. The
// packages it lists stay undeployed, so acknowledged must be true.
func (m *Manager) DiscardRecovery(acknowledged bool) error {
	if !acknowledged {
		return errors.New(errors.ErrInvalidInput,
			"discarding leaves the recorded packages undeployed and must be acknowledged")
	}
	if err := m.guardCycle(OpDiscard); err != nil {
		return err
	}
	cp, err := m.PendingRecovery()
	if err != nil {
		return err
	}
	if cp == nil {
		return errors.New(errors.ErrNotFound, "no pending recovery checkpoint")
	}
	err = m.checkpoints.Delete(m.paths.GameRoot())
	m.record(OpDiscard, "", err)
	return err
}

// History returns recent journal entries, newest first
func (m *Manager) History(ctx context.Context, limit int) ([]journal.Entry, error) {
	return m.journal.Recent(ctx, limit)
}
