package deploy

import (
	"fmt"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/resolve"
	"github.com/arthur-debert/modkeeper/pkg/types"
)

// SetLoadOrder changes a package's load order and rewrites every contested
// destination so the files on disk match the new winners.
func (e *Engine) SetLoadOrder(id string, order int) error {
	return e.exclusive(ActionReorder, func() error {
		snap, err := e.snapshot()
		if err != nil {
			return err
		}
		pkg, err := snap.get(id)
		if err != nil {
			return err
		}
		if pkg.LoadOrder == order {
			return nil
		}

		pkgs := make([]types.Package, len(snap.pkgs))
		for i, p := range snap.pkgs {
			if p.ID == id {
				p.LoadOrder = order
				pkg = p
			}
			pkgs[i] = p
		}
		result, err := resolve.Resolve(pkgs)
		if err != nil {
			return err
		}

		if err := e.store.Save(pkg); err != nil {
			return err
		}
		e.logger.Info().Str("package", id).Int("loadOrder", order).Msg("Load order changed")
		e.publish(progress.KindInfo, id, ActionReorder, fmt.Sprintf("load order set to %d", order))

		return e.resync(&snapshot{pkgs: pkgs, result: result, byID: types.ByID(pkgs)})
	})
}

// resync copies the winning version of every contested destination
func (e *Engine) resync(snap *snapshot) error {
	l, err := loadLedger(e.fs, e.paths.LedgerPath())
	if err != nil {
		return err
	}

	owners := resolve.Owners(snap.result, snap.pkgs)
	rewritten := 0
	for _, dest := range sortedOwnerKeys(owners) {
		if len(resolve.Claimants(snap.result, snap.pkgs, dest)) < 2 {
			continue
		}
		owner := snap.byID[owners[dest]]
		if err := e.transfer(l, owner, dest); err != nil {
			_ = l.save(e.fs, e.paths.LedgerPath())
			return errors.Wrapf(err, errors.ErrFileSystem, "failed to rewrite %s", dest).
				WithDetail(errors.DetailPackage, owner.ID).
				WithDetail(errors.DetailPath, dest)
		}
		rewritten++
		e.publish(progress.KindInfo, owner.ID, ActionTransfer, dest+" now provided by "+owner.ID)
	}

	e.recorder.AddFilesCopied(rewritten)
	return l.save(e.fs, e.paths.LedgerPath())
}

func sortedOwnerKeys(m map[string]string) []string {
	keys := make(map[string]struct{}, len(m))
	for k := range m {
		keys[k] = struct{}{}
	}
	return sortedKeys(keys)
}
