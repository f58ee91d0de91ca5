package deploy

import (
	"fmt"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/progress"
)

// Batch operation names, used for locking errors and metrics
const (
	OpDeployAll   = "deploy_all"
	OpUndeployAll = "undeploy_all"
	OpDeployOnly  = "deploy_only"
)

// BatchResult reports what a batch operation achieved. Nothing is rolled
// back, so Succeeded is accurate even when the batch failed.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error

	failedOrder []string
}

func newBatchResult() *BatchResult {
	return &BatchResult{Failed: make(map[string]error)}
}

func (r *BatchResult) fail(id string, err error) {
	r.Failed[id] = err
	r.failedOrder = append(r.failedOrder, id)
}

// FailedIDs lists failed packages in processing order
func (r *BatchResult) FailedIDs() []string {
	return append([]string(nil), r.failedOrder...)
}

// Err summarises the failures, or nil when everything succeeded. The code
// is that of the first failure.
func (r *BatchResult) Err(op string) error {
	if len(r.failedOrder) == 0 {
		return nil
	}
	first := r.Failed[r.failedOrder[0]]
	total := len(r.Succeeded) + len(r.failedOrder)
	return errors.Wrapf(first, errors.GetErrorCode(first),
		"%s: %d of %d packages failed (first: %s)", op, len(r.failedOrder), total, r.failedOrder[0])
}

// DeployAll deploys every staged package in load order. Failures do not
// stop the batch; a package whose dependency failed fails in turn.
func (e *Engine) DeployAll() (*BatchResult, error) {
	var result *BatchResult
	err := e.exclusive(OpDeployAll, func() error {
		var err error
		result, err = e.deploySet(OpDeployAll, nil)
		return err
	})
	return result, err
}

// DeployOnly deploys exactly the given packages, in load order. Ids that no
// longer exist are reported as NOT_FOUND failures.
func (e *Engine) DeployOnly(ids []string) (*BatchResult, error) {
	var result *BatchResult
	err := e.exclusive(OpDeployOnly, func() error {
		want := make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		var err error
		result, err = e.deploySet(OpDeployOnly, want)
		return err
	})
	return result, err
}

// deploySet deploys the packages in want (all staged packages when nil)
func (e *Engine) deploySet(op string, want map[string]bool) (*BatchResult, error) {
	snap, err := e.snapshot()
	if err != nil {
		return nil, err
	}

	result := newBatchResult()
	if want != nil {
		for _, id := range sortedBoolKeys(want) {
			if _, ok := snap.byID[id]; !ok {
				result.fail(id, errors.Newf(errors.ErrNotFound, "package %s not found", id).
					WithDetail(errors.DetailPackage, id))
			}
		}
	}

	for _, id := range snap.result.Order {
		p := snap.byID[id]
		if want != nil && !want[id] {
			continue
		}
		if want == nil && p.Deployed {
			continue
		}
		if err := e.deploy(id); err != nil {
			e.logger.Warn().Err(err).Str("package", id).Msg("Deploy failed, continuing")
			result.fail(id, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	e.publish(progress.KindInfo, "", op,
		fmt.Sprintf("%d deployed, %d failed", len(result.Succeeded), len(result.failedOrder)))
	return result, result.Err(op)
}

// UndeployAll undeploys every deployed package, last loaded first
func (e *Engine) UndeployAll() (*BatchResult, error) {
	var result *BatchResult
	err := e.exclusive(OpUndeployAll, func() error {
		snap, err := e.snapshot()
		if err != nil {
			return err
		}

		result = newBatchResult()
		for i := len(snap.result.Order) - 1; i >= 0; i-- {
			id := snap.result.Order[i]
			if !snap.byID[id].Deployed {
				continue
			}
			if err := e.undeploy(id); err != nil {
				e.logger.Warn().Err(err).Str("package", id).Msg("Undeploy failed, continuing")
				result.fail(id, err)
				continue
			}
			result.Succeeded = append(result.Succeeded, id)
		}

		e.publish(progress.KindInfo, "", OpUndeployAll,
			fmt.Sprintf("%d undeployed, %d failed", len(result.Succeeded), len(result.failedOrder)))
		return result.Err(OpUndeployAll)
	})
	return result, err
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make(map[string]struct{}, len(m))
	for k := range m {
		keys[k] = struct{}{}
	}
	return sortedKeys(keys)
}
