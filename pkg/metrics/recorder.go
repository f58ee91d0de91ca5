package metrics

import "time"

// ResultLabel enumerates operation outcomes for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines observability hooks for the deployment engine and the
// extraction orchestrator.
type Recorder interface {
	// ObserveOperation records one engine operation (deploy, undeploy,
	// deploy_all, undeploy_all, set_load_order)
	ObserveOperation(op string, d time.Duration, result ResultLabel)
	AddFilesCopied(n int)
	AddFilesRemoved(n int)
	SetDeployedPackages(n int)
	SetConflicts(n int)
	// IncExtractionOutcome records how a cycle ended: complete, cancelled,
	// error or timeout
	IncExtractionOutcome(outcome string)
	ObserveExtractionDuration(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperation(string, time.Duration, ResultLabel) {}
func (NoopRecorder) AddFilesCopied(int)                                  {}
func (NoopRecorder) AddFilesRemoved(int)                                 {}
func (NoopRecorder) SetDeployedPackages(int)                             {}
func (NoopRecorder) SetConflicts(int)                                    {}
func (NoopRecorder) IncExtractionOutcome(string)                         {}
func (NoopRecorder) ObserveExtractionDuration(time.Duration)             {}

// ResultOf maps an operation error to its label
func ResultOf(err error) ResultLabel {
	if err != nil {
		return ResultFailed
	}
	return ResultSuccess
}
