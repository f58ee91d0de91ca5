package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "modkeeper"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once               sync.Once
	registry           *prom.Registry
	operationDuration  *prom.HistogramVec
	operationResults   *prom.CounterVec
	filesCopied        prom.Counter
	filesRemoved       prom.Counter
	deployedPackages   prom.Gauge
	conflicts          prom.Gauge
	extractionOutcome  *prom.CounterVec
	extractionDuration prom.Histogram
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.operationDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of deployment engine operations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"})
		pr.operationResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "operation_results_total",
			Help:      "Deployment engine operations by outcome",
		}, []string{"operation", "result"})
		pr.filesCopied = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "files_copied_total",
			Help:      "Package files copied into the game directory",
		})
		pr.filesRemoved = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "files_removed_total",
			Help:      "Package files removed from the game directory",
		})
		pr.deployedPackages = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "deployed_packages",
			Help:      "Number of deployed packages after the last operation",
		})
		pr.conflicts = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "conflicting_paths",
			Help:      "Destination paths claimed by more than one deployed package",
		})
		pr.extractionOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_outcomes_total",
			Help:      "Extraction cycles by final state",
		}, []string{"outcome"})
		pr.extractionDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Wall-clock duration of extraction cycles",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		})
		reg.MustRegister(pr.operationDuration, pr.operationResults, pr.filesCopied, pr.filesRemoved,
			pr.deployedPackages, pr.conflicts, pr.extractionOutcome, pr.extractionDuration)
	})
	return pr
}

// Registry returns the registry the metrics are registered with
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

func (p *PrometheusRecorder) ObserveOperation(op string, d time.Duration, result ResultLabel) {
	if p == nil || p.operationDuration == nil {
		return
	}
	p.operationDuration.WithLabelValues(op).Observe(d.Seconds())
	p.operationResults.WithLabelValues(op, string(result)).Inc()
}

func (p *PrometheusRecorder) AddFilesCopied(n int) {
	if p == nil || p.filesCopied == nil || n <= 0 {
		return
	}
	p.filesCopied.Add(float64(n))
}

func (p *PrometheusRecorder) AddFilesRemoved(n int) {
	if p == nil || p.filesRemoved == nil || n <= 0 {
		return
	}
	p.filesRemoved.Add(float64(n))
}

func (p *PrometheusRecorder) SetDeployedPackages(n int) {
	if p == nil || p.deployedPackages == nil {
		return
	}
	p.deployedPackages.Set(float64(n))
}

func (p *PrometheusRecorder) SetConflicts(n int) {
	if p == nil || p.conflicts == nil {
		return
	}
	p.conflicts.Set(float64(n))
}

func (p *PrometheusRecorder) IncExtractionOutcome(outcome string) {
	if p == nil || p.extractionOutcome == nil {
		return
	}
	p.extractionOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveExtractionDuration(d time.Duration) {
	if p == nil || p.extractionDuration == nil {
		return
	}
	p.extractionDuration.Observe(d.Seconds())
}
