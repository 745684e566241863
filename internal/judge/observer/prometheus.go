package observer

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports judge metrics to a Prometheus registry.
type PrometheusRecorder struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runMemory    *prometheus.HistogramVec
	verdicts     *prometheus.CounterVec
	verdictCases prometheus.Histogram
	queued       prometheus.Gauge
	running      prometheus.Gauge
	rejected     prometheus.Counter
	retries      *prometheus.CounterVec
	rateLimited  prometheus.Counter
}

// NewPrometheusRecorder registers the judge collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codejudge_sandbox_steps_total",
			Help: "Sandbox steps by language, step and outcome",
		}, []string{"language", "step", "ok"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codejudge_sandbox_step_duration_ms",
			Help:    "Wall time of sandbox steps in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"language", "step"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codejudge_runs_total",
			Help: "Completed runs by language and terminal status",
		}, []string{"language", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codejudge_run_duration_ms",
			Help:    "Run wall time in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"language"}),
		runMemory: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codejudge_run_memory_kb",
			Help:    "Peak memory per run in KB",
			Buckets: []float64{1024, 4096, 16384, 65536, 131072, 262144},
		}, []string{"language"}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codejudge_verdicts_total",
			Help: "Final verdicts by status",
		}, []string{"status"}),
		verdictCases: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "codejudge_verdict_cases",
			Help:    "Test cases executed per verdict",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		}),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "codejudge_queue_depth",
			Help: "Runs waiting for a slot",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "codejudge_active_runs",
			Help: "Runs currently holding a slot",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "codejudge_queue_rejected_total",
			Help: "Runs rejected because the queue was full",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codejudge_retries_total",
			Help: "Infrastructure retries by stage",
		}, []string{"stage"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "codejudge_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
}

func (p *PrometheusRecorder) ObserveStep(ctx context.Context, languageID, step string, ok bool, wallTimeMs int64) {
	p.steps.WithLabelValues(languageID, step, strconv.FormatBool(ok)).Inc()
	p.stepDuration.WithLabelValues(languageID, step).Observe(float64(wallTimeMs))
}

func (p *PrometheusRecorder) ObserveRun(ctx context.Context, languageID, status string, wallTimeMs int64, memoryKB int64) {
	p.runs.WithLabelValues(languageID, status).Inc()
	p.runDuration.WithLabelValues(languageID).Observe(float64(wallTimeMs))
	p.runMemory.WithLabelValues(languageID).Observe(float64(memoryKB))
}

func (p *PrometheusRecorder) ObserveVerdict(ctx context.Context, status string, cases int) {
	p.verdicts.WithLabelValues(status).Inc()
	p.verdictCases.Observe(float64(cases))
}

func (p *PrometheusRecorder) SetQueue(queued, running int) {
	p.queued.Set(float64(queued))
	p.running.Set(float64(running))
}

func (p *PrometheusRecorder) IncQueueRejected() {
	p.rejected.Inc()
}

func (p *PrometheusRecorder) IncRetry(stage string) {
	p.retries.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncRateLimited() {
	p.rateLimited.Inc()
}
