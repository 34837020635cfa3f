package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "pagepress"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	buildDuration   prom.Histogram
	stageResults    *prom.CounterVec
	buildOutcome    *prom.CounterVec
	pagesRendered   *prom.CounterVec
	publishDuration prom.Histogram
	publishOutcome  *prom.CounterVec
	filesChanged    *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		pagesRendered: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pages_rendered_total",
			Help:      "Rendered pages by kind (page, article, feed)",
		}, []string{"kind"}),
		publishDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Total publish duration including fetch and push",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		publishOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_outcomes_total",
			Help:      "Publish outcomes by final status",
		}, []string{"outcome"}),
		filesChanged: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_files_total",
			Help:      "Files staged by publishes, by change kind",
		}, []string{"change"}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.pagesRendered, pr.publishDuration, pr.publishOutcome, pr.filesChanged)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddPagesRendered(kind string, n int) {
	p.pagesRendered.WithLabelValues(kind).Add(float64(n))
}

func (p *PrometheusRecorder) ObservePublishDuration(d time.Duration) {
	p.publishDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPublishOutcome(outcome string) {
	p.publishOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddFilesChanged(change string, n int) {
	if n <= 0 {
		return
	}
	p.filesChanged.WithLabelValues(change).Add(float64(n))
}
