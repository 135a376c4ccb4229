package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	hookDuration    *prom.HistogramVec
	buildDuration   prom.Histogram
	handlerFailures *prom.CounterVec
	buildOutcome    *prom.CounterVec
	pluginsLoaded   prom.Gauge
	pagesBuilt      prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.hookDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitewright",
			Name:      "hook_duration_seconds",
			Help:      "Duration of individual hook executions",
			Buckets:   prom.DefBuckets,
		}, []string{"hook"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitewright",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.handlerFailures = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitewright",
			Name:      "hook_handler_failures_total",
			Help:      "Hook handler failures by hook and owning plugin",
		}, []string{"hook", "plugin"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitewright",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.pluginsLoaded = prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitewright",
			Name:      "plugins_loaded",
			Help:      "Number of plugins active after initialization",
		})
		pr.pagesBuilt = prom.NewCounter(prom.CounterOpts{
			Namespace: "sitewright",
			Name:      "pages_built_total",
			Help:      "Total pages rendered across all builds",
		})
		reg.MustRegister(pr.hookDuration, pr.buildDuration, pr.handlerFailures, pr.buildOutcome, pr.pluginsLoaded, pr.pagesBuilt)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveHookDuration(hook string, d time.Duration) {
	if p == nil || p.hookDuration == nil {
		return
	}
	p.hookDuration.WithLabelValues(hook).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncHandlerFailure(hook, plugin string) {
	if p == nil || p.handlerFailures == nil {
		return
	}
	p.handlerFailures.WithLabelValues(hook, plugin).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcome) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetPluginsLoaded(n int) {
	if p == nil || p.pluginsLoaded == nil {
		return
	}
	p.pluginsLoaded.Set(float64(n))
}

func (p *PrometheusRecorder) AddPagesBuilt(n int) {
	if p == nil || p.pagesBuilt == nil {
		return
	}
	p.pagesBuilt.Add(float64(n))
}
