package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveHookDuration("page:after-render", 150*time.Millisecond)
	pr.ObserveBuildDuration(500 * time.Millisecond)
	pr.IncHandlerFailure("page:after-render", "analytics")
	pr.IncBuildOutcome(OutcomeSuccess)
	pr.SetPluginsLoaded(3)
	pr.AddPagesBuilt(12)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveHookDuration("build:start", time.Millisecond)
	pr.ObserveBuildDuration(time.Millisecond)
	pr.IncHandlerFailure("build:start", "x")
	pr.IncBuildOutcome(OutcomeFailed)
	pr.SetPluginsLoaded(0)
	pr.AddPagesBuilt(0)
}
