package metrics

import "time"

// BuildOutcome enumerates terminal build states for counters.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// Recorder defines observability hooks for build and plugin metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	ObserveHookDuration(hook string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncHandlerFailure(hook, plugin string)
	IncBuildOutcome(outcome BuildOutcome)
	SetPluginsLoaded(n int)
	AddPagesBuilt(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveHookDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)        {}
func (NoopRecorder) IncHandlerFailure(string, string)          {}
func (NoopRecorder) IncBuildOutcome(BuildOutcome)              {}
func (NoopRecorder) SetPluginsLoaded(int)                      {}
func (NoopRecorder) AddPagesBuilt(int)                         {}
