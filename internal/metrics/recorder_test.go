package metrics

import "time"

type testRecorder struct {
	hookDurations   map[string]int
	handlerFailures map[string]map[string]int
	buildDurations  int
	buildOutcomes   map[BuildOutcome]int
	pluginsLoaded   int
	pagesBuilt      int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{hookDurations: map[string]int{}, handlerFailures: map[string]map[string]int{}, buildOutcomes: map[BuildOutcome]int{}}
}

func (t *testRecorder) ObserveHookDuration(hook string, _ time.Duration) {
	t.hookDurations[hook]++
}
func (t *testRecorder) ObserveBuildDuration(_ time.Duration) { t.buildDurations++ }
func (t *testRecorder) IncHandlerFailure(hook, plugin string) {
	m, ok := t.handlerFailures[hook]
	if !ok {
		m = map[string]int{}
		t.handlerFailures[hook] = m
	}
	m[plugin]++
}
func (t *testRecorder) IncBuildOutcome(outcome BuildOutcome) { t.buildOutcomes[outcome]++ }
func (t *testRecorder) SetPluginsLoaded(n int)               { t.pluginsLoaded = n }
func (t *testRecorder) AddPagesBuilt(n int)                  { t.pagesBuilt += n }
