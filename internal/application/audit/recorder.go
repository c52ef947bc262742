package audit

// Outcomes reported for every Analyze call.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailure  = "graceful_failure"
	OutcomeError    = "error"
)

// Recorder receives audit metrics. middleware.Metrics implements it.
type Recorder interface {
	Analysis(outcome string)
	ModelCall(stage, kind string)
	Retry(stage string)
}

type nopRecorder struct{}

func (nopRecorder) Analysis(string)          {}
func (nopRecorder) ModelCall(string, string) {}
func (nopRecorder) Retry(string)             {}
