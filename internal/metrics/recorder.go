// Package metrics provides build telemetry recording.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be enabled by swapping the implementation
// without touching call sites.
package metrics

import "time"

// Outcome labels for completed builds.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Recorder defines the metrics operations emitted by the daemon.
type Recorder interface {
	IncBuildsStarted()
	IncBuildOutcome(outcome string)
	IncBuildConflict()
	ObserveStageDuration(stage string, d time.Duration)
	SetCompileProgress(progress int)
	IncHTTPRequest(path string, status int)
}

// NoopRecorder implements Recorder with no-op methods (zero overhead).
type NoopRecorder struct{}

func (NoopRecorder) IncBuildsStarted()                              {}
func (NoopRecorder) IncBuildOutcome(string)                         {}
func (NoopRecorder) IncBuildConflict()                              {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration)     {}
func (NoopRecorder) SetCompileProgress(int)                         {}
func (NoopRecorder) IncHTTPRequest(string, int)                     {}

var _ Recorder = NoopRecorder{}
