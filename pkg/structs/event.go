package structs

import (
	"fmt"
)

// Phase is a step in dispatching a job
type Phase string

const (
	PhaseDispatch  Phase = "DISPATCH"
	PhaseCompile   Phase = "COMPILE"
	PhaseDeploy    Phase = "DEPLOY"
	PhaseCompleted Phase = "COMPLETED"
	PhaseFailed    Phase = "FAILED"
)

// Event is a human readable status notification about a job.
type Event struct {
	JobID   string `json:"job_id"`
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`

	// Time of the event, unix time in seconds
	Time int64 `json:"time"`
}

func (e *Event) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.JobID, e.Phase, e.Message)
}

// CompileResult is the outcome of a build
type CompileResult struct {
	JobID        string        `json:"job_id"`
	Status       CompileStatus `json:"status"`
	ArtifactPath string        `json:"artifact_path"`
	Log          string        `json:"log"`

	// Err is set if the build could not be run or recorded
	Err error `json:"-"`
}
