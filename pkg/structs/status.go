package structs

import (
	"strings"
)

// Status is the lifecycle status of a Job.
type Status string

const (
	// transient states
	SCHEDULED  Status = "SCHEDULED"
	PROCESSING Status = "PROCESSING"

	// end states
	COMPLETED Status = "COMPLETED"
	FAILED    Status = "FAILED"
)

// CompileStatus tracks the last build attempt of a Job. It is independent of the Job's
// Status but gates whether the Job's compiled artifact can be trusted.
type CompileStatus string

const (
	CompilePending   CompileStatus = "PENDING"
	CompileCompiling CompileStatus = "COMPILING"
	CompileSuccess   CompileStatus = "SUCCESS"
	CompileFailed    CompileStatus = "FAILED"
)

func IsFinalStatus(status Status) bool {
	switch status {
	case COMPLETED, FAILED:
		return true
	default:
		return false
	}
}

func ToStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "SCHEDULED":
		return SCHEDULED
	case "PROCESSING":
		return PROCESSING
	case "COMPLETED":
		return COMPLETED
	case "FAILED":
		return FAILED
	default:
		return ""
	}
}

func ToCompileStatus(s string) CompileStatus {
	switch strings.ToUpper(s) {
	case "PENDING":
		return CompilePending
	case "COMPILING":
		return CompileCompiling
	case "SUCCESS":
		return CompileSuccess
	case "FAILED":
		return CompileFailed
	default:
		return ""
	}
}
