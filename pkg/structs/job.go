package structs

import (
	"encoding/json"
)

// TransportMode is how a compiled artifact gets onto a device.
type TransportMode string

const (
	// TransportWired flashes over a locally attached serial / USB port
	TransportWired TransportMode = "WIRED"

	// TransportNetwork flashes over the air
	TransportNetwork TransportMode = "NETWORK"
)

// CompilePolicy decides when a Job's firmware is built.
type CompilePolicy string

const (
	// CompileAtDispatch defers the build until the scheduler dispatches the job.
	CompileAtDispatch CompilePolicy = "AT_DISPATCH"

	// CompileImmediately starts a build as soon as the job is created.
	CompileImmediately CompilePolicy = "IMMEDIATELY"
)

// JobSpec are fields that can be set when a job is created
type JobSpec struct {
	// SourcePath is the path to the build config (ie. the device yaml).
	//
	// Required.
	SourcePath string `json:"source_path"`

	// Filename is a display name for the config; defaults to the base name of SourcePath.
	Filename string `json:"filename"`

	// Target is an opaque device identifier (serial port, ip address or hostname).
	//
	// Required.
	Target string `json:"target"`

	// Transport is how we reach Target.
	Transport TransportMode `json:"transport"`

	// ScheduledAt is when the job should be dispatched, unix time in seconds.
	// Must be in the future when the job is created.
	ScheduledAt int64 `json:"scheduled_at"`

	// CompilePolicy decides when firmware is built. Defaults to CompileAtDispatch.
	CompilePolicy CompilePolicy `json:"compile_policy"`

	// BuilderID optionally selects a build toolchain / version.
	BuilderID string `json:"builder_id"`

	// DeviceSnapshot is the last known device state at scheduling time.
	// This is kept for operators, the scheduler doesn't read it.
	DeviceSnapshot json.RawMessage `json:"device_snapshot,omitempty"`

	// HistorySnapshot is the prior deploy history of the device at scheduling time.
	HistorySnapshot json.RawMessage `json:"history_snapshot,omitempty"`
}

// Job is a deferred build-and-deploy of one config to one device.
type Job struct {
	JobSpec `json:",inline"`

	// ID is a unique identifier for this job
	ID string `json:"id"`

	// Seq is the insertion order of the job, used to break ties between jobs
	// scheduled for the same time.
	Seq int64 `json:"-"`

	// WorkspaceID names the job's artifact workspace
	WorkspaceID string `json:"workspace_id"`

	// StagedPath is the copy of SourcePath inside the workspace; builds read this.
	StagedPath string `json:"staged_path"`

	// Status is the lifecycle status of this job
	Status Status `json:"status"`

	// CompileStatus is the status of the last build attempt
	CompileStatus CompileStatus `json:"compile_status"`

	// ArtifactPath is the cached build output. Only trustworthy when
	// CompileStatus is CompileSuccess.
	ArtifactPath string `json:"artifact_path"`

	// CompileLog is output captured from the last build attempt
	CompileLog string `json:"compile_log"`

	// CompiledAt is when CompileLog was captured, unix time in seconds
	CompiledAt int64 `json:"compiled_at"`

	// CreatedAt is the time this job was created unix time in seconds
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the time this job was last updated unix time in seconds
	UpdatedAt int64 `json:"updated_at"`
}

// HasArtifact returns if the job holds a compiled artifact we can deploy.
func (j *Job) HasArtifact() bool {
	return j.ArtifactPath != "" && j.CompileStatus == CompileSuccess
}
