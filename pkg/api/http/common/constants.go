package common

import (
	"strings"
)

const (
	// API_JOBS is used to get or create jobs
	API_JOBS = "/api/v1/jobs"

	// API_JOB is used to get or delete a single job
	API_JOB = "/api/v1/jobs/{id}"

	// API_JOB_SCHEDULE is used to reschedule a job
	API_JOB_SCHEDULE = "/api/v1/jobs/{id}/schedule"

	// API_BATCHES is used to get or create batches
	API_BATCHES = "/api/v1/batches"

	// API_BATCH_JOBS is used to list or add the jobs of a batch
	API_BATCH_JOBS = "/api/v1/batches/{id}/jobs"

	API_HEALTH  = "/healthz"
	API_METRICS = "/metrics"
)

// WithID fills in the {id} of a route
func WithID(route, id string) string {
	return strings.Replace(route, "{id}", id, 1)
}
