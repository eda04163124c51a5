package structs

const (
	queryLimitDefault = 1000
	queryLimitMax     = 10000
)

type Query struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Filters
	JobIDs          []string        `json:"job_ids,omitempty"`
	BatchIDs        []string        `json:"batch_ids,omitempty"`
	Statuses        []Status        `json:"statuses,omitempty"`
	CompileStatuses []CompileStatus `json:"compile_statuses,omitempty"`

	// DueBy filters to jobs scheduled at or before this unix time (seconds)
	DueBy int64 `json:"due_by,omitempty"`
}

func (q *Query) Sanitize() {
	if q.Limit <= 0 {
		q.Limit = queryLimitDefault
	}
	if q.Limit > queryLimitMax {
		q.Limit = queryLimitMax
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.DueBy < 0 {
		q.DueBy = 0
	}
	if len(q.JobIDs) == 0 {
		q.JobIDs = nil
	}
	if len(q.BatchIDs) == 0 {
		q.BatchIDs = nil
	}
	if len(q.Statuses) == 0 {
		q.Statuses = nil
	}
	if len(q.CompileStatuses) == 0 {
		q.CompileStatuses = nil
	}
}
