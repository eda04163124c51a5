package structs

// BatchSpec are fields that can be set when a batch is created
type BatchSpec struct {
	// Name is a human readable label. Required.
	Name string `json:"name"`

	// Description is optional
	Description string `json:"description"`
}

// Batch is a named group of jobs. It's purely organisational, batches have no
// scheduling behaviour of their own.
type Batch struct {
	BatchSpec `json:",inline"`

	ID string `json:"id"`

	CreatedAt int64 `json:"created_at"`
}
