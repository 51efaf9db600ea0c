package models

import "github.com/google/uuid"

// BulkFailure reports why one item of a batch was not applied.
type BulkFailure struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// BulkResult is the per-item outcome of a batch. Items are independent, so
// partial success is normal.
type BulkResult struct {
	Succeeded []uuid.UUID   `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// MaxBulkItems caps the size of one batch request.
const MaxBulkItems = 500
