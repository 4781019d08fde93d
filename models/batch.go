package models

import (
	"time"

	"github.com/google/uuid"
)

// Import batch status constants
const (
	BatchProcessing     = "PROCESSING"
	BatchCompleted      = "COMPLETED"
	BatchPartialFailure = "PARTIAL_FAILURE"
)

// ImportBatch groups registrations created out-of-band (offline sales,
// spreadsheet import) that get confirmed together. Counters and the
// allocated bib range are filled in by the batch confirmation flow.
type ImportBatch struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Label        string    `json:"label" db:"label"`
	Status       string    `json:"status" db:"status"`
	TotalCount   int       `json:"total_count" db:"total_count"`
	SuccessCount int       `json:"success_count" db:"success_count"`
	FirstBib     *string   `json:"first_bib,omitempty" db:"first_bib"`
	LastBib      *string   `json:"last_bib,omitempty" db:"last_bib"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// BatchFailure is one failed row in a batch confirmation response.
type BatchFailure struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	Error          string    `json:"error"`
}
