package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by storage lookups that match no row.
var ErrNotFound = errors.New("not found")

// ErrConflict marks state-machine violations, e.g. cancelling a PAID
// registration.
var ErrConflict = errors.New("conflict")

// Payment status constants
const (
	PaymentPending = "PENDING"
	PaymentPaid    = "PAID"
	PaymentFailed  = "FAILED"
)

// Registration is one runner's entry for one distance. It is created
// PENDING with no bib; the confirmation pipeline moves it to PAID and
// fills in payment_date and bib_number in the same transaction.
type Registration struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	OrderCode     string     `json:"order_code" db:"order_code"`
	FullName      string     `json:"full_name" db:"full_name"`
	Gender        *string    `json:"gender,omitempty" db:"gender"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Email         *string    `json:"email,omitempty" db:"email"`
	Phone         *string    `json:"phone,omitempty" db:"phone"`
	DistanceID    int64      `json:"distance_id" db:"distance_id"`
	GoalID        *int64     `json:"goal_id,omitempty" db:"goal_id"`
	ShirtType     *string    `json:"shirt_type,omitempty" db:"shirt_type"`
	ShirtSize     *string    `json:"shirt_size,omitempty" db:"shirt_size"`
	PaymentStatus string     `json:"payment_status" db:"payment_status"`
	TotalAmount   int64      `json:"total_amount" db:"total_amount"`
	PaymentDate   *time.Time `json:"payment_date,omitempty" db:"payment_date"`
	BibNumber     *string    `json:"bib_number,omitempty" db:"bib_number"`
	ImportBatchID *uuid.UUID `json:"import_batch_id,omitempty" db:"import_batch_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// CreateRegistrationRequest is the public sign-up payload. The server
// computes the amount from distance and goal pricing; clients never send
// it.
type CreateRegistrationRequest struct {
	FullName    string `json:"full_name" binding:"required"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DistanceID  int64  `json:"distance_id" binding:"required"`
	GoalID      *int64 `json:"goal_id"`
	ShirtType   string `json:"shirt_type"`
	ShirtSize   string `json:"shirt_size"`
}

// ManualConfirmRequest is the optional body of the operator confirmation
// endpoint.
type ManualConfirmRequest struct {
	Notes string `json:"notes"`
}
