package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds
const (
	KindPaymentConfirmed = "payment_confirmed"
	KindBibAnnouncement  = "bib_announcement"
)

// Notification outcomes
const (
	NotificationSent   = "SENT"
	NotificationFailed = "FAILED"
)

// NotificationLog records one delivery attempt for one registration and
// kind. Rows are append-only and never deleted: they are the audit trail
// and the source of truth for "has kind X already been sent".
type NotificationLog struct {
	ID             uuid.UUID `json:"id" db:"id"`
	RegistrationID uuid.UUID `json:"registration_id" db:"registration_id"`
	Kind           string    `json:"kind" db:"kind"`
	Channel        string    `json:"channel" db:"channel"`
	Status         string    `json:"status" db:"status"`
	ErrorDetail    *string   `json:"error_detail,omitempty" db:"error_detail"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ResendNotificationRequest triggers an explicit admin retry.
type ResendNotificationRequest struct {
	Kind string `json:"kind" binding:"required"`
}
