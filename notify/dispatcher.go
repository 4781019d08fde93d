// Package notify delivers registrant notifications through an ordered
// chain of channels and records every attempt durably.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"raceday-backend/models"
)

// Message is one notification to deliver.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Channel is a single delivery mechanism. Unconfigured channels are
// skipped without counting as a failure.
type Channel interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

// LogStore persists notification outcomes. Append must write exactly one
// row per dispatch.
type LogStore interface {
	AppendNotificationLog(ctx context.Context, entry models.NotificationLog) error
	HasNotification(ctx context.Context, registrationID uuid.UUID, kind string) (bool, error)
}

// Outcome is the durable result of one dispatch.
type Outcome struct {
	Status  string
	Channel string
	Error   string
}

type Dispatcher struct {
	channels []Channel
	logs     LogStore
	now      func() time.Time
}

func NewDispatcher(logs LogStore, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		logs:     logs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Notify tries each configured channel in preference order and records the
// outcome. It never returns an error: a failed notification is an audit
// fact, not a reason to unwind a committed payment confirmation. There is
// no automatic retry; retry is an explicit admin action.
func (d *Dispatcher) Notify(ctx context.Context, registrationID uuid.UUID, kind string, msg Message) Outcome {
	var lastErr error
	lastChannel := "none"

	for _, ch := range d.channels {
		if !ch.Configured() {
			continue
		}
		lastChannel = ch.Name()
		if err := ch.Send(ctx, msg); err != nil {
			log.Printf("notification channel %s failed for registration %s (%s): %v", ch.Name(), registrationID, kind, err)
			lastErr = err
			continue
		}

		outcome := Outcome{Status: models.NotificationSent, Channel: ch.Name()}
		d.record(ctx, registrationID, kind, outcome)
		return outcome
	}

	detail := "no notification channel configured"
	if lastErr != nil {
		detail = lastErr.Error()
	}
	outcome := Outcome{Status: models.NotificationFailed, Channel: lastChannel, Error: detail}
	d.record(ctx, registrationID, kind, outcome)
	return outcome
}

// HasSent answers idempotence queries from the log, never by inferring
// from the absence of errors.
func (d *Dispatcher) HasSent(ctx context.Context, registrationID uuid.UUID, kind string) (bool, error) {
	return d.logs.HasNotification(ctx, registrationID, kind)
}

func (d *Dispatcher) record(ctx context.Context, registrationID uuid.UUID, kind string, outcome Outcome) {
	entry := models.NotificationLog{
		ID:             uuid.New(),
		RegistrationID: registrationID,
		Kind:           kind,
		Channel:        outcome.Channel,
		Status:         outcome.Status,
		CreatedAt:      d.now(),
	}
	if outcome.Error != "" {
		detail := outcome.Error
		entry.ErrorDetail = &detail
	}

	if err := d.logs.AppendNotificationLog(ctx, entry); err != nil {
		log.Printf("failed to append notification log for registration %s (%s): %v", registrationID, kind, err)
	}
}
