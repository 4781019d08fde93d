package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"raceday-backend/allocator"
	"raceday-backend/credential"
	"raceday-backend/models"
	"raceday-backend/notify"
)

// ErrRegistrationCancelled means the registration is terminally FAILED and
// can no longer be confirmed.
var ErrRegistrationCancelled = errors.New("registration was cancelled")

// ConfirmTx is the write surface available inside one confirmation
// transaction. NextOrdinal must take the per-scope row lock so same-scope
// confirmations serialize (allocator.CounterStore).
type ConfirmTx interface {
	allocator.CounterStore
	GetRegistrationForUpdate(ctx context.Context, id uuid.UUID) (models.Registration, error)
	GetDistance(ctx context.Context, id int64) (models.Distance, error)
	GetGoal(ctx context.Context, id int64) (models.Goal, error)
	MarkPaid(ctx context.Context, id uuid.UUID, bib string, paidAt time.Time, artifact []byte) error
	InsertPaymentRecord(ctx context.Context, rec models.PaymentRecord) error
}

// Store runs a function inside a single database transaction. An error
// from fn rolls everything back, including the ordinal reservation.
type Store interface {
	InTx(ctx context.Context, fn func(tx ConfirmTx) error) error
}

// Encoder produces the check-in artifact.
type Encoder interface {
	Encode(s credential.Snapshot) ([]byte, error)
}

// Notifier delivers the post-commit registrant notification.
type Notifier interface {
	Notify(ctx context.Context, registrationID uuid.UUID, kind string, msg notify.Message) notify.Outcome
}

// PaymentMeta carries the audit detail of the signal being confirmed.
type PaymentMeta struct {
	ExternalTxnID int64
	Amount        int64
	Gateway       string
	RawSignal     json.RawMessage
	Notes         string
}

// ConfirmResult is what callers get back from a confirmation.
type ConfirmResult struct {
	BibNumber   string
	Credential  []byte
	AlreadyPaid bool
}

// Orchestrator is the transactional unit of the pipeline: it re-checks
// state, allocates the bib, encodes the credential, persists PAID plus the
// payment record, and notifies after commit.
type Orchestrator struct {
	store    Store
	encoder  Encoder
	notifier Notifier
	now      func() time.Time
}

func NewOrchestrator(store Store, encoder Encoder, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		store:    store,
		encoder:  encoder,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Confirm transitions a registration PENDING -> PAID exactly once.
// CapacityExceeded and storage errors abort the transaction and leave the
// registration PENDING; an encoding failure only costs the artifact; a
// notification failure is recorded and never reverses the commit.
func (o *Orchestrator) Confirm(ctx context.Context, registrationID uuid.UUID, meta PaymentMeta) (ConfirmResult, error) {
	var res ConfirmResult
	var reg models.Registration
	paidAt := o.now()

	err := o.store.InTx(ctx, func(tx ConfirmTx) error {
		r, err := tx.GetRegistrationForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}
		reg = r

		// The verifier already looked, but its read raced anything that
		// committed since. The row lock makes this check authoritative.
		switch r.PaymentStatus {
		case models.PaymentPaid:
			res.AlreadyPaid = true
			if r.BibNumber != nil {
				res.BibNumber = *r.BibNumber
			}
			return nil
		case models.PaymentFailed:
			return ErrRegistrationCancelled
		}

		scope, prefix, err := resolveScope(ctx, tx, r)
		if err != nil {
			return err
		}

		bib, err := allocator.New(tx).Allocate(ctx, scope, prefix)
		if err != nil {
			return err
		}

		artifact, err := o.encoder.Encode(snapshotOf(r, bib))
		if err != nil {
			// Non-fatal: a missing credential is acceptable, a blocked
			// confirmation is not.
			log.Printf("credential encoding failed for registration %s: %v", r.ID, err)
			artifact = nil
		}

		if err := tx.MarkPaid(ctx, r.ID, bib, paidAt, artifact); err != nil {
			return fmt.Errorf("persist paid state: %w", err)
		}

		rec := models.PaymentRecord{
			ID:             uuid.New(),
			RegistrationID: r.ID,
			ExternalTxnID:  meta.ExternalTxnID,
			Amount:         meta.Amount,
			Gateway:        meta.Gateway,
			RawSignal:      meta.RawSignal,
			CreatedAt:      paidAt,
		}
		if err := tx.InsertPaymentRecord(ctx, rec); err != nil {
			return fmt.Errorf("append payment record: %w", err)
		}

		res.BibNumber = bib
		res.Credential = artifact
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	if res.AlreadyPaid {
		return res, nil
	}

	// Best effort from here on: the confirmation is committed and final.
	reg.PaymentDate = &paidAt
	o.notifier.Notify(ctx, reg.ID, models.KindPaymentConfirmed, ConfirmationMessage(reg, res.BibNumber))

	return res, nil
}

func resolveScope(ctx context.Context, tx ConfirmTx, r models.Registration) (allocator.Scope, string, error) {
	scope := allocator.Scope{DistanceID: r.DistanceID}
	if r.GoalID != nil {
		goal, err := tx.GetGoal(ctx, *r.GoalID)
		if err != nil {
			return scope, "", fmt.Errorf("load goal %d: %w", *r.GoalID, err)
		}
		scope.GoalID = goal.ID
		return scope, goal.BibPrefix, nil
	}

	dist, err := tx.GetDistance(ctx, r.DistanceID)
	if err != nil {
		return scope, "", fmt.Errorf("load distance %d: %w", r.DistanceID, err)
	}
	return scope, dist.BibPrefix, nil
}

func snapshotOf(r models.Registration, bib string) credential.Snapshot {
	s := credential.Snapshot{
		RegistrationID: r.ID.String(),
		FullName:       r.FullName,
		BibNumber:      bib,
	}
	if r.Gender != nil {
		s.Gender = *r.Gender
	}
	if r.DateOfBirth != nil {
		s.DateOfBirth = r.DateOfBirth.Format("2006-01-02")
	}
	if r.Phone != nil {
		s.Phone = *r.Phone
	}
	if r.ShirtType != nil {
		s.ShirtType = *r.ShirtType
	}
	if r.ShirtSize != nil {
		s.ShirtSize = *r.ShirtSize
	}
	return s
}

// ConfirmationMessage renders the registrant-facing notification for a
// confirmed payment. Also used by the admin resend endpoint.
func ConfirmationMessage(r models.Registration, bib string) notify.Message {
	to := ""
	if r.Email != nil {
		to = *r.Email
	}
	return notify.Message{
		To:      to,
		Subject: fmt.Sprintf("Payment confirmed - your race number is %s", bib),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour payment has been confirmed and your race number is %s.\nPresent the attached QR credential at race-pack pickup.\n\nOrder code: %s\n",
			r.FullName, bib, r.OrderCode),
	}
}
