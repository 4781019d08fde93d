// Package payment holds the confirmation pipeline: signal verification and
// the transactional orchestrator that allocates bibs and persists PAID.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"raceday-backend/models"
)

// Verdict kinds
const (
	VerdictAccept    = "ACCEPT"
	VerdictDuplicate = "DUPLICATE"
	VerdictReject    = "REJECT"
)

// Verdict classifies an inbound payment signal. Duplicate is not an error:
// it short-circuits to the already-allocated bib so at-least-once webhook
// delivery stays idempotent.
type Verdict struct {
	Kind         string
	Reason       string
	ExistingBib  string
	Registration *models.Registration
}

// VerifyInput identifies the registration either by id (manual path) or by
// the order code extracted from the bank narrative (webhook path).
type VerifyInput struct {
	RegistrationID uuid.UUID
	OrderCode      string
	ExternalTxnID  int64
	ObservedAmount int64
}

// VerifierStore is the read surface the verifier needs.
type VerifierStore interface {
	GetRegistration(ctx context.Context, id uuid.UUID) (models.Registration, error)
	GetRegistrationByOrderCode(ctx context.Context, code string) (models.Registration, error)
	HasPaymentRecord(ctx context.Context, externalTxnID int64) (bool, error)
}

type Verifier struct {
	store   VerifierStore
	epsilon int64
}

// NewVerifier builds a verifier with the given absolute underpayment
// tolerance in minor currency units.
func NewVerifier(store VerifierStore, epsilon int64) *Verifier {
	return &Verifier{store: store, epsilon: epsilon}
}

// Verify decides accept/duplicate/reject for a payment signal. Overpayment
// is accepted silently; underpayment beyond the epsilon is rejected. The
// tolerance is absolute, not proportional to the amount.
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) (Verdict, error) {
	var reg models.Registration
	var err error
	switch {
	case in.OrderCode != "":
		reg, err = v.store.GetRegistrationByOrderCode(ctx, in.OrderCode)
	default:
		reg, err = v.store.GetRegistration(ctx, in.RegistrationID)
	}
	if errors.Is(err, models.ErrNotFound) {
		return Verdict{Kind: VerdictReject, Reason: "registration not found"}, nil
	}
	if err != nil {
		return Verdict{}, fmt.Errorf("resolve registration: %w", err)
	}

	if reg.PaymentStatus == models.PaymentPaid {
		verdict := Verdict{Kind: VerdictDuplicate, Registration: &reg}
		if reg.BibNumber != nil {
			verdict.ExistingBib = *reg.BibNumber
		}
		return verdict, nil
	}
	if reg.PaymentStatus == models.PaymentFailed {
		return Verdict{Kind: VerdictReject, Reason: "registration was cancelled"}, nil
	}

	if in.ExternalTxnID != 0 {
		seen, err := v.store.HasPaymentRecord(ctx, in.ExternalTxnID)
		if err != nil {
			return Verdict{}, fmt.Errorf("check payment record: %w", err)
		}
		if seen {
			verdict := Verdict{Kind: VerdictDuplicate, Registration: &reg}
			if reg.BibNumber != nil {
				verdict.ExistingBib = *reg.BibNumber
			}
			return verdict, nil
		}
	}

	if in.ObservedAmount < reg.TotalAmount-v.epsilon {
		return Verdict{
			Kind:   VerdictReject,
			Reason: fmt.Sprintf("amount %d is below expected %d (tolerance %d)", in.ObservedAmount, reg.TotalAmount, v.epsilon),
		}, nil
	}

	return Verdict{Kind: VerdictAccept, Registration: &reg}, nil
}
