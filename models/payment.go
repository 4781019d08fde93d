package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentRecord is one row of the append-only payment audit trail. Exactly
// one row is written per accepted payment signal; the unique external
// transaction id is what makes webhook replays detectable.
type PaymentRecord struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	RegistrationID uuid.UUID       `json:"registration_id" db:"registration_id"`
	ExternalTxnID  int64           `json:"external_txn_id" db:"external_txn_id"`
	Amount         int64           `json:"amount" db:"amount"`
	Gateway        string          `json:"gateway" db:"gateway"`
	RawSignal      json.RawMessage `json:"raw_signal,omitempty" db:"raw_signal"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// BankTransferSignal is the inbound webhook body from the bank gateway.
// Amounts are integer minor currency units. Content is the free-text
// transfer narrative; the order code is extracted from it.
type BankTransferSignal struct {
	ID             int64  `json:"id" binding:"required"`
	TransferAmount int64  `json:"transferAmount"`
	TransferType   string `json:"transferType"`
	Content        string `json:"content"`
	AccountNumber  string `json:"accountNumber"`
	Gateway        string `json:"gateway"`
}
