package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"raceday-backend/config"
	"raceday-backend/models"
	"raceday-backend/payment"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	verdict payment.Verdict
	err     error
	lastIn  payment.VerifyInput
}

func (f *fakeVerifier) Verify(_ context.Context, in payment.VerifyInput) (payment.Verdict, error) {
	f.lastIn = in
	return f.verdict, f.err
}

type fakeConfirmer struct {
	results map[uuid.UUID]payment.ConfirmResult
	err     error
	calls   []uuid.UUID
}

func (f *fakeConfirmer) Confirm(_ context.Context, id uuid.UUID, _ payment.PaymentMeta) (payment.ConfirmResult, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return payment.ConfirmResult{}, f.err
	}
	return f.results[id], nil
}

func postWebhook(t *testing.T, h *WebhookHandler, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	router := gin.New()
	router.POST("/api/v1/webhooks/bank", h.HandleBankTransfer)

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/bank", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not json: %s", w.Body.String())
	}
	return w, resp
}

func TestExtractOrderCode(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"DH R1", "R1"},
		{"dh A1B2C3 thank you", "A1B2C3"},
		{"CHUYEN TIEN DH7F3A21", "7F3A21"},
		{"payment for race", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractOrderCode(tt.content); got != tt.want {
			t.Errorf("extractOrderCode(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestWebhookConfirmsInboundTransfer(t *testing.T) {
	regID := uuid.New()
	v := &fakeVerifier{verdict: payment.Verdict{
		Kind:         payment.VerdictAccept,
		Registration: &models.Registration{ID: regID, OrderCode: "R1"},
	}}
	o := &fakeConfirmer{results: map[uuid.UUID]payment.ConfirmResult{regID: {BibNumber: "10K001"}}}
	h := NewWebhookHandler(v, o, config.Config{})

	w, resp := postWebhook(t, h, models.BankTransferSignal{
		ID:             7001,
		TransferAmount: 200000,
		TransferType:   "in",
		Content:        "DH R1",
		Gateway:        "vcb",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp["success"] != true || resp["bib_number"] != "10K001" {
		t.Errorf("response = %v", resp)
	}
	if v.lastIn.OrderCode != "R1" || v.lastIn.ExternalTxnID != 7001 || v.lastIn.ObservedAmount != 200000 {
		t.Errorf("verify input = %+v", v.lastIn)
	}
	if len(o.calls) != 1 || o.calls[0] != regID {
		t.Errorf("confirm calls = %v", o.calls)
	}
}

func TestWebhookReplayReturnsExistingBib(t *testing.T) {
	v := &fakeVerifier{verdict: payment.Verdict{Kind: payment.VerdictDuplicate, ExistingBib: "10K001"}}
	o := &fakeConfirmer{}
	h := NewWebhookHandler(v, o, config.Config{})

	w, resp := postWebhook(t, h, models.BankTransferSignal{
		ID:             7001,
		TransferAmount: 200000,
		TransferType:   "in",
		Content:        "DH R1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp["bib_number"] != "10K001" || resp["duplicate"] != true {
		t.Errorf("response = %v", resp)
	}
	if len(o.calls) != 0 {
		t.Error("duplicate signal must not reach the orchestrator")
	}
}

func TestWebhookIgnoresOutboundTransfer(t *testing.T) {
	v := &fakeVerifier{}
	h := NewWebhookHandler(v, &fakeConfirmer{}, config.Config{})

	w, _ := postWebhook(t, h, models.BankTransferSignal{ID: 1, TransferType: "out", Content: "DH R1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if v.lastIn.ExternalTxnID != 0 {
		t.Error("outbound transfer should not be verified")
	}
}

func TestWebhookIgnoresMissingOrderCode(t *testing.T) {
	v := &fakeVerifier{}
	h := NewWebhookHandler(v, &fakeConfirmer{}, config.Config{})

	w, resp := postWebhook(t, h, models.BankTransferSignal{ID: 1, TransferType: "in", Content: "no code here"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp["success"] != true {
		t.Errorf("signal without order code should be ignored, not failed: %v", resp)
	}
}

func TestWebhookIgnoresUnknownAccount(t *testing.T) {
	v := &fakeVerifier{}
	h := NewWebhookHandler(v, &fakeConfirmer{}, config.Config{BankAccountNumber: "190000001"})

	w, _ := postWebhook(t, h, models.BankTransferSignal{
		ID: 1, TransferType: "in", Content: "DH R1", AccountNumber: "555555",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if v.lastIn.OrderCode != "" {
		t.Error("transfer to an unknown account should not be verified")
	}
}

// The gateway retries on non-200, so even internal failures answer 200.
func TestWebhookAlwaysReturns200(t *testing.T) {
	cases := []struct {
		name string
		h    *WebhookHandler
	}{
		{"verifier error", NewWebhookHandler(&fakeVerifier{err: errors.New("db down")}, &fakeConfirmer{}, config.Config{})},
		{"reject verdict", NewWebhookHandler(&fakeVerifier{verdict: payment.Verdict{Kind: payment.VerdictReject, Reason: "amount short"}}, &fakeConfirmer{}, config.Config{})},
		{"confirm error", NewWebhookHandler(
			&fakeVerifier{verdict: payment.Verdict{Kind: payment.VerdictAccept, Registration: &models.Registration{ID: uuid.New()}}},
			&fakeConfirmer{err: errors.New("capacity exceeded")},
			config.Config{},
		)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := postWebhook(t, tc.h, models.BankTransferSignal{ID: 9, TransferType: "in", Content: "DH R1", TransferAmount: 1})
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if resp["success"] != false {
				t.Errorf("internal failure should report success=false in body: %v", resp)
			}
		})
	}
}

func TestWebhookMalformedBodyStill200(t *testing.T) {
	h := NewWebhookHandler(&fakeVerifier{}, &fakeConfirmer{}, config.Config{})
	router := gin.New()
	router.POST("/api/v1/webhooks/bank", h.HandleBankTransfer)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/bank", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
