package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"raceday-backend/config"
	"raceday-backend/models"
	"raceday-backend/payment"
)

// verifier and confirmer are the pipeline surfaces the handlers call;
// interfaces here keep the handlers testable with fakes.
type verifier interface {
	Verify(ctx context.Context, in payment.VerifyInput) (payment.Verdict, error)
}

type confirmer interface {
	Confirm(ctx context.Context, registrationID uuid.UUID, meta payment.PaymentMeta) (payment.ConfirmResult, error)
}

type WebhookHandler struct {
	verifier     verifier
	orchestrator confirmer
	cfg          config.Config
}

func NewWebhookHandler(v verifier, o confirmer, cfg config.Config) *WebhookHandler {
	return &WebhookHandler{verifier: v, orchestrator: o, cfg: cfg}
}

// Bank narratives arrive mangled (casing, padding, bank-inserted spaces),
// so the order code is fished out of the free text.
var orderCodeRe = regexp.MustCompile(`(?i)\bDH\s*([A-Za-z0-9-]+)`)

func extractOrderCode(content string) string {
	m := orderCodeRe.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return m[1]
}

// HandleBankTransfer processes an inbound transfer signal. It ALWAYS
// returns 200: the gateway retries on non-2xx and a retry storm helps
// nobody. Internal outcomes land in the payment and notification audit
// tables instead.
func (h *WebhookHandler) HandleBankTransfer(c *gin.Context) {
	var sig models.BankTransferSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		log.Printf("bank webhook: malformed payload: %v", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "malformed payload"})
		return
	}

	if sig.TransferType != "in" {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "ignored: not an inbound transfer"})
		return
	}

	if h.cfg.BankAccountNumber != "" && sig.AccountNumber != h.cfg.BankAccountNumber {
		log.Printf("bank webhook: transfer %d targets unknown account %s", sig.ID, sig.AccountNumber)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "ignored: unknown account"})
		return
	}

	orderCode := extractOrderCode(sig.Content)
	if orderCode == "" {
		log.Printf("bank webhook: no order code in narrative %q (txn %d)", sig.Content, sig.ID)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "ignored: no order code"})
		return
	}

	verdict, err := h.verifier.Verify(c, payment.VerifyInput{
		OrderCode:      orderCode,
		ExternalTxnID:  sig.ID,
		ObservedAmount: sig.TransferAmount,
	})
	if err != nil {
		log.Printf("bank webhook: verify failed for txn %d: %v", sig.ID, err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "internal error"})
		return
	}

	switch verdict.Kind {
	case payment.VerdictDuplicate:
		c.JSON(http.StatusOK, gin.H{"success": true, "duplicate": true, "bib_number": verdict.ExistingBib})
	case payment.VerdictReject:
		log.Printf("bank webhook: rejected txn %d for order %s: %s", sig.ID, orderCode, verdict.Reason)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": verdict.Reason})
	case payment.VerdictAccept:
		raw, _ := json.Marshal(sig)
		res, err := h.orchestrator.Confirm(c, verdict.Registration.ID, payment.PaymentMeta{
			ExternalTxnID: sig.ID,
			Amount:        sig.TransferAmount,
			Gateway:       sig.Gateway,
			RawSignal:     raw,
		})
		if err != nil {
			log.Printf("bank webhook: confirmation failed for registration %s (txn %d): %v", verdict.Registration.ID, sig.ID, err)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "confirmation failed"})
			return
		}
		log.Printf("bank webhook: confirmed registration %s with bib %s (txn %d)", verdict.Registration.ID, res.BibNumber, sig.ID)
		c.JSON(http.StatusOK, gin.H{"success": true, "bib_number": res.BibNumber})
	default:
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "unknown verdict"})
	}
}
