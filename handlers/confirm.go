package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"raceday-backend/allocator"
	"raceday-backend/models"
	"raceday-backend/payment"
)

type confirmStore interface {
	GetImportBatch(ctx context.Context, id uuid.UUID) (models.ImportBatch, error)
	ListPendingBatchMembers(ctx context.Context, batchID uuid.UUID) ([]models.Registration, error)
	FinishImportBatch(ctx context.Context, id uuid.UUID, status string, successCount int, firstBib, lastBib *string) error
	CancelRegistration(ctx context.Context, id uuid.UUID) (models.Registration, error)
}

type ConfirmHandler struct {
	store        confirmStore
	orchestrator confirmer
}

func NewConfirmHandler(store confirmStore, o confirmer) *ConfirmHandler {
	return &ConfirmHandler{store: store, orchestrator: o}
}

// ManualConfirm is the operator path. Unlike the webhook it surfaces typed
// failures with real status codes.
func (h *ConfirmHandler) ManualConfirm(c *gin.Context) {
	registrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	// Notes are optional and so is the body itself.
	var req models.ManualConfirmRequest
	_ = c.ShouldBindJSON(&req)

	operator := c.GetHeader("X-Operator-Id")
	log.Printf("manual confirmation of registration %s by operator %q", registrationID, operator)

	res, err := h.orchestrator.Confirm(c, registrationID, payment.PaymentMeta{Notes: req.Notes, Gateway: "manual"})
	if err != nil {
		h.renderConfirmError(c, registrationID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bib_number":   res.BibNumber,
		"already_paid": res.AlreadyPaid,
	})
}

// BatchConfirm runs every PENDING member of an import batch through the
// same pipeline and reports per-row failures. Members are processed
// sequentially so the allocated bib range stays contiguous.
func (h *ConfirmHandler) BatchConfirm(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch id"})
		return
	}

	batch, err := h.store.GetImportBatch(c, batchID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		log.Printf("batch %s: load failed: %v", batchID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	members, err := h.store.ListPendingBatchMembers(c, batchID)
	if err != nil {
		log.Printf("batch %s: listing members failed: %v", batchID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	var (
		successCount      int
		firstBib, lastBib *string
		failures          []models.BatchFailure
	)

	for _, member := range members {
		res, err := h.orchestrator.Confirm(c, member.ID, payment.PaymentMeta{
			Gateway: "batch",
			Notes:   "batch " + batch.ID.String(),
		})
		if err != nil {
			log.Printf("batch %s: member %s failed: %v", batchID, member.ID, err)
			failures = append(failures, models.BatchFailure{RegistrationID: member.ID, Error: err.Error()})
			continue
		}

		successCount++
		bib := res.BibNumber
		if firstBib == nil {
			firstBib = &bib
		}
		lastBib = &bib
	}

	status := models.BatchCompleted
	if len(failures) > 0 {
		status = models.BatchPartialFailure
	}
	if err := h.store.FinishImportBatch(c, batchID, status, successCount, firstBib, lastBib); err != nil {
		log.Printf("batch %s: updating counters failed: %v", batchID, err)
	}

	bibRange := ""
	if firstBib != nil && lastBib != nil {
		bibRange = *firstBib + "-" + *lastBib
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id":      batchID,
		"status":        status,
		"success_count": successCount,
		"failures":      failures,
		"bib_range":     bibRange,
	})
}

// CancelRegistration is the explicit admin transition PENDING -> FAILED.
func (h *ConfirmHandler) CancelRegistration(c *gin.Context) {
	registrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	reg, err := h.store.CancelRegistration(c, registrationID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		case errors.Is(err, models.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "only PENDING registrations can be cancelled"})
		default:
			log.Printf("cancel of registration %s failed: %v", registrationID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		}
		return
	}

	log.Printf("registration %s cancelled by operator %q", registrationID, c.GetHeader("X-Operator-Id"))
	c.JSON(http.StatusOK, reg)
}

func (h *ConfirmHandler) renderConfirmError(c *gin.Context, registrationID uuid.UUID, err error) {
	var capErr *allocator.CapacityError
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
	case errors.As(err, &capErr):
		c.JSON(http.StatusConflict, gin.H{"error": capErr.Error()})
	case errors.Is(err, payment.ErrRegistrationCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "registration was cancelled"})
	default:
		log.Printf("confirmation of registration %s failed: %v", registrationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
	}
}
