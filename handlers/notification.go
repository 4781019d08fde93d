package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"raceday-backend/models"
	"raceday-backend/notify"
	"raceday-backend/payment"
)

type notificationStore interface {
	GetRegistration(ctx context.Context, id uuid.UUID) (models.Registration, error)
	ListNotificationLogs(ctx context.Context, registrationID uuid.UUID) ([]models.NotificationLog, error)
}

type dispatcher interface {
	Notify(ctx context.Context, registrationID uuid.UUID, kind string, msg notify.Message) notify.Outcome
}

type NotificationHandler struct {
	store      notificationStore
	dispatcher dispatcher
}

func NewNotificationHandler(store notificationStore, d dispatcher) *NotificationHandler {
	return &NotificationHandler{store: store, dispatcher: d}
}

// ListNotifications exposes the append-only delivery audit trail.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	logs, err := h.store.ListNotificationLogs(c, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": logs,
		"count":         len(logs),
	})
}

// ResendNotification is the explicit admin retry for a failed delivery;
// the pipeline itself never retries automatically.
func (h *NotificationHandler) ResendNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	var req models.ResendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind != models.KindPaymentConfirmed && req.Kind != models.KindBibAnnouncement {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown notification kind"})
		return
	}

	reg, err := h.store.GetRegistration(c, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	if reg.PaymentStatus != models.PaymentPaid || reg.BibNumber == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "registration is not confirmed yet"})
		return
	}

	log.Printf("operator %q resending %s notification for registration %s", c.GetHeader("X-Operator-Id"), req.Kind, id)

	outcome := h.dispatcher.Notify(c, reg.ID, req.Kind, payment.ConfirmationMessage(reg, *reg.BibNumber))
	c.JSON(http.StatusOK, gin.H{
		"status":  outcome.Status,
		"channel": outcome.Channel,
		"error":   outcome.Error,
	})
}
