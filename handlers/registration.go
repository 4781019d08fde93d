package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"raceday-backend/models"
)

type registrationStore interface {
	CreateRegistration(ctx context.Context, r models.Registration) (models.Registration, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (models.Registration, error)
	GetCredential(ctx context.Context, id uuid.UUID) ([]byte, error)
	GetDistance(ctx context.Context, id int64) (models.Distance, error)
	GetGoal(ctx context.Context, id int64) (models.Goal, error)
}

type RegistrationHandler struct {
	store registrationStore
}

func NewRegistrationHandler(store registrationStore) *RegistrationHandler {
	return &RegistrationHandler{store: store}
}

func (h *RegistrationHandler) CreateRegistration(c *gin.Context) {
	var req models.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	distance, err := h.store.GetDistance(c, req.DistanceID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown distance"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	total := distance.BaseAmount
	if req.GoalID != nil {
		goal, err := h.store.GetGoal(c, *req.GoalID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown goal"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if goal.DistanceID != distance.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "goal does not belong to distance"})
			return
		}
		total += goal.PriceAdjustment
	}

	reg := models.Registration{
		ID:         uuid.New(),
		OrderCode:  newOrderCode(),
		FullName:   strings.TrimSpace(req.FullName),
		DistanceID: req.DistanceID,
		GoalID:     req.GoalID,
	}
	reg.Gender = optional(req.Gender)
	reg.Email = optional(req.Email)
	reg.Phone = optional(req.Phone)
	reg.ShirtType = optional(req.ShirtType)
	reg.ShirtSize = optional(req.ShirtSize)
	reg.TotalAmount = total

	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_of_birth must be YYYY-MM-DD"})
			return
		}
		reg.DateOfBirth = &dob
	}

	created, err := h.store.CreateRegistration(c, reg)
	if err != nil {
		log.Printf("failed to create registration for %q: %v", req.FullName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create registration"})
		return
	}

	log.Printf("created registration %s (order %s) for distance %d, amount %d", created.ID, created.OrderCode, created.DistanceID, created.TotalAmount)
	c.JSON(http.StatusCreated, created)
}

func (h *RegistrationHandler) GetRegistration(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
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

	c.JSON(http.StatusOK, reg)
}

// GetCredential serves the stored QR artifact for race-pack pickup tools.
func (h *RegistrationHandler) GetCredential(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	artifact, err := h.store.GetCredential(c, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no credential for this registration"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	c.Data(http.StatusOK, "image/png", artifact)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// newOrderCode generates the short code registrants put in their bank
// transfer narrative ("DH <code>").
func newOrderCode() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return strings.ToUpper(hex.EncodeToString(buf))
}
