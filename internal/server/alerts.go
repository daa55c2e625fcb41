package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"forex-observer/internal/alert"
)

type alertRequest struct {
	Pair      string          `json:"pair"`
	Condition alert.Condition `json:"condition"`
	Threshold decimal.Decimal `json:"threshold"`
	Channels  []alert.Channel `json:"channels"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Message   string          `json:"message"`
	Active    *bool           `json:"active"`
}

// handleCreateAlert registers a new alert. Creation is independent of market
// state; a closed market only delays evaluation.
func (s *Server) handleCreateAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a := alert.New(req.Pair, req.Condition, req.Threshold, req.Channels)
	a.Email = req.Email
	a.Phone = req.Phone
	a.Message = req.Message
	if req.Active != nil {
		a.Active = *req.Active
	}

	if err := a.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := s.alerts.Create(c.Request.Context(), a)
	if err != nil {
		s.logger.Error().Err(err).Msg("alert create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	list, err := s.alerts.List(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("alert list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []alert.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "items": list})
}

func (s *Server) handleGetAlert(c *gin.Context) {
	a, err := s.alerts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		s.logger.Error().Err(err).Msg("alert get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

// handleUpdateAlert replaces the mutable fields of an alert. Changing the
// predicate (pair, condition, or threshold) disarms the trigger so the
// edited alert starts from a clean edge.
func (s *Server) handleUpdateAlert(c *gin.Context) {
	existing, err := s.alerts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		s.logger.Error().Err(err).Msg("alert get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated := existing
	predicateChanged := false
	if req.Pair != "" && req.Pair != existing.Pair {
		updated.Pair = req.Pair
		predicateChanged = true
	}
	if req.Condition != "" && req.Condition != existing.Condition {
		updated.Condition = req.Condition
		predicateChanged = true
	}
	if !req.Threshold.IsZero() && !req.Threshold.Equal(existing.Threshold) {
		updated.Threshold = req.Threshold
		predicateChanged = true
	}
	if len(req.Channels) > 0 {
		updated.Channels = req.Channels
	}
	if req.Email != "" {
		updated.Email = req.Email
	}
	if req.Phone != "" {
		updated.Phone = req.Phone
	}
	if req.Message != "" {
		updated.Message = req.Message
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if predicateChanged {
		updated.LastTriggerState = false
	}

	if err := updated.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.alerts.Update(c.Request.Context(), updated); err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		s.logger.Error().Err(err).Msg("alert update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteAlert(c *gin.Context) {
	if err := s.alerts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		s.logger.Error().Err(err).Msg("alert delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
