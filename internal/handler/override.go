package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fare/internal/domain"
	"fare/internal/repository"
	"fare/internal/service"
)

// OverrideHandler handles HTTP requests for operator overrides.
type OverrideHandler struct {
	overrides *service.OverrideService
	repo      repository.OverrideRepository
}

// NewOverrideHandler creates a new OverrideHandler.
func NewOverrideHandler(overrides *service.OverrideService, repo repository.OverrideRepository) *OverrideHandler {
	return &OverrideHandler{overrides: overrides, repo: repo}
}

// CreateOverrideRequest is the HTTP request body for creating an override.
// The issuer comes from the X-Operator-ID and X-Approval-Level headers set
// by the operator gateway, never from the body.
type CreateOverrideRequest struct {
	Type         string                    `json:"type"`
	Scope        domain.GeographicScope    `json:"geographic_scope"`
	ServiceTypes []string                  `json:"service_types"`
	Parameters   domain.OverrideParameters `json:"parameters"`
	Reason       string                    `json:"reason"`
	StartTime    string                    `json:"start_time,omitempty"` // RFC3339, defaults to now
	EndTime      string                    `json:"end_time,omitempty"`   // RFC3339, empty means open-ended
}

// CreateOverrideResponse is the HTTP response for creating an override.
type CreateOverrideResponse struct {
	Override  *domain.Override `json:"override"`
	Warnings  []string         `json:"warnings,omitempty"`
	NextSteps []string         `json:"suggested_next_steps,omitempty"`
}

// CreateOverride handles POST /v1/overrides
func (h *OverrideHandler) CreateOverride(c *gin.Context) {
	operatorID := c.GetHeader("X-Operator-ID")
	if operatorID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing X-Operator-ID header"})
		return
	}
	level, err := strconv.Atoi(c.GetHeader("X-Approval-Level"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid X-Approval-Level header"})
		return
	}

	var req CreateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var start, end time.Time
	if req.StartTime != "" {
		if start, err = time.Parse(time.RFC3339, req.StartTime); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "start_time must be RFC3339"})
			return
		}
	}
	if req.EndTime != "" {
		if end, err = time.Parse(time.RFC3339, req.EndTime); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "end_time must be RFC3339"})
			return
		}
	}

	serviceTypes := make([]domain.ServiceType, 0, len(req.ServiceTypes))
	for _, st := range req.ServiceTypes {
		serviceTypes = append(serviceTypes, domain.ServiceType(st))
	}

	result, err := h.overrides.Create(c.Request.Context(), service.CreateOverrideRequest{
		Type:         domain.OverrideType(req.Type),
		Scope:        req.Scope,
		ServiceTypes: serviceTypes,
		Parameters:   req.Parameters,
		Reason:       req.Reason,
		IssuedBy:     domain.Issuer{OperatorID: operatorID, ApprovalLevel: level},
		StartTime:    start,
		EndTime:      end,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateOverrideResponse{
		Override:  result.Override,
		Warnings:  result.Warnings,
		NextSteps: result.NextSteps,
	})
}

// GetOverride handles GET /v1/overrides/:id
func (h *OverrideHandler) GetOverride(c *gin.Context) {
	o, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, o)
}

// ListOverrides handles GET /v1/overrides. With ?effective=true the list is
// filtered to overrides currently in force.
func (h *OverrideHandler) ListOverrides(c *gin.Context) {
	var (
		overrides []*domain.Override
		err       error
	)
	if c.Query("effective") == "true" {
		overrides, err = h.overrides.EffectiveOverrides(c.Request.Context(), time.Now())
	} else {
		overrides, err = h.repo.GetAll(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if overrides == nil {
		overrides = []*domain.Override{}
	}
	respondJSON(c, http.StatusOK, overrides)
}

// RevokeOverrideRequest is the HTTP request body for revoking an override.
type RevokeOverrideRequest struct {
	Reason string `json:"reason"`
}

// RevokeOverride handles POST /v1/overrides/:id/revoke
func (h *OverrideHandler) RevokeOverride(c *gin.Context) {
	var req RevokeOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	o, err := h.overrides.Revoke(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, o)
}

// Dashboard handles GET /v1/overrides/dashboard
func (h *OverrideHandler) Dashboard(c *gin.Context) {
	summary, err := h.overrides.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, summary)
}
