package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fare/internal/domain"
	"fare/internal/geo"
	"fare/internal/service"
)

// SurgeHandler handles HTTP requests for surge state and activity signals.
type SurgeHandler struct {
	surge *service.SurgeStateService
}

// NewSurgeHandler creates a new SurgeHandler.
func NewSurgeHandler(surge *service.SurgeStateService) *SurgeHandler {
	return &SurgeHandler{surge: surge}
}

// Heatmap handles GET /v1/surge
func (h *SurgeHandler) Heatmap(c *gin.Context) {
	states, err := h.surge.Heatmap(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if states == nil {
		states = []*domain.SurgeState{}
	}
	respondJSON(c, http.StatusOK, states)
}

// GetCell handles GET /v1/surge/:cell_id
func (h *SurgeHandler) GetCell(c *gin.Context) {
	cell := geo.CellID(c.Param("cell_id"))
	st := domain.ServiceType(c.DefaultQuery("service_type", "standard"))

	state, err := h.surge.Get(c.Request.Context(), cell, st)
	if err != nil {
		respondError(c, err)
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no surge state for cell"})
		return
	}
	respondJSON(c, http.StatusOK, state)
}

// DriverLocationRequest is the HTTP request body for a driver position ping.
type DriverLocationRequest struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	ServiceType string  `json:"service_type"`
}

// DriverLocationResponse acknowledges a position ping with the cell it
// landed in.
type DriverLocationResponse struct {
	DriverID string `json:"driver_id"`
	CellID   string `json:"cell_id"`
}

// UpdateDriverLocation handles POST /v1/drivers/:id/location
func (h *SurgeHandler) UpdateDriverLocation(c *gin.Context) {
	driverID := c.Param("id")

	var req DriverLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.ServiceType == "" {
		req.ServiceType = "standard"
	}

	cell, err := h.surge.ReportDriverLocation(c.Request.Context(), driverID, domain.ServiceType(req.ServiceType), req.Lat, req.Lng)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, DriverLocationResponse{DriverID: driverID, CellID: string(cell)})
}

// DemandRequest is the HTTP request body for a demand signal.
type DemandRequest struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	ServiceType string  `json:"service_type"`
}

// DemandResponse acknowledges a demand signal.
type DemandResponse struct {
	CellID string `json:"cell_id"`
}

// RecordDemand handles POST /v1/demand
func (h *SurgeHandler) RecordDemand(c *gin.Context) {
	var req DemandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.ServiceType == "" {
		req.ServiceType = "standard"
	}

	cell, err := h.surge.RecordDemand(c.Request.Context(), req.Lat, req.Lng, domain.ServiceType(req.ServiceType))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusAccepted, DemandResponse{CellID: string(cell)})
}
