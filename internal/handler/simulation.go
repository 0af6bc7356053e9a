package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fare/internal/domain"
	"fare/internal/service"
)

// SimulationHandler handles HTTP requests for pricing simulations.
type SimulationHandler struct {
	engine *service.SimulationEngine
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(engine *service.SimulationEngine) *SimulationHandler {
	return &SimulationHandler{engine: engine}
}

// StartSimulation handles POST /v1/simulations
func (h *SimulationHandler) StartSimulation(c *gin.Context) {
	var req domain.SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	run, err := h.engine.Start(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusAccepted, run)
}

// GetSimulation handles GET /v1/simulations/:id
func (h *SimulationHandler) GetSimulation(c *gin.Context) {
	run, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, run)
}

// ListSimulations handles GET /v1/simulations
func (h *SimulationHandler) ListSimulations(c *gin.Context) {
	runs, err := h.engine.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []*domain.SimulationRun{}
	}
	respondJSON(c, http.StatusOK, runs)
}

// CancelSimulationRequest is the HTTP request body for cancelling a run.
type CancelSimulationRequest struct {
	Reason string `json:"reason"`
}

// CancelSimulation handles POST /v1/simulations/:id/cancel
func (h *SimulationHandler) CancelSimulation(c *gin.Context) {
	var req CancelSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}

	if err := h.engine.Cancel(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
