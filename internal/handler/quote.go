package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fare/internal/domain"
	"fare/internal/service"
)

// QuoteHandler handles HTTP requests for fare quotes.
type QuoteHandler struct {
	engine *service.QuoteEngine
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(engine *service.QuoteEngine) *QuoteHandler {
	return &QuoteHandler{engine: engine}
}

// CreateQuoteRequest is the HTTP request body for requesting a quote.
type CreateQuoteRequest struct {
	ServiceType          string  `json:"service_type"`
	PickupLat            float64 `json:"pickup_lat"`
	PickupLng            float64 `json:"pickup_lng"`
	DropoffLat           float64 `json:"dropoff_lat"`
	DropoffLng           float64 `json:"dropoff_lng"`
	EstimatedDistanceKm  float64 `json:"estimated_distance_km"`
	EstimatedDurationMin float64 `json:"estimated_duration_min"`
	Timestamp            string  `json:"timestamp,omitempty"` // RFC3339, defaults to now
}

// CreateQuote handles POST /v1/quotes
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	var req CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var at time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "timestamp must be RFC3339"})
			return
		}
		at = parsed
	}

	quote, err := h.engine.Quote(c.Request.Context(), service.QuoteRequest{
		ServiceType:          domain.ServiceType(req.ServiceType),
		PickupLat:            req.PickupLat,
		PickupLng:            req.PickupLng,
		DropoffLat:           req.DropoffLat,
		DropoffLng:           req.DropoffLng,
		EstimatedDistanceKm:  req.EstimatedDistanceKm,
		EstimatedDurationMin: req.EstimatedDurationMin,
		Timestamp:            at,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, quote)
}
