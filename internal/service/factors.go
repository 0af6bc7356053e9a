package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fare/internal/domain"
	"fare/internal/geo"
)

// FactorProvider returns the external multiplicative impact factors for a
// cell. The production implementation calls the factor aggregator service;
// tests substitute a deterministic double so randomness never leaks into
// the surge-formula tests.
type FactorProvider interface {
	Factors(ctx context.Context, cell geo.CellID, at time.Time) (domain.Factors, error)
}

// CountsProvider returns the supply/demand snapshot for a cell. The
// production implementation is the Redis activity store.
type CountsProvider interface {
	Counts(ctx context.Context, cell geo.CellID, st domain.ServiceType) (domain.Counts, error)
}

// HTTPFactorProvider fetches factors from the external factor aggregator
// over its JSON API.
type HTTPFactorProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPFactorProvider creates a provider against the aggregator's base URL.
func NewHTTPFactorProvider(baseURL string, timeout time.Duration) *HTTPFactorProvider {
	return &HTTPFactorProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// factorResponse is the aggregator's wire format.
type factorResponse struct {
	Weather float64 `json:"weather"`
	Traffic float64 `json:"traffic"`
	Event   float64 `json:"event"`
	POI     float64 `json:"poi"`
}

// Factors fetches weather/traffic/event/poi factors for a cell. The
// time-of-day factor is derived locally, not fetched.
func (p *HTTPFactorProvider) Factors(ctx context.Context, cell geo.CellID, at time.Time) (domain.Factors, error) {
	url := fmt.Sprintf("%s/v1/factors?cell_id=%s&timestamp=%d", p.baseURL, cell, at.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Factors{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Factors{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Factors{}, fmt.Errorf("factor aggregator returned status %d", resp.StatusCode)
	}

	var fr factorResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return domain.Factors{}, fmt.Errorf("decode factor response: %w", err)
	}

	return domain.Factors{
		Weather:   clampFactor(fr.Weather),
		Traffic:   clampFactor(fr.Traffic),
		Event:     clampFactor(fr.Event),
		POI:       clampFactor(fr.POI),
		TimeOfDay: domain.TimeOfDayFactor(at),
	}, nil
}

// clampFactor normalizes an aggregator value: missing/zero means neutral,
// negatives are clamped to neutral.
func clampFactor(v float64) float64 {
	if v <= 0 {
		return 1.0
	}
	return v
}

// StaticFactorProvider returns fixed factors; used as a deterministic test
// double and as a neutral fallback when no aggregator is configured.
type StaticFactorProvider struct {
	Fixed domain.Factors
	Err   error
}

// NewNeutralFactorProvider returns a provider that always reports no
// external impact (time-of-day still applies).
func NewNeutralFactorProvider() *StaticFactorProvider {
	return &StaticFactorProvider{Fixed: domain.NeutralFactors()}
}

// Factors returns the fixed factors with the time-of-day slot recomputed
// for the requested instant, unless it was explicitly pinned.
func (p *StaticFactorProvider) Factors(ctx context.Context, cell geo.CellID, at time.Time) (domain.Factors, error) {
	if p.Err != nil {
		return domain.Factors{}, p.Err
	}
	f := p.Fixed
	if f.TimeOfDay == 0 {
		f.TimeOfDay = domain.TimeOfDayFactor(at)
	}
	return f, nil
}
