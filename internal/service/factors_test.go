package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fare/internal/domain"
)

func TestHTTPFactorProvider_ParsesAndClamps(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "012301230123", r.URL.Query().Get("cell_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"weather":1.4,"traffic":1.1,"event":-2.0,"poi":0}`))
	}))
	defer srv.Close()

	p := NewHTTPFactorProvider(srv.URL, time.Second)
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	f, err := p.Factors(context.Background(), "012301230123", at)
	require.NoError(t, err)

	assert.Equal(t, "/v1/factors", gotPath)
	assert.Equal(t, 1.4, f.Weather)
	assert.Equal(t, 1.1, f.Traffic)
	assert.Equal(t, 1.0, f.Event, "negative factor clamps to neutral")
	assert.Equal(t, 1.0, f.POI, "missing factor defaults to neutral")
	assert.Equal(t, domain.TimeOfDayFactor(at), f.TimeOfDay)
}

func TestHTTPFactorProvider_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPFactorProvider(srv.URL, time.Second)
	_, err := p.Factors(context.Background(), "012301230123", time.Now())
	assert.Error(t, err)
}

func TestTimeOfDayFactor_Windows(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		hour int
		want float64
	}{
		{3, 1.1},  // late night
		{6, 1.0},  // before morning rush
		{8, 1.2},  // morning rush
		{12, 1.0}, // midday
		{18, 1.3}, // evening rush
		{21, 1.0}, // evening
	}

	for _, tc := range testCases {
		got := domain.TimeOfDayFactor(day.Add(time.Duration(tc.hour) * time.Hour))
		assert.Equal(t, tc.want, got, "hour %d", tc.hour)
	}
}
