package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rewired-gh/claimwatch/internal/config"
	"github.com/rewired-gh/claimwatch/internal/metrics"
	"github.com/rewired-gh/claimwatch/internal/models"
	"github.com/rewired-gh/claimwatch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilter(t *testing.T) {
	f := buildFilter(config.MonitorConfig{
		CreatorFilter:  config.CreatorFilterRoyalty,
		MinClaimSOL:    0.25,
		FirstClaimOnly: true,
		TokenMint:      "So11111111111111111111111111111111111111112",
	})
	assert.True(t, f.RequireRoyalty)
	assert.True(t, f.FirstClaimOnly)
	assert.Equal(t, "0.25", f.MinClaim.String())
	assert.Equal(t, "So11111111111111111111111111111111111111112", f.TokenMint)

	f = buildFilter(config.MonitorConfig{CreatorFilter: config.CreatorFilterAll})
	assert.False(t, f.RequireRoyalty)
	assert.True(t, f.MinClaim.IsZero())
}

func TestMetricsMux(t *testing.T) {
	m := metrics.New()
	m.Cycles.Inc()
	mux := metricsMux(m)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "claimwatch_")
}

type brokenHistory struct{}

func (brokenHistory) LastIdleAlert() (*models.IdleEvent, error) {
	return nil, errors.New("no such table: idle_alerts")
}

func TestLastIdleAt(t *testing.T) {
	store, err := storage.New(100, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.True(t, lastIdleAt(store).IsZero(), "empty journal")

	sent := time.Date(2024, 5, 1, 11, 30, 0, 0, time.UTC)
	require.NoError(t, store.AddIdleAlert(&models.IdleEvent{
		LastClaimAt:    sent.Add(-time.Hour),
		SilentFor:      time.Hour,
		TrackedEntries: 2,
		DetectedAt:     sent,
	}))
	assert.True(t, lastIdleAt(store).Equal(sent))

	assert.True(t, lastIdleAt(brokenHistory{}).IsZero())
}
