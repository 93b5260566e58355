package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neckcare-posture/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCloudClient_SyncDailySummary(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody models.DailySummary

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewCloudClient(server.URL, "secret-key", 5*time.Second, zap.NewNop())
	require.True(t, c.Enabled())

	avg := 46.0
	summary := &models.DailySummary{
		UserID:        "user-1",
		Date:          "2025-06-01",
		SumWeighted:   13800,
		WeightSeconds: 300,
		Count:         3,
		AvgAngle:      &avg,
		GoodDay:       5,
	}
	require.NoError(t, c.SyncDailySummary(context.Background(), summary))

	assert.Equal(t, "/v1/posture/daily", gotPath)
	assert.Equal(t, "secret-key", gotAPIKey)
	assert.Equal(t, "user-1", gotBody.UserID)
	assert.Equal(t, 5, gotBody.GoodDay)
}

func TestCloudClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewCloudClient(server.URL, "", 5*time.Second, zap.NewNop())
	err := c.SyncDailySummary(context.Background(), &models.DailySummary{UserID: "user-1", Date: "2025-06-01"})
	assert.Error(t, err)
}

func TestCloudClient_DisabledWithoutBaseURL(t *testing.T) {
	c := NewCloudClient("", "", 5*time.Second, zap.NewNop())
	assert.False(t, c.Enabled())
	assert.NoError(t, c.SyncDailySummary(context.Background(), &models.DailySummary{UserID: "user-1"}))
}
