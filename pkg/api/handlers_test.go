package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dewei/DocRadar/pkg/logger"
	"github.com/dewei/DocRadar/pkg/metrics"
	"github.com/dewei/DocRadar/pkg/model"
	"github.com/dewei/DocRadar/pkg/monitor"
	"github.com/dewei/DocRadar/pkg/repository"
	"github.com/dewei/DocRadar/pkg/schedule"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	repo    *repository.Repository
	monitor *monitor.Monitor
	handler http.Handler
}

func newTestEnv(t *testing.T, opts ...HandlerOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewRepository()
	expiry := time.Date(2026, 3, 26, 0, 0, 0, 0, time.UTC)
	repo.PutDocument(model.Document{ID: "doc-1", UserID: "user-1", BikeID: "bike-1", Title: "交强险", ExpiryDate: &expiry})
	repo.PutDocument(model.Document{ID: "doc-no-expiry", UserID: "user-1", Title: "购车发票"})
	lastService := now.AddDate(0, 0, -80)
	repo.PutBike(model.Bike{
		ID:                  "bike-1",
		UserID:              "user-1",
		Name:                "CB400",
		OdometerKm:          12400,
		LastOilChangeKm:     10000,
		OilChangeIntervalKm: 2500,
		LastServiceAt:       &lastService,
		ServiceIntervalDays: 90,
	})
	repo.PutBike(model.Bike{ID: "bike-bad", UserID: "user-1", Name: "bad"})

	gen := schedule.NewGenerator(repo, logger.Discard(),
		schedule.WithLocation(time.UTC),
		schedule.WithClock(func() time.Time { return now }))
	mon := monitor.NewMonitor(nil)

	opts = append([]HandlerOption{WithClock(func() time.Time { return now })}, opts...)
	server := NewServer("0", time.Second, time.Second, logger.Discard())
	server.SetupRoutes(NewHandlers(repo, gen, mon, opts...))

	return &testEnv{repo: repo, monitor: mon, handler: server.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = env.do(t, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])

	env = newTestEnv(t, WithReadiness(func(ctx context.Context) error { return errors.New("database is closed") }))
	rec, body = env.do(t, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "database is closed", body["error"])
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.monitor.Report("alert_processor", nil)

	rec, body := env.do(t, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, monitor.StatusHealthy, body["status"])
	assert.Len(t, body["components"], 1)

	env.monitor.Report("database", errors.New("connection refused"))
	rec, body = env.do(t, http.MethodGet, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, monitor.StatusUnhealthy, body["status"])
}

func TestStatusIncludesAlertCounts(t *testing.T) {
	repo := repository.NewRepository()
	_, err := repo.ReplacePending(context.Background(), "doc-1", []model.AlertInstance{
		{DocumentID: "doc-1", AlertType: model.AlertType7Day, ScheduledAt: now},
		{DocumentID: "doc-1", AlertType: model.AlertType1Day, ScheduledAt: now.AddDate(0, 0, 6)},
	})
	require.NoError(t, err)

	env := newTestEnv(t, WithAlertStats(repo))
	rec, body := env.do(t, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	alerts, ok := body["alerts"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, alerts["pending"])
}

func TestRegenerateListAndCancel(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/v1/documents/doc-1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	// 7_day、1_day、expired 三档仍在未来
	assert.Len(t, body["data"], 3)

	// 再次重建不会留下重复的 pending 提醒
	rec, _ = env.do(t, http.MethodPost, "/api/v1/documents/doc-1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/api/v1/documents/doc-1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	alerts := body["data"].([]any)
	assert.Len(t, alerts, 6)
	pending := map[string]int{}
	for _, a := range alerts {
		alert := a.(map[string]any)
		if alert["status"] == string(model.AlertStatusPending) {
			pending[alert["alertType"].(string)]++
		}
	}
	assert.Equal(t, map[string]int{"7_day": 1, "1_day": 1, "expired": 1}, pending)

	rec, body = env.do(t, http.MethodDelete, "/api/v1/documents/doc-1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, body["cancelled"])

	rec, _ = env.do(t, http.MethodPost, "/api/v1/documents/missing/alerts")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAlertsEmpty(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/api/v1/documents/unknown/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["data"])
}

func TestDocumentUrgency(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/documents/doc-1/urgency")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-26", body["expiryDate"])
	assert.Equal(t, 25.0, body["daysUntilExpiry"])
	assert.Equal(t, "due_soon", body["status"])

	rec, _ = env.do(t, http.MethodGet, "/api/v1/documents/doc-no-expiry/urgency")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/documents/missing/urgency")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBikeMaintenance(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/bikes/bike-1/maintenance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CB400", body["name"])

	data := body["data"].(map[string]any)
	// 换油还剩 100km，保养还剩 10 天
	assert.Equal(t, "due_soon", data["status"])
	oil := data["oil"].(map[string]any)
	assert.Equal(t, 100.0, oil["kmRemaining"])
	assert.Equal(t, 96.0, oil["percentageUsed"])
	service := data["service"].(map[string]any)
	assert.Equal(t, 10.0, service["daysRemaining"])

	rec, _ = env.do(t, http.MethodGet, "/api/v1/bikes/bike-bad/maintenance")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/bikes/missing/maintenance")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.ObserveAlert(metrics.OutcomeSent, "1_day")
	env := newTestEnv(t, WithMetrics("/metrics", m.Handler()))

	rec, _ := env.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docradar_alerts_processed_total")
}

func TestRunShutsDownWithContext(t *testing.T) {
	server := NewServer("0", time.Second, time.Second, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
