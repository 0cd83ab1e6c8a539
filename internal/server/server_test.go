package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entityusage/internal/clock"
	"github.com/smallbiznis/entityusage/internal/config"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	entityrepository "github.com/smallbiznis/entityusage/internal/entity/repository"
	entityservice "github.com/smallbiznis/entityusage/internal/entity/service"
	"github.com/smallbiznis/entityusage/internal/observability"
	"github.com/smallbiznis/entityusage/internal/ratelimit"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"github.com/smallbiznis/entityusage/internal/usage/liveevents"
	usagerepository "github.com/smallbiznis/entityusage/internal/usage/repository"
	usageservice "github.com/smallbiznis/entityusage/internal/usage/service"
	"github.com/smallbiznis/entityusage/pkg/db/dbtest"
	"github.com/smallbiznis/entityusage/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testServer struct {
	t      *testing.T
	server *Server
	hub    *liveevents.Hub
}

func newTestServer(t *testing.T, limiter *ratelimit.UsageReportLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := dbtest.Open(t, &entitydomain.Entity{}, &usagedomain.UsageRecord{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	entities := entityservice.New(entityservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  entityrepository.Provide(),
		Types: config.NewStaticEntityTypeConfigHolder(config.DefaultEntityTypeConfig()),
	})
	hub := liveevents.NewHub()
	usage := usageservice.New(usageservice.Params{
		DB:         conn,
		Log:        zap.NewNop(),
		Repo:       usagerepository.Provide(),
		Entities:   entities,
		Clock:      clock.NewFakeClock(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)),
		LiveEvents: hub,
	})

	httpMetrics := telemetry.NewMetrics(prometheus.NewRegistry())
	srv := NewServer(ServerParams{
		Gin:          NewEngine(observability.Config{}, httpMetrics),
		EntitySvc:    entities,
		UsageSvc:     usage,
		LiveEvents:   hub,
		UsageLimiter: limiter,
		HTTPMetrics:  httpMetrics,
	})

	return &testServer{t: t, server: srv, hub: hub}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createEntity(entityType, name, parent string) entitydomain.Response {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/v1/entities/"+entityType, map[string]any{
		"name":   name,
		"parent": parent,
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data entitydomain.Response `json:"data"`
	}
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func (ts *testServer) report(entityType, id, date string, count int64) {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, fmt.Sprintf("/api/v1/usage/%s/%s", entityType, id), map[string]any{
		"date":  date,
		"count": count,
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReportQueryAndPercentileFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	db := ts.createEntity("database", "sales", "")
	orders := ts.createEntity("table", "orders", "sales")
	items := ts.createEntity("table", "items", "sales")
	assert.Equal(t, "sales.orders", orders.FullyQualifiedName)

	ts.report("table", orders.ID, "2024-01-09", 4)
	ts.report("table", orders.ID, "2024-01-10", 6)
	ts.report("table", items.ID, "2024-01-10", 1)

	rec := ts.do(http.MethodPost, "/api/v1/usage/compute.percentile/table/2024-01-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/v1/usage/table/"+orders.ID+"?date=2024-01-10&days=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var usage struct {
		Data usagedomain.EntityUsage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, "sales.orders", usage.Data.Entity.FullyQualifiedName)
	require.Len(t, usage.Data.Usage, 2)

	latest := usage.Data.Usage[0]
	assert.Equal(t, "2024-01-10", latest.Date)
	assert.Equal(t, int64(6), latest.DailyStats.Count)
	assert.Equal(t, int64(10), latest.WeeklyStats.Count)
	require.NotNil(t, latest.DailyStats.PercentileRank)
	assert.Equal(t, 50, *latest.DailyStats.PercentileRank)
	assert.Nil(t, usage.Data.Usage[1].DailyStats.PercentileRank)

	// today on the fake clock is 2024-01-10
	rec = ts.do(http.MethodGet, "/api/v1/usage/database/name/sales?days=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, db.ID, usage.Data.Entity.ID)
	require.Len(t, usage.Data.Usage, 1)
	assert.Equal(t, int64(7), usage.Data.Usage[0].DailyStats.Count)
}

func TestReportUsageByName(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createEntity("dashboard", "revenue", "")

	rec := ts.do(http.MethodPost, "/api/v1/usage/dashboard/name/revenue", map[string]any{
		"date":  "2024-01-10",
		"count": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data usagedomain.UsageRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Data.DailyCount)
	assert.Equal(t, "2024-01-10", resp.Data.UsageDate)
}

func TestEntityUsageSummary(t *testing.T) {
	ts := newTestServer(t, nil)
	chart := ts.createEntity("chart", "churn", "")

	rec := ts.do(http.MethodGet, "/api/v1/entities/chart/"+chart.ID+"?fields=usageSummary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "usageSummary")

	ts.report("chart", chart.ID, "2024-01-08", 2)
	ts.report("chart", chart.ID, "2024-01-09", 5)

	rec = ts.do(http.MethodGet, "/api/v1/entities/chart/name/churn?fields=usageSummary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data entityResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.UsageSummary)
	assert.Equal(t, "2024-01-09", resp.Data.UsageSummary.Date)
	assert.Equal(t, int64(7), resp.Data.UsageSummary.WeeklyStats.Count)

	rec = ts.do(http.MethodGet, "/api/v1/entities/chart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fullyQualifiedName":"churn"`)
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	table := ts.createEntity("database", "warehouse", "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "negative count",
			method: http.MethodPost,
			path:   "/api/v1/usage/database/" + table.ID,
			body:   map[string]any{"date": "2024-01-10", "count": -1},
			status: http.StatusBadRequest,
			code:   "invalid_usage_count",
		},
		{
			name:   "missing count",
			method: http.MethodPost,
			path:   "/api/v1/usage/database/" + table.ID,
			body:   map[string]any{"date": "2024-01-10"},
			status: http.StatusBadRequest,
			code:   "required",
		},
		{
			name:   "bad date",
			method: http.MethodPost,
			path:   "/api/v1/usage/database/" + table.ID,
			body:   map[string]any{"date": "10/01/2024", "count": 1},
			status: http.StatusBadRequest,
			code:   "invalid_usage_date",
		},
		{
			name:   "bad days",
			method: http.MethodGet,
			path:   "/api/v1/usage/database/" + table.ID + "?days=week",
			status: http.StatusBadRequest,
			code:   "invalid_days",
		},
		{
			name:   "unknown entity",
			method: http.MethodGet,
			path:   "/api/v1/usage/database/name/missing",
			status: http.StatusNotFound,
		},
		{
			name:   "unknown type",
			method: http.MethodPost,
			path:   "/api/v1/usage/compute.percentile/widget/2024-01-10",
			status: http.StatusNotFound,
		},
		{
			name:   "duplicate entity",
			method: http.MethodPost,
			path:   "/api/v1/entities/database",
			body:   map[string]any{"name": "warehouse"},
			status: http.StatusConflict,
		},
		{
			name:   "no route",
			method: http.MethodGet,
			path:   "/api/v2/nothing",
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			payload := decodeError(t, rec)
			if tt.code != "" {
				require.NotEmpty(t, payload.Errors)
				assert.Equal(t, tt.code, payload.Errors[0].Code)
			}
		})
	}
}

func TestUsageReportRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewUsageReportLimiter(client, config.Config{
		RateLimit: config.RateLimitConfig{UsageReportRate: 0.001, UsageReportBurst: 1},
	})
	require.NoError(t, err)

	ts := newTestServer(t, limiter)
	pipeline := ts.createEntity("pipeline", "ingest", "")
	path := "/api/v1/usage/pipeline/" + pipeline.ID
	body := map[string]any{"date": "2024-01-10", "count": 1}

	rec := ts.do(http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = ts.do(http.MethodPost, path, body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)

	// queries are not throttled
	rec = ts.do(http.MethodGet, path+"?date=2024-01-10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamUsageLiveEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	topic := ts.createEntity("topic", "clicks", "")

	httpServer := httptest.NewServer(ts.server.Engine())
	t.Cleanup(httpServer.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpServer.URL+"/api/v1/usage/topic/live", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 2000\n", line)

	ts.report("topic", topic.ID, "2024-01-10", 9)

	var data string
	for data == "" {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var event liveevents.UsageEvent
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, topic.ID, event.EntityID)
	assert.Equal(t, int64(9), event.DailyCount)
	assert.Equal(t, liveevents.SourceReport, event.Source)
}

func TestStreamUsageLiveEventsUnknownType(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/usage/widget/live", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{name: "nil", err: nil, status: http.StatusInternalServerError, typ: "internal_error"},
		{name: "validation", err: newValidationError("days", "invalid_days", "bad"), status: http.StatusBadRequest, typ: "validation_error"},
		{name: "usage count", err: usagedomain.ErrInvalidUsageCount, status: http.StatusBadRequest, typ: "validation_error"},
		{name: "invalid id", err: entitydomain.ErrInvalidID, status: http.StatusBadRequest, typ: "validation_error"},
		{name: "entity missing", err: entitydomain.ErrEntityNotFound, status: http.StatusNotFound, typ: "not_found"},
		{name: "type missing", err: entitydomain.ErrEntityTypeNotFound, status: http.StatusNotFound, typ: "not_found"},
		{name: "record missing", err: gorm.ErrRecordNotFound, status: http.StatusNotFound, typ: "not_found"},
		{name: "exists", err: entitydomain.ErrEntityExists, status: http.StatusConflict, typ: "conflict"},
		{name: "rate limited", err: ErrRateLimited, status: http.StatusTooManyRequests, typ: "rate_limited"},
		{name: "lock timeout", err: usagedomain.ErrLockTimeout, status: http.StatusServiceUnavailable, typ: "service_unavailable"},
		{name: "wrapped", err: fmt.Errorf("report: %w", entitydomain.ErrEntityNotFound), status: http.StatusNotFound, typ: "not_found"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, typ: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.typ, payload.Type)
		})
	}
}

func TestValidationFieldNames(t *testing.T) {
	_, payload := mapError(usagedomain.ErrInvalidUsageDate)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "date", payload.Errors[0].Field)

	_, payload = mapError(entitydomain.ErrInvalidParent)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "parent", payload.Errors[0].Field)

	errType, code := classifyErrorForLog(entitydomain.ErrEntityNotFound)
	assert.Equal(t, "not_found", errType)
	assert.Equal(t, "entity_not_found", code)
}
