package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuemap/server/config"
	"valuemap/server/internal/database"
	"valuemap/server/internal/models"
	"valuemap/server/internal/pipeline"
	"valuemap/server/internal/processor"
	"valuemap/server/internal/queue"
)

const sampleCSV = `lat,lng,actualPrice,estimatedPrice,date,floor,size,district,community
25.033,121.565,20000000,22000000,2024-01-10,3,30,大安區,Sunrise
25.034,121.566,30000000,27000000,2024-01-20,8,45,大安區,Sunrise
25.035,121.560,40000000,40000000,2024-02-05,12,60,信義區,Sunrise
25.040,121.570,60000000,63000000,2024-03-01,20,80,信義區,Hilltop
`

type testServer struct {
	router *gin.Engine
	db     *database.Database
}

func setupTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.BatchProcessing.MaxBatchSize = 2
	cfg.BatchProcessing.RetryDelay = 0

	gdb, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(gdb))
	loc, err := cfg.Location()
	require.NoError(t, err)
	db := database.NewDatabase(gdb, loc, logger)

	recordQueue := queue.NewRecordQueue(cfg.BatchProcessing.QueueSize, cfg.BatchProcessing.ProcessorCount, logger)
	batchProcessor := processor.NewBatchProcessor(gdb, recordQueue, cfg, logger)
	batchProcessor.Start()
	t.Cleanup(func() {
		batchProcessor.Stop()
		_ = db.Close()
	})

	handler, err := NewHandler(db, recordQueue, cfg, logger)
	require.NoError(t, err)
	handler.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, loc) }

	router := gin.New()
	SetupRoutes(router, handler)
	return &testServer{router: router, db: db}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, csv string) models.DatasetStatus {
	w := s.do(t, http.MethodPost, "/api/datasets/upload?name=test.csv", strings.NewReader(csv), "text/csv")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var status models.DatasetStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	return status
}

func (s *testServer) waitReady(t *testing.T, id string) {
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/datasets/"+id, nil, "")
		if w.Code != http.StatusOK {
			return false
		}
		var status models.DatasetStatus
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.IsReady
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/api/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestGetConfig(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/api/config", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Limits      pipeline.Limits `json:"limits"`
		Cities      []config.City   `json:"cities"`
		CityNames   []string        `json:"city_names"`
		DefaultCity config.City     `json:"default_city"`
		Variants    []string        `json:"variants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 50000000.0, body.Limits.PriceMax)
	assert.Len(t, body.Cities, len(config.SupportedCities))
	assert.Equal(t, "taipei", body.DefaultCity.Name)
	assert.Contains(t, body.CityNames, "kaohsiung")
	assert.Equal(t, []string{"base", "community", "community_time"}, body.Variants)
}

func TestUploadAndSummarize(t *testing.T) {
	s := setupTestServer(t)

	status := s.upload(t, sampleCSV)
	assert.Equal(t, "test.csv", status.Name)
	assert.Equal(t, models.SourceUpload, status.Source)
	assert.Equal(t, 4, status.ExpectedCount)
	s.waitReady(t, status.ID)

	w := s.do(t, http.MethodGet, "/api/datasets/"+status.ID+"/summary", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary pipeline.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 4, summary.Stats.Count)
	require.Len(t, summary.Monthly, 3)
	assert.Equal(t, "2024-01", summary.Monthly[0].YearMonth)
	assert.Equal(t, 2, summary.Monthly[0].Count)
	assert.Equal(t, []string{"Sunrise", "Hilltop"}, summary.Communities)
	assert.Len(t, summary.Scatter, 4)
	assert.Equal(t, 63000000.0, summary.MaxEstimated)
}

func TestFilteredEndpoints(t *testing.T) {
	s := setupTestServer(t)
	status := s.upload(t, sampleCSV)
	s.waitReady(t, status.ID)
	base := "/api/datasets/" + status.ID

	w := s.do(t, http.MethodGet, base+"/properties?maxPrice=35000000", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []models.PropertyRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 20000000.0, records[0].ActualPrice)
	assert.Equal(t, 30000000.0, records[1].ActualPrice)

	w = s.do(t, http.MethodGet, base+"/stats?start=2024-02-01&end=2024-03-01", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.PropertyStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Count)

	w = s.do(t, http.MethodGet, base+"/stats?minError=0&maxError=30", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Count)

	w = s.do(t, http.MethodGet, base+"/properties?q="+url.QueryEscape("信義"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	w = s.do(t, http.MethodGet, base+"/months", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var months []models.MonthlySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &months))
	assert.Len(t, months, 3)

	w = s.do(t, http.MethodGet, base+"/floors", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var buckets []models.BucketSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buckets))
	require.Len(t, buckets, 4)
	assert.Equal(t, "1-5樓", buckets[0].Label)

	w = s.do(t, http.MethodGet, base+"/sizes?maxPrice=35000000", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buckets))
	require.Len(t, buckets, 2)
	assert.Equal(t, "30-40坪", buckets[0].Label)

	w = s.do(t, http.MethodGet, base+"/listings", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var listings []models.MonthGroup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listings))
	require.Len(t, listings, 3)
	assert.Equal(t, "2024-03", listings[0].YearMonth)

	w = s.do(t, http.MethodGet, base+"/geojson", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 4)

	w = s.do(t, http.MethodGet, base+"/hulls", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Len(t, fc.Features, 1)

	w = s.do(t, http.MethodGet, base+"/view", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"bounds"`)
}

func TestUploadMultipart(t *testing.T) {
	s := setupTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "march.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := s.do(t, http.MethodPost, "/api/datasets/upload", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var status models.DatasetStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "march.csv", status.Name)
	s.waitReady(t, status.ID)
}

func largeCSV() string {
	var b strings.Builder
	b.WriteString("lat,lng,actualPrice\n")
	for b.Len() < 4096 {
		b.WriteString("25.0330,121.5654,20000000\n")
	}
	return b.String()
}

func TestUploadTooLarge(t *testing.T) {
	t.Setenv("INGEST_MAX_UPLOAD_BYTES", "1024")
	s := setupTestServer(t)

	t.Run("Raw body", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/datasets/upload", strings.NewReader(largeCSV()), "text/csv")
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	})

	t.Run("Raw body without length", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/datasets/upload", strings.NewReader(largeCSV()))
		req.Header.Set("Content-Type", "text/csv")
		req.ContentLength = -1
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	})

	t.Run("Multipart", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "big.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(largeCSV()))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		w := s.do(t, http.MethodPost, "/api/datasets/upload", &buf, mw.FormDataContentType())
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	})

	w := s.do(t, http.MethodGet, "/api/datasets", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUploadRejectsInvalidCSV(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{"Missing columns", "lat,lng\n1,2\n", "actualPrice"},
		{"Bad number", "lat,lng,actualPrice\n25,121,lots\n", "line 2"},
		{"Empty body", "", "no data rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/datasets/upload", strings.NewReader(tt.body), "text/csv")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}

	w := s.do(t, http.MethodGet, "/api/datasets", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGenerateSample(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/datasets/sample", strings.NewReader(`{"seed": 42}`), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var status models.DatasetStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "sample-42", status.Name)
	assert.Equal(t, models.SourceSample, status.Source)
	assert.GreaterOrEqual(t, status.ExpectedCount, 70)
	s.waitReady(t, status.ID)

	w = s.do(t, http.MethodGet, "/api/datasets/"+status.ID+"/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.PropertyStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, status.ExpectedCount, stats.Count)
	assert.GreaterOrEqual(t, stats.MinPrice, 15000000.0)
}

func TestGenerateSample_SeedFromQuery(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/datasets/sample?seed=7", nil, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"name":"sample-7"`)

	w = s.do(t, http.MethodPost, "/api/datasets/sample?seed=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDatasetNotFound(t *testing.T) {
	s := setupTestServer(t)

	for _, path := range []string{"/api/datasets/missing", "/api/datasets/missing/summary"} {
		w := s.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	w := s.do(t, http.MethodDelete, "/api/datasets/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDatasetNotReady(t *testing.T) {
	s := setupTestServer(t)

	dataset, err := s.db.CreateDataset(context.Background(), "pending", models.SourceUpload, 5)
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/datasets/"+dataset.ID+"/summary", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":false`)
}

func TestDeleteDataset(t *testing.T) {
	s := setupTestServer(t)
	status := s.upload(t, sampleCSV)
	s.waitReady(t, status.ID)

	w := s.do(t, http.MethodDelete, "/api/datasets/"+status.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/datasets/"+status.ID+"/properties", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadQueueFullRemovesDataset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := test.NewNullLogger()

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.BatchProcessing.MaxBatchSize = 2

	gdb, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(gdb))
	db := database.NewDatabase(gdb, time.UTC, logger)
	t.Cleanup(func() { _ = db.Close() })

	// Room for one batch and no workers draining it.
	recordQueue := queue.NewRecordQueue(1, 1, logger)
	handler, err := NewHandler(db, recordQueue, cfg, logger)
	require.NoError(t, err)
	router := gin.New()
	SetupRoutes(router, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/datasets/upload", strings.NewReader(sampleCSV)).WithContext(ctx)
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Ingestion queue full, waiting for space" {
			warned = true
		}
	}
	assert.True(t, warned)

	datasets, err := db.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, datasets)
}
