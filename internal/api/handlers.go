package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"valuemap/server/config"
	"valuemap/server/internal/database"
	"valuemap/server/internal/geometry"
	"valuemap/server/internal/ingest"
	"valuemap/server/internal/models"
	"valuemap/server/internal/pipeline"
	"valuemap/server/internal/queue"
	"valuemap/server/internal/sample"
)

type Handler struct {
	db     *database.Database
	queue  *queue.RecordQueue
	config *config.Config
	loc    *time.Location
	logger *logrus.Logger
	now    func() time.Time
}

type SampleRequest struct {
	Seed *int64 `json:"seed"`
	Name string `json:"name"`
}

func NewHandler(db *database.Database, q *queue.RecordQueue, cfg *config.Config, logger *logrus.Logger) (*Handler, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Handler{
		db:     db,
		queue:  q,
		config: cfg,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"queue_length": h.queue.Len(),
	})
}

func (h *Handler) GetConfig(c *gin.Context) {
	variants := make([]string, len(models.Variants))
	for i, v := range models.Variants {
		variants[i] = v.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"limits":       h.config.Limits(),
		"cities":       config.SupportedCities,
		"city_names":   config.GetCityNames(),
		"default_city": config.DefaultCity(h.config.DefaultCity),
		"variants":     variants,
	})
}

func (h *Handler) ListDatasets(c *gin.Context) {
	datasets, err := h.db.ListDatasets(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list datasets")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list datasets"})
		return
	}

	statuses := make([]models.DatasetStatus, len(datasets))
	for i, d := range datasets {
		statuses[i] = d.Status()
	}
	c.JSON(http.StatusOK, statuses)
}

func (h *Handler) GetDataset(c *gin.Context) {
	dataset, ok := h.dataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dataset.Status())
}

func (h *Handler) DeleteDataset(c *gin.Context) {
	id := c.Param("id")
	err := h.db.DeleteDataset(c.Request.Context(), id)
	if errors.Is(err, database.ErrDatasetNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dataset not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("dataset_id", id).Error("Failed to delete dataset")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete dataset"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadDataset accepts a CSV file either as the multipart field "file" or
// as the raw request body. Records are stored in the background; the
// response carries the dataset so clients can poll until it is ready.
func (h *Handler) UploadDataset(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.Ingest.MaxUploadBytes)

	if c.Request.ContentLength > h.config.Ingest.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload too large"})
		return
	}

	body, name, err := h.uploadSource(c)
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer body.Close()

	parser := &ingest.Parser{Location: h.loc, Now: h.now, Logger: h.logger}
	records, err := parser.Parse(body)
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload too large"})
			return
		}
		h.logger.WithError(err).WithField("file", name).Warn("Rejected CSV upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.ingest(c, name, models.SourceUpload, records)
}

// GenerateSample creates a dataset from the synthetic generator. The seed
// is taken from the JSON body or the "seed" query parameter.
func (h *Handler) GenerateSample(c *gin.Context) {
	var req SampleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Seed == nil {
		if s := c.Query("seed"); s != "" {
			seed, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid seed"})
				return
			}
			req.Seed = &seed
		}
	}
	if req.Seed == nil {
		seed := h.now().UnixNano()
		req.Seed = &seed
	}
	if req.Name == "" {
		req.Name = fmt.Sprintf("sample-%d", *req.Seed)
	}

	records := sample.NewGenerator(*req.Seed, h.now().In(h.loc), config.SupportedCities).Generate()
	h.logger.WithFields(logrus.Fields{
		"seed":    *req.Seed,
		"records": len(records),
	}).Info("Generated sample dataset")

	h.ingest(c, req.Name, models.SourceSample, records)
}

func (h *Handler) GetProperties(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) GetSummary(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, pipeline.Summarize(records))
}

func (h *Handler) GetStats(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, pipeline.ComputeStats(records))
}

func (h *Handler) GetMonthlyTrend(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, pipeline.AggregateByMonth(records))
}

func (h *Handler) GetFloorBuckets(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, pipeline.AggregateByFloorBucket(records))
}

func (h *Handler) GetSizeBuckets(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, pipeline.AggregateBySizeBucket(records))
}

func (h *Handler) GetListings(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, pipeline.GroupByMonthDesc(records))
}

func (h *Handler) GetGeoJSON(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, geometry.FeatureCollection(records))
}

func (h *Handler) GetHulls(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, geometry.CommunityHulls(records))
}

func (h *Handler) GetView(c *gin.Context) {
	records, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, geometry.Bounds(records, config.DefaultCity(h.config.DefaultCity)))
}

func (h *Handler) uploadSource(c *gin.Context) (io.ReadCloser, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("missing file field: %w", err)
		}
		f, err := header.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open upload: %w", err)
		}
		return f, header.Filename, nil
	}

	name := c.Query("name")
	if name == "" {
		name = fmt.Sprintf("upload-%s", h.now().In(h.loc).Format("20060102-150405"))
	}
	return c.Request.Body, name, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// ingest registers a dataset and queues its records in batches.
func (h *Handler) ingest(c *gin.Context, name, source string, records []*models.PropertyRecord) {
	ctx := c.Request.Context()
	dataset, err := h.db.CreateDataset(ctx, name, source, len(records))
	if err != nil {
		h.logger.WithError(err).Error("Failed to create dataset")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create dataset"})
		return
	}

	if err := h.enqueue(ctx, dataset.ID, records); err != nil {
		h.logger.WithError(err).WithField("dataset_id", dataset.ID).Error("Failed to queue records")
		if delErr := h.db.DeleteDataset(context.Background(), dataset.ID); delErr != nil {
			h.logger.WithError(delErr).WithField("dataset_id", dataset.ID).Error("Failed to remove incomplete dataset")
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ingestion queue unavailable"})
		return
	}

	c.JSON(http.StatusAccepted, dataset.Status())
}

func (h *Handler) enqueue(ctx context.Context, datasetID string, records []*models.PropertyRecord) error {
	waited := false
	for _, chunk := range queue.Chunk(records, h.config.BatchProcessing.MaxBatchSize) {
		batch := queue.Batch{DatasetID: datasetID, Records: chunk}
		err := h.queue.Push(batch)
		if errors.Is(err, queue.ErrQueueFull) {
			if !waited {
				h.logger.WithFields(logrus.Fields{
					"dataset_id": datasetID,
					"queued":     h.queue.Len(),
				}).Warn("Ingestion queue full, waiting for space")
				waited = true
			}
			err = h.queue.PushContext(ctx, batch)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) dataset(c *gin.Context) (*models.Dataset, bool) {
	id := c.Param("id")
	dataset, err := h.db.GetDataset(c.Request.Context(), id)
	if errors.Is(err, database.ErrDatasetNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dataset not found"})
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).WithField("dataset_id", id).Error("Failed to get dataset")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get dataset"})
		return nil, false
	}
	return dataset, true
}

// filtered loads a ready dataset and applies the query filters.
func (h *Handler) filtered(c *gin.Context) ([]*models.PropertyRecord, bool) {
	dataset, ok := h.dataset(c)
	if !ok {
		return nil, false
	}
	if !dataset.Ready() {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Dataset is still being ingested",
			"dataset": dataset.Status(),
		})
		return nil, false
	}

	records, err := h.db.LoadRecords(c.Request.Context(), dataset.ID)
	if err != nil {
		h.logger.WithError(err).WithField("dataset_id", dataset.ID).Error("Failed to load records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load records"})
		return nil, false
	}

	criteria := ParseCriteria(c.Request.URL.Query(), h.config.Limits(), h.loc)
	return pipeline.Filter(records, criteria, h.config.Limits()), true
}
