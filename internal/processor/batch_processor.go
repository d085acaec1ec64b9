package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"valuemap/server/config"
	"valuemap/server/internal/database"
	"valuemap/server/internal/queue"
)

// Transactor runs fc inside a database transaction. *gorm.DB satisfies it.
type Transactor interface {
	Transaction(fc func(*gorm.DB) error, opts ...*sql.TxOptions) error
}

// BatchProcessor handles the processing of record batches
type BatchProcessor struct {
	db     Transactor
	logger *logrus.Logger
	config *config.Config
	queue  *queue.RecordQueue
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(db Transactor, queue *queue.RecordQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:     db,
		queue:  queue,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the queue and starts its workers
func (p *BatchProcessor) Start() {
	p.queue.Subscribe(p.processBatch)
	p.queue.Start()
}

// Stop gracefully shuts down the processor. Retries waiting on their delay
// are abandoned.
func (p *BatchProcessor) Stop() {
	p.cancel()
	_ = p.queue.Close()
}

// processBatch handles a single batch of records with transaction and retry logic
func (p *BatchProcessor) processBatch(batch queue.Batch) error {
	log := p.logger.WithFields(logrus.Fields{
		"dataset_id": batch.DatasetID,
		"batch_size": len(batch.Records),
	})

	retries := max(p.config.BatchProcessing.MaxRetries, 0)

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			log.Infof("Retrying batch processing, attempt %d of %d", attempt, retries)
			select {
			case <-p.ctx.Done():
				return fmt.Errorf("batch processing stopped: %w", err)
			case <-time.After(p.config.RetryDelay()):
			}
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.InsertRecords(tx, batch.DatasetID, batch.Records); err != nil {
				return fmt.Errorf("failed to insert records batch: %w", err)
			}
			return nil
		})

		if err == nil {
			log.Info("Successfully processed batch")
			return nil
		}
		if errors.Is(err, database.ErrDatasetNotFound) {
			log.Warn("Dataset removed before batch was stored, dropping batch")
			return err
		}

		log.WithError(err).Error("Batch processing failed")
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", retries+1, err)
}
