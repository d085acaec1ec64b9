package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"valuemap/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Batch is a slice of records bound for one dataset.
type Batch struct {
	DatasetID string
	Records   []*models.PropertyRecord
}

// RecordQueue represents an in-memory queue for record batches
type RecordQueue struct {
	items    chan Batch
	done     chan struct{}
	maxSize  int
	workers  int
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   *logrus.Logger
	handlers []func(Batch) error
}

// NewRecordQueue creates a queue holding up to bufferSize batches, drained
// by the given number of workers once started.
func NewRecordQueue(bufferSize, workers int, logger *logrus.Logger) *RecordQueue {
	if workers < 1 {
		workers = 1
	}
	return &RecordQueue{
		items:    make(chan Batch, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		workers:  workers,
		logger:   logger,
		handlers: make([]func(Batch) error, 0),
	}
}

// Push adds a batch without blocking
func (q *RecordQueue) Push(batch Batch) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- batch:
		q.logger.WithFields(logrus.Fields{
			"dataset_id": batch.DatasetID,
			"batch_size": len(batch.Records),
		}).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// PushContext waits for room in the queue until ctx is done or the queue closes.
func (q *RecordQueue) PushContext(ctx context.Context, batch Batch) error {
	if q.IsClosed() {
		return ErrQueueClosed
	}

	select {
	case q.items <- batch:
		q.logger.WithFields(logrus.Fields{
			"dataset_id": batch.DatasetID,
			"batch_size": len(batch.Records),
		}).Debug("Pushed batch to queue")
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe adds a handler function that will be called for each batch
func (q *RecordQueue) Subscribe(handler func(Batch) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue
func (q *RecordQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.process()
	}
}

func (q *RecordQueue) process() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case batch := <-q.items:
			q.processBatch(batch)
		}
	}
}

// processBatch sends the batch to all subscribed handlers
func (q *RecordQueue) processBatch(batch Batch) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).WithField("dataset_id", batch.DatasetID).Error("Handler failed to process batch")
		}
	}
}

// Close stops the workers and rejects further pushes. Batches still
// buffered are dropped; the items channel stays open so a racing
// PushContext cannot panic.
func (q *RecordQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
	if n := len(q.items); n > 0 {
		q.logger.WithField("pending_batches", n).Warn("Queue closed with pending batches")
	}
	return nil
}

// Len returns the current number of batches in the queue
func (q *RecordQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *RecordQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Chunk splits records into consecutive slices of at most size records.
func Chunk(records []*models.PropertyRecord, size int) [][]*models.PropertyRecord {
	if size < 1 {
		size = 1
	}
	chunks := make([][]*models.PropertyRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
