package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"valuemap/server/internal/database"
	"valuemap/server/internal/models"
)

// DatasetStore is the part of the database the sweeper needs.
type DatasetStore interface {
	StaleDatasets(ctx context.Context, cutoff time.Time) ([]models.Dataset, error)
	DeleteDataset(ctx context.Context, id string) error
}

// Scheduler periodically removes datasets whose ingestion never completed,
// for example because a batch was dropped after exhausting its retries.
type Scheduler struct {
	store      DatasetStore
	logger     *logrus.Logger
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	jobMutex   sync.Mutex // Ensures sweeps never overlap
}

func NewScheduler(store DatasetStore, interval, staleAfter time.Duration, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		store:      store,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopChan
		cancel()
	}()

	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	removed, err := s.Sweep(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).Error("Dataset sweep failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Dataset sweep completed")
	}
}

// Sweep deletes every incomplete dataset older than the stale age and
// returns how many were removed. A dataset deleted concurrently is skipped.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.store.StaleDatasets(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, d := range stale {
		err := s.store.DeleteDataset(ctx, d.ID)
		if errors.Is(err, database.ErrDatasetNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		removed++
		s.logger.WithFields(logrus.Fields{
			"dataset_id": d.ID,
			"name":       d.Name,
			"expected":   d.ExpectedCount,
			"stored":     d.RecordCount,
			"created_at": d.CreatedAt,
		}).Warn("Removed incomplete dataset")
	}
	return removed, nil
}

// Stop gracefully stops the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
