package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"valuemap/server/internal/models"
)

var ErrDatasetNotFound = errors.New("dataset not found")

// Database stores datasets and their property records.
type Database struct {
	db     *gorm.DB
	loc    *time.Location
	logger *logrus.Logger
}

// Open connects to the configured driver. Supported drivers are "sqlite"
// (dsn is a file path) and "postgres" (dsn is a libpq connection string).
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn + "?_foreign_keys=on")
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		if err := singleWriter(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// sqlite allows one writer at a time.
func singleWriter(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// NewTestDB returns an isolated in-memory sqlite database.
func NewTestDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := singleWriter(db); err != nil {
		return nil, err
	}
	return db, nil
}

// MigrateSchema creates or updates the tables for all persisted models.
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Dataset{}, &models.PropertyRecord{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// NewDatabase wraps an open connection. Dates read back are converted to loc.
func NewDatabase(db *gorm.DB, loc *time.Location, logger *logrus.Logger) *Database {
	if loc == nil {
		loc = time.UTC
	}
	return &Database{db: db, loc: loc, logger: logger}
}

func (d *Database) DB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDataset registers a dataset that expects the given number of records.
func (d *Database) CreateDataset(ctx context.Context, name, source string, expected int) (*models.Dataset, error) {
	dataset := &models.Dataset{
		ID:            uuid.NewString(),
		Name:          name,
		Source:        source,
		ExpectedCount: expected,
		CreatedAt:     time.Now(),
	}
	if err := d.db.WithContext(ctx).Create(dataset).Error; err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}
	d.logger.WithFields(logrus.Fields{
		"dataset_id": dataset.ID,
		"source":     source,
		"expected":   expected,
	}).Info("Created dataset")
	return dataset, nil
}

// ListDatasets returns all datasets, newest first.
func (d *Database) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	var datasets []models.Dataset
	if err := d.db.WithContext(ctx).Order("created_at DESC").Find(&datasets).Error; err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return datasets, nil
}

func (d *Database) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	var dataset models.Dataset
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&dataset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return &dataset, nil
}

// DeleteDataset removes a dataset together with its records.
func (d *Database) DeleteDataset(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_id = ?", id).Delete(&models.PropertyRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete records: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Dataset{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete dataset: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrDatasetNotFound
		}
		return nil
	})
}

// StaleDatasets returns datasets created before cutoff that never received
// all of their records.
func (d *Database) StaleDatasets(ctx context.Context, cutoff time.Time) ([]models.Dataset, error) {
	var datasets []models.Dataset
	err := d.db.WithContext(ctx).
		Where("created_at < ? AND record_count < expected_count", cutoff).
		Order("created_at ASC").
		Find(&datasets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale datasets: %w", err)
	}
	return datasets, nil
}

// LoadRecords returns the records of a dataset in insertion order.
func (d *Database) LoadRecords(ctx context.Context, datasetID string) ([]*models.PropertyRecord, error) {
	var records []*models.PropertyRecord
	if err := d.db.WithContext(ctx).Where("dataset_id = ?", datasetID).Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	for _, r := range records {
		if r.HasDate() {
			r.Date = r.Date.In(d.loc)
		}
	}
	return records, nil
}

// InsertRecords stores a batch for one dataset and bumps its record count.
// Call it inside a transaction. The batch itself is left untouched, so a
// rolled-back attempt can be retried with the same records.
func InsertRecords(tx *gorm.DB, datasetID string, batch []*models.PropertyRecord) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]models.PropertyRecord, len(batch))
	for i, r := range batch {
		rows[i] = *r
		rows[i].ID = 0
		rows[i].DatasetID = datasetID
	}

	if err := tx.CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}

	result := tx.Model(&models.Dataset{}).
		Where("id = ?", datasetID).
		UpdateColumn("record_count", gorm.Expr("record_count + ?", len(batch)))
	if result.Error != nil {
		return fmt.Errorf("failed to update record count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDatasetNotFound
	}
	return nil
}
