package models

import "time"

const (
	SourceSample = "sample"
	SourceUpload = "upload"
)

// Dataset groups the records of one upload or one generated sample.
type Dataset struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Name          string    `json:"name"`
	Source        string    `json:"source"`
	ExpectedCount int       `json:"expected_count"`
	RecordCount   int       `json:"record_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Ready reports whether every parsed record has been stored.
func (d Dataset) Ready() bool {
	return d.RecordCount >= d.ExpectedCount
}

// DatasetStatus is the API view of a dataset.
type DatasetStatus struct {
	Dataset
	IsReady bool `json:"ready"`
}

// Status wraps d with its readiness flag.
func (d Dataset) Status() DatasetStatus {
	return DatasetStatus{Dataset: d, IsReady: d.Ready()}
}
