package models

import (
	"math"
	"time"
)

// PropertyRecord is a single transaction with its model valuations.
type PropertyRecord struct {
	ID        uint   `gorm:"primaryKey" json:"id,omitempty"`
	DatasetID string `gorm:"index;size:36" json:"dataset_id,omitempty"`

	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	ActualPrice float64 `json:"actual_price"`

	EstimatedPrice                     *float64 `json:"estimated_price,omitempty"`
	EstimatedPriceWithCommunity        *float64 `json:"estimated_price_with_community,omitempty"`
	EstimatedPriceWithCommunityAndTime *float64 `json:"estimated_price_with_community_and_time,omitempty"`

	Error                     *float64 `gorm:"column:error_pct" json:"error,omitempty"`
	ErrorWithCommunity        *float64 `gorm:"column:error_pct_with_community" json:"error_with_community,omitempty"`
	ErrorWithCommunityAndTime *float64 `gorm:"column:error_pct_with_community_and_time" json:"error_with_community_and_time,omitempty"`

	Date      time.Time `gorm:"index" json:"date"`
	Size      *float64  `json:"size,omitempty"`
	Floor     *int      `json:"floor,omitempty"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	District  string    `json:"district,omitempty"`
	Community string    `gorm:"index" json:"community,omitempty"`
}

// Variant selects which valuation model a metric refers to.
type Variant int

const (
	VariantBase Variant = iota
	VariantCommunity
	VariantCommunityTime
)

// Variants lists every valuation variant in display order.
var Variants = []Variant{VariantBase, VariantCommunity, VariantCommunityTime}

// String returns the string representation of a Variant
func (v Variant) String() string {
	switch v {
	case VariantBase:
		return "base"
	case VariantCommunity:
		return "community"
	case VariantCommunityTime:
		return "community_time"
	default:
		return "unknown"
	}
}

// EstimateFor returns the estimated price of the given variant, or nil.
func (p *PropertyRecord) EstimateFor(v Variant) *float64 {
	switch v {
	case VariantBase:
		return p.EstimatedPrice
	case VariantCommunity:
		return p.EstimatedPriceWithCommunity
	case VariantCommunityTime:
		return p.EstimatedPriceWithCommunityAndTime
	}
	return nil
}

// ErrorFor returns the percentage error of the given variant, or nil.
func (p *PropertyRecord) ErrorFor(v Variant) *float64 {
	switch v {
	case VariantBase:
		return p.Error
	case VariantCommunity:
		return p.ErrorWithCommunity
	case VariantCommunityTime:
		return p.ErrorWithCommunityAndTime
	}
	return nil
}

// HasValidPrice reports whether the actual price can be used in statistics.
func (p *PropertyRecord) HasValidPrice() bool {
	return IsFinite(p.ActualPrice) && p.ActualPrice > 0
}

// HasDate reports whether the record carries a usable transaction date.
func (p *PropertyRecord) HasDate() bool {
	return !p.Date.IsZero()
}

// PercentError returns (estimated - actual) / actual * 100. The boolean is
// false when actual is not a positive finite number.
func PercentError(estimated, actual float64) (float64, bool) {
	if !IsFinite(estimated) || !IsFinite(actual) || actual <= 0 {
		return 0, false
	}
	return (estimated - actual) / actual * 100, true
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
