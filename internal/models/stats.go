package models

import "time"

// PropertyStats summarises a filtered record set.
type PropertyStats struct {
	AvgError    float64 `json:"avg_error"`
	AvgAbsError float64 `json:"avg_abs_error"`
	Count       int     `json:"count"`
	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
	AvgPrice    float64 `json:"avg_price"`
}

// ErrorMetrics holds the signed (MPE) and absolute (MAPE) mean error.
type ErrorMetrics struct {
	MPE     float64 `json:"mpe"`
	MAPE    float64 `json:"mape"`
	Samples int     `json:"samples"`
}

// MonthlySummary is one point of the price trend chart.
type MonthlySummary struct {
	YearMonth string `json:"year_month"`
	Count     int    `json:"count"`

	AvgActualPrice                        float64  `json:"avg_actual_price"`
	AvgEstimatedPrice                     float64  `json:"avg_estimated_price"`
	AvgEstimatedPriceWithCommunity        *float64 `json:"avg_estimated_price_with_community,omitempty"`
	AvgEstimatedPriceWithCommunityAndTime *float64 `json:"avg_estimated_price_with_community_and_time,omitempty"`

	ErrorMetrics
	WithCommunity        *ErrorMetrics `json:"with_community,omitempty"`
	WithCommunityAndTime *ErrorMetrics `json:"with_community_and_time,omitempty"`
}

// BucketSummary aggregates records falling into a floor or size band.
type BucketSummary struct {
	Label             string  `json:"label"`
	Start             float64 `json:"start"`
	Count             int     `json:"count"`
	AvgActualPrice    float64 `json:"avg_actual_price"`
	AvgEstimatedPrice float64 `json:"avg_estimated_price"`
	ErrorMetrics
}

// ScatterPoint is one dot of the estimated vs actual price chart.
type ScatterPoint struct {
	Estimated float64   `json:"estimated"`
	Actual    float64   `json:"actual"`
	Address   string    `json:"address,omitempty"`
	Floor     *int      `json:"floor,omitempty"`
	Size      *float64  `json:"size,omitempty"`
	Date      time.Time `json:"date"`
	Community string    `json:"community,omitempty"`
}

// MonthGroup lists the records of one calendar month.
type MonthGroup struct {
	YearMonth string            `json:"year_month"`
	Records   []*PropertyRecord `json:"records"`
}
