package pipeline

import (
	"math"

	"valuemap/server/internal/models"
)

// ComputeStats returns the headline statistics of a record set. Error means
// use the records that carry a base error, price figures the records with a
// positive price. Empty input yields the zero value.
func ComputeStats(records []*models.PropertyRecord) models.PropertyStats {
	var stats models.PropertyStats
	var errSum, absSum, priceSum float64
	var errN, priceN int

	for _, r := range records {
		if r == nil {
			continue
		}
		stats.Count++

		if r.Error != nil && models.IsFinite(*r.Error) {
			errSum += *r.Error
			absSum += math.Abs(*r.Error)
			errN++
		}

		if !r.HasValidPrice() {
			continue
		}
		if priceN == 0 || r.ActualPrice < stats.MinPrice {
			stats.MinPrice = r.ActualPrice
		}
		if priceN == 0 || r.ActualPrice > stats.MaxPrice {
			stats.MaxPrice = r.ActualPrice
		}
		priceSum += r.ActualPrice
		priceN++
	}

	if errN > 0 {
		stats.AvgError = errSum / float64(errN)
		stats.AvgAbsError = absSum / float64(errN)
	}
	if priceN > 0 {
		stats.AvgPrice = priceSum / float64(priceN)
	}
	return stats
}
