package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"valuemap/server/internal/models"
)

var exportColumns = []string{
	ColLat, ColLng, ColActualPrice,
	ColEstimatedPrice, ColEstimatedPriceWithCommunity, ColEstimatedPriceWithCommunityAndTime,
	ColError, ColErrorWithCommunity, ColErrorWithCommunityAndTime,
	ColDate, ColSize, ColFloor,
	ColAddress, ColCity, ColDistrict, ColCommunity,
}

// WriteCSV writes records in the upload format accepted by Parser.
// Dates are written as RFC3339 so they keep their offset.
func WriteCSV(w io.Writer, records []*models.PropertyRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			formatNumber(r.Lat),
			formatNumber(r.Lng),
			formatNumber(r.ActualPrice),
			formatOptional(r.EstimatedPrice),
			formatOptional(r.EstimatedPriceWithCommunity),
			formatOptional(r.EstimatedPriceWithCommunityAndTime),
			formatOptional(r.Error),
			formatOptional(r.ErrorWithCommunity),
			formatOptional(r.ErrorWithCommunityAndTime),
			r.Date.Format(time.RFC3339),
			formatOptional(r.Size),
			"",
			r.Address,
			r.City,
			r.District,
			r.Community,
		}
		if r.Floor != nil {
			row[11] = strconv.Itoa(*r.Floor)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNumber(*v)
}
