package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"valuemap/server/internal/pipeline"
)

// Query parameters understood by every read endpoint.
const (
	paramStart    = "start"
	paramEnd      = "end"
	paramMinPrice = "minPrice"
	paramMaxPrice = "maxPrice"
	paramMinError = "minError"
	paramMaxError = "maxError"
	paramText     = "q"
)

// ParseCriteria builds filter criteria from query values. A range with only
// one side given gets the sentinel on the other; a value that cannot be
// parsed leaves its whole predicate inert.
func ParseCriteria(q url.Values, limits pipeline.Limits, loc *time.Location) pipeline.Criteria {
	return pipeline.Criteria{
		Time:  parseTimeRange(q.Get(paramStart), q.Get(paramEnd), loc),
		Price: parseRange(q.Get(paramMinPrice), q.Get(paramMaxPrice), 0, limits.PriceMax),
		Error: parseRange(q.Get(paramMinError), q.Get(paramMaxError), limits.ErrorMin, limits.ErrorMax),
		Text:  q.Get(paramText),
	}
}

func parseRange(minStr, maxStr string, minDefault, maxDefault float64) *pipeline.Range {
	minStr, maxStr = strings.TrimSpace(minStr), strings.TrimSpace(maxStr)
	if minStr == "" && maxStr == "" {
		return nil
	}
	r := &pipeline.Range{Min: minDefault, Max: maxDefault}
	if minStr != "" {
		v, err := strconv.ParseFloat(minStr, 64)
		if err != nil {
			return nil
		}
		r.Min = v
	}
	if maxStr != "" {
		v, err := strconv.ParseFloat(maxStr, 64)
		if err != nil {
			return nil
		}
		r.Max = v
	}
	return r
}

func parseTimeRange(startStr, endStr string, loc *time.Location) *pipeline.TimeRange {
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)
	if startStr == "" && endStr == "" {
		return nil
	}
	tr := &pipeline.TimeRange{}
	if startStr != "" {
		t, _, ok := parseInstant(startStr, loc)
		if !ok {
			return nil
		}
		tr.From = t
	}
	if endStr != "" {
		t, dateOnly, ok := parseInstant(endStr, loc)
		if !ok {
			return nil
		}
		if dateOnly {
			// a bare end date includes the whole day
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		tr.To = t
	}
	return tr
}

// parseInstant reads YYYY-MM-DD or epoch milliseconds.
func parseInstant(s string, loc *time.Location) (time.Time, bool, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), false, true
	}
	return time.Time{}, false, false
}
