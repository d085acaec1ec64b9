package pipeline

import (
	"math"
	"strings"
	"time"

	"valuemap/server/internal/models"
)

// Range is an inclusive [Min, Max] numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// valid reports whether both bounds are usable numbers.
func (r *Range) valid() bool {
	return r != nil && !math.IsNaN(r.Min) && !math.IsNaN(r.Max)
}

// TimeRange is an inclusive interval of transaction dates. A zero bound is
// open on that side.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r *TimeRange) valid() bool {
	return r != nil && (!r.From.IsZero() || !r.To.IsZero())
}

// Criteria holds the predicates applied by Filter. A nil or invalid range
// leaves its predicate inert, as does an empty Text.
type Criteria struct {
	Time  *TimeRange `json:"time,omitempty"`
	Price *Range     `json:"price,omitempty"`
	Error *Range     `json:"error,omitempty"`
	Text  string     `json:"text,omitempty"`
}

// Limits are the slider extremes. A price upper bound at or above PriceMax,
// or an error bound at or beyond ErrorMin/ErrorMax, means "no limit".
type Limits struct {
	PriceMax float64 `json:"price_max"`
	ErrorMin float64 `json:"error_min"`
	ErrorMax float64 `json:"error_max"`
}

// Filter returns the records matching every active predicate, in input order.
// Input records are never modified.
func Filter(records []*models.PropertyRecord, c Criteria, l Limits) []*models.PropertyRecord {
	text := normalizeText(c.Text)

	filtered := make([]*models.PropertyRecord, 0, len(records))
	for _, r := range records {
		if matches(r, c, l, text) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func matches(r *models.PropertyRecord, c Criteria, l Limits, text string) bool {
	if r == nil {
		return false
	}
	return matchTime(r, c.Time) &&
		matchPrice(r, c.Price, l) &&
		matchError(r, c.Error, l) &&
		matchText(r, text)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func matchTime(r *models.PropertyRecord, tr *TimeRange) bool {
	if !tr.valid() {
		return true
	}
	if !r.HasDate() {
		return false
	}
	if !tr.From.IsZero() && r.Date.Before(tr.From) {
		return false
	}
	if !tr.To.IsZero() && r.Date.After(tr.To) {
		return false
	}
	return true
}

func matchPrice(r *models.PropertyRecord, pr *Range, l Limits) bool {
	if !pr.valid() {
		return true
	}
	if !models.IsFinite(r.ActualPrice) {
		return false
	}
	if r.ActualPrice < pr.Min {
		return false
	}
	if pr.Max < l.PriceMax && r.ActualPrice > pr.Max {
		return false
	}
	return true
}

func matchError(r *models.PropertyRecord, er *Range, l Limits) bool {
	if !er.valid() {
		return true
	}
	lowerOpen := er.Min <= l.ErrorMin
	upperOpen := er.Max >= l.ErrorMax
	if lowerOpen && upperOpen {
		return true
	}
	if r.Error == nil || !models.IsFinite(*r.Error) {
		return false
	}
	e := *r.Error
	if !lowerOpen && e < er.Min {
		return false
	}
	if !upperOpen && e > er.Max {
		return false
	}
	return true
}

func matchText(r *models.PropertyRecord, needle string) bool {
	if needle == "" {
		return true
	}
	for _, field := range []string{r.District, r.Address, r.Community} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
