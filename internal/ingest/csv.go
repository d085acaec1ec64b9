package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"valuemap/server/internal/models"
)

var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrNoRows         = errors.New("no data rows")
)

// RowError reports a data row that cannot be turned into a record.
type RowError struct {
	Line   int
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
}

// Column names as written in the upload header.
const (
	ColLat                                = "lat"
	ColLng                                = "lng"
	ColActualPrice                        = "actualPrice"
	ColEstimatedPrice                     = "estimatedPrice"
	ColEstimatedPriceWithCommunity        = "estimatedPriceWithCommunity"
	ColEstimatedPriceWithCommunityAndTime = "estimatedPriceWithCommunityAndTime"
	ColError                              = "error"
	ColErrorWithCommunity                 = "errorWithCommunity"
	ColErrorWithCommunityAndTime          = "errorWithCommunityAndTime"
	ColDate                               = "date"
	ColSize                               = "size"
	ColFloor                              = "floor"
	ColAddress                            = "address"
	ColCity                               = "city"
	ColDistrict                           = "district"
	ColCommunity                          = "community"
)

var requiredColumns = []string{ColLat, ColLng, ColActualPrice}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// errorTolerance is the gap, in percentage points, above which a supplied
// error counts as disagreeing with the derived one.
const errorTolerance = 0.01

// Parser turns an uploaded CSV file into property records.
type Parser struct {
	// Location for dates without an offset. Defaults to UTC.
	Location *time.Location
	// Now stamps rows without a date. Defaults to time.Now.
	Now    func() time.Time
	Logger *logrus.Logger
}

// Parse reads a header row and every data row from r. Column names match
// case-insensitively and ignore underscores, so actual_price works too.
func (p *Parser) Parse(r io.Reader) ([]*models.PropertyRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := indexColumns(header)
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[headerKey(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var records []*models.PropertyRecord
	var disagreements int
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, &RowError{Line: parseErr.Line, Reason: parseErr.Err.Error()}
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		line, _ := reader.FieldPos(0)
		if isBlank(row) {
			continue
		}
		if len(row) != len(header) {
			return nil, &RowError{
				Line:   line,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(header), len(row)),
			}
		}

		rec, disagreed, err := p.parseRow(columns, row, line)
		if err != nil {
			return nil, err
		}
		disagreements += disagreed
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoRows
	}
	if disagreements > 0 && p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"rows":          len(records),
			"disagreements": disagreements,
		}).Warn("Supplied error values disagree with prices, using derived values")
	}
	return records, nil
}

type fields struct {
	columns map[string]int
	values  []string
}

func (r fields) get(name string) string {
	i, ok := r.columns[headerKey(name)]
	if !ok {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

func (p *Parser) parseRow(columns map[string]int, values []string, line int) (*models.PropertyRecord, int, error) {
	r := fields{columns: columns, values: values}

	required := make(map[string]float64, len(requiredColumns))
	for _, name := range requiredColumns {
		v, ok := parseNumber(r.get(name))
		if !ok {
			return nil, 0, &RowError{Line: line, Field: name, Reason: fmt.Sprintf("not a number: %q", r.get(name))}
		}
		required[name] = v
	}

	rec := &models.PropertyRecord{
		Lat:                                required[ColLat],
		Lng:                                required[ColLng],
		ActualPrice:                        required[ColActualPrice],
		EstimatedPrice:                     optionalNumber(r.get(ColEstimatedPrice)),
		EstimatedPriceWithCommunity:        optionalNumber(r.get(ColEstimatedPriceWithCommunity)),
		EstimatedPriceWithCommunityAndTime: optionalNumber(r.get(ColEstimatedPriceWithCommunityAndTime)),
		Date:                               p.parseDate(r.get(ColDate)),
		Size:                               parseSize(r.get(ColSize)),
		Floor:                              parseFloor(r.get(ColFloor)),
		Address:                            r.get(ColAddress),
		City:                               r.get(ColCity),
		District:                           r.get(ColDistrict),
		Community:                          r.get(ColCommunity),
	}
	if rec.EstimatedPrice == nil {
		rec.EstimatedPrice = models.Float(rec.ActualPrice)
	}

	var disagreed int
	var d bool
	rec.Error, d = resolveError(rec.EstimatedPrice, rec.ActualPrice, optionalNumber(r.get(ColError)))
	disagreed += boolToInt(d)
	rec.ErrorWithCommunity, d = resolveError(rec.EstimatedPriceWithCommunity, rec.ActualPrice, optionalNumber(r.get(ColErrorWithCommunity)))
	disagreed += boolToInt(d)
	rec.ErrorWithCommunityAndTime, d = resolveError(rec.EstimatedPriceWithCommunityAndTime, rec.ActualPrice, optionalNumber(r.get(ColErrorWithCommunityAndTime)))
	disagreed += boolToInt(d)

	return rec, disagreed, nil
}

// resolveError prefers the error derived from the prices. The supplied
// value is kept only when no derivation is possible.
func resolveError(estimate *float64, actual float64, supplied *float64) (*float64, bool) {
	if estimate == nil {
		return supplied, false
	}
	derived, ok := models.PercentError(*estimate, actual)
	if !ok {
		return supplied, false
	}
	disagree := supplied != nil && math.Abs(*supplied-derived) > errorTolerance
	return models.Float(derived), disagree
}

// parseDate falls back to Now for an empty cell and to the zero time for
// text it cannot read.
func (p *Parser) parseDate(s string) time.Time {
	if s == "" {
		if p.Now != nil {
			return p.Now()
		}
		return time.Now()
	}

	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	if isDigits(s) && len(s) >= 10 {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).In(loc)
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		key := headerKey(name)
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}
	return columns
}

func headerKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
}

// parseNumber accepts thousands separators, e.g. "15,000,000".
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !models.IsFinite(v) {
		return 0, false
	}
	return v, true
}

func optionalNumber(s string) *float64 {
	v, ok := parseNumber(s)
	if !ok {
		return nil
	}
	return models.Float(v)
}

// Floors and sizes beyond these bounds are treated as missing.
const (
	maxFloor = 1000
	maxSize  = 1000000
)

// parseFloor reads "12", "12F" or "12樓".
func parseFloor(s string) *int {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "樓")
	s = strings.TrimRight(s, "Ff")
	if s == "" {
		return nil
	}
	v, ok := parseNumber(s)
	if !ok || math.Abs(v) > maxFloor {
		return nil
	}
	return models.Int(int(math.Round(v)))
}

func parseSize(s string) *float64 {
	v, ok := parseNumber(s)
	if !ok || v < 0 || v > maxSize {
		return nil
	}
	return models.Float(v)
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
