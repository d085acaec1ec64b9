package pipeline

import (
	"fmt"
	"math"
	"sort"

	"valuemap/server/internal/models"
)

const (
	floorBucketWidth = 5
	sizeBucketWidth  = 10
)

// maxBucketSize keeps size bucket edges inside the int32 range.
const maxBucketSize = math.MaxInt32 - sizeBucketWidth

// accumulator collects running sums for one bucket. Each statistic only
// counts the records that carry a usable value for it.
type accumulator struct {
	count int

	priceSum float64
	priceN   int

	estimateSum [3]float64
	estimateN   [3]int

	errorSum    [3]float64
	absErrorSum [3]float64
	errorN      [3]int
}

func (a *accumulator) add(r *models.PropertyRecord) {
	a.count++
	if r.HasValidPrice() {
		a.priceSum += r.ActualPrice
		a.priceN++
	}
	for i, v := range models.Variants {
		if est := r.EstimateFor(v); est != nil && models.IsFinite(*est) {
			a.estimateSum[i] += *est
			a.estimateN[i]++
		}
		if e := r.ErrorFor(v); e != nil && models.IsFinite(*e) {
			a.errorSum[i] += *e
			a.absErrorSum[i] += math.Abs(*e)
			a.errorN[i]++
		}
	}
}

func (a *accumulator) avgPrice() float64 {
	if a.priceN == 0 {
		return 0
	}
	return a.priceSum / float64(a.priceN)
}

func (a *accumulator) avgEstimate(v models.Variant) (float64, bool) {
	if a.estimateN[v] == 0 {
		return 0, false
	}
	return a.estimateSum[v] / float64(a.estimateN[v]), true
}

func (a *accumulator) metrics(v models.Variant) (models.ErrorMetrics, bool) {
	n := a.errorN[v]
	if n == 0 {
		return models.ErrorMetrics{}, false
	}
	return models.ErrorMetrics{
		MPE:     a.errorSum[v] / float64(n),
		MAPE:    a.absErrorSum[v] / float64(n),
		Samples: n,
	}, true
}

func (a *accumulator) monthly(key string) models.MonthlySummary {
	s := models.MonthlySummary{
		YearMonth:      key,
		Count:          a.count,
		AvgActualPrice: a.avgPrice(),
	}
	s.AvgEstimatedPrice, _ = a.avgEstimate(models.VariantBase)
	if avg, ok := a.avgEstimate(models.VariantCommunity); ok {
		s.AvgEstimatedPriceWithCommunity = &avg
	}
	if avg, ok := a.avgEstimate(models.VariantCommunityTime); ok {
		s.AvgEstimatedPriceWithCommunityAndTime = &avg
	}
	s.ErrorMetrics, _ = a.metrics(models.VariantBase)
	if m, ok := a.metrics(models.VariantCommunity); ok {
		s.WithCommunity = &m
	}
	if m, ok := a.metrics(models.VariantCommunityTime); ok {
		s.WithCommunityAndTime = &m
	}
	return s
}

func (a *accumulator) bucket(label string, start float64) models.BucketSummary {
	b := models.BucketSummary{
		Label:          label,
		Start:          start,
		Count:          a.count,
		AvgActualPrice: a.avgPrice(),
	}
	b.AvgEstimatedPrice, _ = a.avgEstimate(models.VariantBase)
	b.ErrorMetrics, _ = a.metrics(models.VariantBase)
	return b
}

// MonthKey returns the YYYY-MM bucket key of a record, in the location the
// date was parsed in.
func MonthKey(r *models.PropertyRecord) (string, bool) {
	if r == nil || !r.HasDate() {
		return "", false
	}
	return r.Date.Format("2006-01"), true
}

// AggregateByMonth groups records by transaction month, oldest first.
// Records without a date are left out.
func AggregateByMonth(records []*models.PropertyRecord) []models.MonthlySummary {
	groups := make(map[string]*accumulator)
	for _, r := range records {
		key, ok := MonthKey(r)
		if !ok {
			continue
		}
		acc, exists := groups[key]
		if !exists {
			acc = &accumulator{}
			groups[key] = acc
		}
		acc.add(r)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]models.MonthlySummary, 0, len(keys))
	for _, k := range keys {
		result = append(result, groups[k].monthly(k))
	}
	return result
}

// FloorBucket returns the first floor of the 5-floor band containing floor
// and its label, e.g. 7 -> (6, "6-10樓").
func FloorBucket(floor int) (int, string) {
	start := floorDiv(floor-1, floorBucketWidth)*floorBucketWidth + 1
	return start, fmt.Sprintf("%d-%d樓", start, start+floorBucketWidth-1)
}

// SizeBucket returns the lower edge of the 10-unit band containing size and
// its label, e.g. 34.5 -> (30, "30-40坪").
func SizeBucket(size float64) (int, string) {
	start := int(math.Floor(size/sizeBucketWidth)) * sizeBucketWidth
	return start, fmt.Sprintf("%d-%d坪", start, start+sizeBucketWidth)
}

// AggregateByFloorBucket groups records into 5-floor bands, lowest first.
// Records without a floor are left out.
func AggregateByFloorBucket(records []*models.PropertyRecord) []models.BucketSummary {
	return aggregateBuckets(records, func(r *models.PropertyRecord) (int, string, bool) {
		if r.Floor == nil {
			return 0, "", false
		}
		start, label := FloorBucket(*r.Floor)
		return start, label, true
	})
}

// AggregateBySizeBucket groups records into 10-unit floor-area bands,
// smallest first. Records without a usable size, or with one too large to
// label, are left out.
func AggregateBySizeBucket(records []*models.PropertyRecord) []models.BucketSummary {
	return aggregateBuckets(records, func(r *models.PropertyRecord) (int, string, bool) {
		if r.Size == nil || !models.IsFinite(*r.Size) || *r.Size < 0 || *r.Size >= maxBucketSize {
			return 0, "", false
		}
		start, label := SizeBucket(*r.Size)
		return start, label, true
	})
}

type bucketFunc func(r *models.PropertyRecord) (start int, label string, ok bool)

func aggregateBuckets(records []*models.PropertyRecord, keyOf bucketFunc) []models.BucketSummary {
	groups := make(map[int]*accumulator)
	labels := make(map[int]string)
	for _, r := range records {
		if r == nil {
			continue
		}
		start, label, ok := keyOf(r)
		if !ok {
			continue
		}
		acc, exists := groups[start]
		if !exists {
			acc = &accumulator{}
			groups[start] = acc
			labels[start] = label
		}
		acc.add(r)
	}

	starts := make([]int, 0, len(groups))
	for s := range groups {
		starts = append(starts, s)
	}
	sort.Ints(starts)

	result := make([]models.BucketSummary, 0, len(starts))
	for _, s := range starts {
		result = append(result, groups[s].bucket(labels[s], float64(s)))
	}
	return result
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
