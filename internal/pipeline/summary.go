package pipeline

import (
	"sort"

	"valuemap/server/internal/models"
)

// Summary bundles everything the dashboard derives from one filtered set.
// Build it once with Summarize and hand the pointer to every consumer.
type Summary struct {
	Stats   models.PropertyStats    `json:"stats"`
	Monthly []models.MonthlySummary `json:"monthly"`
	Floors  []models.BucketSummary  `json:"floors"`
	Sizes   []models.BucketSummary  `json:"sizes"`

	Communities      []string                           `json:"communities"`
	CommunityMonthly map[string][]models.MonthlySummary `json:"community_monthly"`
	CommunityFloors  map[string][]models.BucketSummary  `json:"community_floors"`
	CommunitySizes   map[string][]models.BucketSummary  `json:"community_sizes"`

	Scatter      []models.ScatterPoint `json:"scatter"`
	MaxEstimated float64               `json:"max_estimated"`
}

// Summarize derives every aggregate from records. It does not filter.
func Summarize(records []*models.PropertyRecord) *Summary {
	s := &Summary{
		Stats:            ComputeStats(records),
		Monthly:          AggregateByMonth(records),
		Floors:           AggregateByFloorBucket(records),
		Sizes:            AggregateBySizeBucket(records),
		CommunityMonthly: make(map[string][]models.MonthlySummary),
		CommunityFloors:  make(map[string][]models.BucketSummary),
		CommunitySizes:   make(map[string][]models.BucketSummary),
	}

	communities, groups := GroupByCommunity(records)
	s.Communities = communities
	for _, name := range communities {
		s.CommunityMonthly[name] = AggregateByMonth(groups[name])
		s.CommunityFloors[name] = AggregateByFloorBucket(groups[name])
		s.CommunitySizes[name] = AggregateBySizeBucket(groups[name])
	}

	s.Scatter, s.MaxEstimated = scatter(records)
	return s
}

// GroupByCommunity splits records by community name. Names are returned in
// order of first appearance; records without a community are skipped.
func GroupByCommunity(records []*models.PropertyRecord) ([]string, map[string][]*models.PropertyRecord) {
	names := make([]string, 0)
	groups := make(map[string][]*models.PropertyRecord)
	for _, r := range records {
		if r == nil || r.Community == "" {
			continue
		}
		if _, ok := groups[r.Community]; !ok {
			names = append(names, r.Community)
		}
		groups[r.Community] = append(groups[r.Community], r)
	}
	return names, groups
}

func scatter(records []*models.PropertyRecord) ([]models.ScatterPoint, float64) {
	points := make([]models.ScatterPoint, 0, len(records))
	var maxEstimated float64
	for _, r := range records {
		if r == nil || r.EstimatedPrice == nil || !models.IsFinite(*r.EstimatedPrice) || !r.HasValidPrice() {
			continue
		}
		points = append(points, models.ScatterPoint{
			Estimated: *r.EstimatedPrice,
			Actual:    r.ActualPrice,
			Address:   r.Address,
			Floor:     r.Floor,
			Size:      r.Size,
			Date:      r.Date,
			Community: r.Community,
		})
		if *r.EstimatedPrice > maxEstimated {
			maxEstimated = *r.EstimatedPrice
		}
	}
	return points, maxEstimated
}

// GroupByMonthDesc lists records per month, newest month first and newest
// record first within a month. Records without a date are left out.
func GroupByMonthDesc(records []*models.PropertyRecord) []models.MonthGroup {
	index := make(map[string]int)
	var groups []models.MonthGroup
	for _, r := range records {
		key, ok := MonthKey(r)
		if !ok {
			continue
		}
		i, exists := index[key]
		if !exists {
			i = len(groups)
			index[key] = i
			groups = append(groups, models.MonthGroup{YearMonth: key})
		}
		groups[i].Records = append(groups[i].Records, r)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].YearMonth > groups[j].YearMonth
	})
	for _, g := range groups {
		sort.SliceStable(g.Records, func(i, j int) bool {
			return g.Records[i].Date.After(g.Records[j].Date)
		})
	}
	if groups == nil {
		groups = []models.MonthGroup{}
	}
	return groups
}
