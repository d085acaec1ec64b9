package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuemap/server/internal/models"
)

func TestComputeStats(t *testing.T) {
	records := []*models.PropertyRecord{
		{ActualPrice: 1000000, Error: models.Float(10)},
		{ActualPrice: 3000000, Error: models.Float(-20)},
		{ActualPrice: 2000000},
		{ActualPrice: 0, Error: models.Float(4)},
		nil,
	}

	stats := ComputeStats(records)

	assert.Equal(t, 4, stats.Count)
	assert.InDelta(t, -2, stats.AvgError, 1e-9)
	assert.InDelta(t, 34.0/3, stats.AvgAbsError, 1e-9)
	assert.Equal(t, 1000000.0, stats.MinPrice)
	assert.Equal(t, 3000000.0, stats.MaxPrice)
	assert.InDelta(t, 2000000, stats.AvgPrice, 1e-9)
	assert.GreaterOrEqual(t, stats.AvgAbsError, math.Abs(stats.AvgError))
}

func TestComputeStats_EmptyInput(t *testing.T) {
	assert.Equal(t, models.PropertyStats{}, ComputeStats(nil))
	assert.Equal(t, models.PropertyStats{}, ComputeStats([]*models.PropertyRecord{nil}))
}

func TestComputeStats_AllInvalidPrices(t *testing.T) {
	stats := ComputeStats([]*models.PropertyRecord{
		{ActualPrice: math.NaN()},
		{ActualPrice: -1},
	})

	assert.Equal(t, 2, stats.Count)
	assert.Zero(t, stats.MinPrice)
	assert.Zero(t, stats.MaxPrice)
	assert.Zero(t, stats.AvgPrice)
}

func TestSummarize(t *testing.T) {
	records := []*models.PropertyRecord{
		{ActualPrice: 100, EstimatedPrice: models.Float(110), Error: models.Float(10), Date: day("2024-01-10"), Community: "B", Floor: models.Int(2)},
		{ActualPrice: 200, EstimatedPrice: models.Float(180), Error: models.Float(-10), Date: day("2024-02-10"), Community: "A", Size: models.Float(25)},
		{ActualPrice: 300, Date: day("2024-02-11"), Community: "B"},
		{ActualPrice: 400, EstimatedPrice: models.Float(440), Error: models.Float(10), Date: day("2024-02-12")},
	}

	s := Summarize(records)

	assert.Equal(t, 4, s.Stats.Count)
	assert.Len(t, s.Monthly, 2)
	assert.Len(t, s.Floors, 1)
	assert.Len(t, s.Sizes, 1)
	assert.Equal(t, []string{"B", "A"}, s.Communities)
	require.Contains(t, s.CommunityMonthly, "B")
	assert.Len(t, s.CommunityMonthly["B"], 2)
	assert.Len(t, s.CommunityFloors["B"], 1)
	assert.Empty(t, s.CommunitySizes["B"])
	assert.Len(t, s.CommunitySizes["A"], 1)
	assert.Len(t, s.Scatter, 3)
	assert.Equal(t, 440.0, s.MaxEstimated)
}

func TestSummarize_EmptyInput(t *testing.T) {
	s := Summarize(nil)

	require.NotNil(t, s)
	assert.Equal(t, models.PropertyStats{}, s.Stats)
	assert.Empty(t, s.Monthly)
	assert.Empty(t, s.Communities)
	assert.NotNil(t, s.Communities)
	assert.Empty(t, s.Scatter)
	assert.Zero(t, s.MaxEstimated)
}

func TestGroupByMonthDesc(t *testing.T) {
	records := []*models.PropertyRecord{
		{Address: "a", Date: day("2024-01-03")},
		{Address: "b", Date: day("2024-03-01")},
		{Address: "c", Date: day("2024-01-20")},
		{Address: "undated"},
		{Address: "d", Date: day("2023-12-31")},
	}

	groups := GroupByMonthDesc(records)

	require.Len(t, groups, 3)
	assert.Equal(t, "2024-03", groups[0].YearMonth)
	assert.Equal(t, "2024-01", groups[1].YearMonth)
	assert.Equal(t, "2023-12", groups[2].YearMonth)
	require.Len(t, groups[1].Records, 2)
	assert.Equal(t, "c", groups[1].Records[0].Address)
	assert.Equal(t, "a", groups[1].Records[1].Address)
	assert.Equal(t, "a", records[0].Address)
	assert.NotNil(t, GroupByMonthDesc(nil))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       float64
		level     int
		direction string
	}{
		{"Exact estimate", 0, 0, DirectionOver},
		{"Small overestimate", 5, 0, DirectionOver},
		{"Small underestimate", -4.9, 0, DirectionUnder},
		{"Medium", 7.5, 1, DirectionOver},
		{"High underestimate", -12, 2, DirectionUnder},
		{"Severe", 15.01, 3, DirectionOver},
		{"Severe underestimate", -40, 3, DirectionUnder},
		{"NaN treated as zero", math.NaN(), 0, DirectionOver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			band := ClassifyError(tt.err)
			assert.Equal(t, tt.level, band.Level)
			assert.Equal(t, tt.direction, band.Direction)
			assert.Equal(t, bandColors[tt.level], band.Color)
		})
	}
}
