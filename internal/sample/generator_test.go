package sample

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuemap/server/config"
	"valuemap/server/internal/models"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestGenerate_SameSeedSameOutput(t *testing.T) {
	a := NewGenerator(42, now, config.SupportedCities).Generate()
	b := NewGenerator(42, now, config.SupportedCities).Generate()

	assert.Equal(t, a, b)

	c := NewGenerator(43, now, config.SupportedCities).Generate()
	assert.NotEqual(t, a, c)
}

func TestGenerate_Bounds(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		records := NewGenerator(seed, now, config.SupportedCities).Generate()

		perCity := make(map[string]int)
		for _, r := range records {
			perCity[r.City]++

			city := config.GetCityByName(r.City)
			require.NotNil(t, city)
			assert.LessOrEqual(t, math.Abs(r.Lat-city.Center[0]), 0.025+1e-9)
			assert.LessOrEqual(t, math.Abs(r.Lng-city.Center[1]), 0.025+1e-9)

			assert.GreaterOrEqual(t, r.ActualPrice, 15000000.0)
			assert.Less(t, r.ActualPrice, 50000000.0)

			require.NotNil(t, r.Error)
			assert.GreaterOrEqual(t, *r.Error, 0.0)
			assert.Less(t, *r.Error, 20.0+1e-9)
			require.NotNil(t, r.EstimatedPrice)
			derived, ok := models.PercentError(*r.EstimatedPrice, r.ActualPrice)
			require.True(t, ok)
			assert.InDelta(t, derived, *r.Error, 1e-9)

			assert.False(t, r.Date.Before(now.AddDate(0, -6, 0)))
			assert.False(t, r.Date.After(now))

			require.NotNil(t, r.Floor)
			assert.GreaterOrEqual(t, *r.Floor, 1)
			require.NotNil(t, r.Size)
			assert.Greater(t, *r.Size, 0.0)
			assert.NotEmpty(t, r.Community)
			assert.NotEmpty(t, r.District)
			assert.NotNil(t, r.ErrorWithCommunity)
			assert.NotNil(t, r.ErrorWithCommunityAndTime)
		}

		assert.Len(t, perCity, len(config.SupportedCities))
		for name, n := range perCity {
			assert.GreaterOrEqual(t, n, 10, name)
			assert.LessOrEqual(t, n, 29, name)
		}
	}
}

func TestGenerate_SkipsCitiesWithoutCenter(t *testing.T) {
	cities := []config.City{{Name: "nowhere"}, config.DefaultCity("keelung")}

	records := NewGenerator(7, now, cities).Generate()

	require.NotEmpty(t, records)
	for _, r := range records {
		assert.Equal(t, "keelung", r.City)
	}
}

func TestGenerate_NoCities(t *testing.T) {
	assert.Empty(t, NewGenerator(1, now, nil).Generate())
}
