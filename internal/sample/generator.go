package sample

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"valuemap/server/config"
	"valuemap/server/internal/models"
)

const (
	minPointsPerCity = 10
	maxPointsPerCity = 30 // exclusive
	jitterDegrees    = 0.05
	minPrice         = 15000000
	priceSpan        = 35000000
	maxErrorPct      = 20
	historyMonths    = 6
)

var districts = map[string][]string{
	"taipei":    {"大安區", "信義區", "中山區", "松山區", "內湖區"},
	"taichung":  {"西屯區", "南屯區", "北屯區", "西區"},
	"kaohsiung": {"苓雅區", "前鎮區", "鼓山區", "左營區"},
	"hsinchu":   {"東區", "北區", "香山區"},
	"tainan":    {"東區", "中西區", "安平區", "永康區"},
	"keelung":   {"仁愛區", "信義區", "中正區"},
	"taoyuan":   {"桃園區", "中壢區", "龜山區", "蘆竹區"},
}

var communitySuffixes = []string{"華廈", "花園", "公寓", "大樓", "新城"}

// Generator produces a reproducible synthetic dataset around the given cities.
type Generator struct {
	rng    *rand.Rand
	now    time.Time
	cities []config.City
}

// NewGenerator returns a generator whose output depends only on its arguments.
func NewGenerator(seed int64, now time.Time, cities []config.City) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		now:    now,
		cities: cities,
	}
}

// Generate returns 10 to 29 records per city.
func (g *Generator) Generate() []*models.PropertyRecord {
	var records []*models.PropertyRecord
	for _, city := range g.cities {
		if len(city.Center) < 2 {
			continue
		}
		count := minPointsPerCity + g.rng.Intn(maxPointsPerCity-minPointsPerCity)
		communities := g.communities(city)
		for i := 0; i < count; i++ {
			records = append(records, g.record(city, communities))
		}
	}
	return records
}

func (g *Generator) communities(city config.City) []string {
	n := 2 + g.rng.Intn(3)
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%s %d", cityLabel(city), communitySuffixes[g.rng.Intn(len(communitySuffixes))], i+1)
	}
	return names
}

func (g *Generator) record(city config.City, communities []string) *models.PropertyRecord {
	actual := math.Floor(minPrice + g.rng.Float64()*priceSpan)
	errPct := g.rng.Float64() * maxErrorPct
	estimate := actual * (1 + errPct/100)

	// The community models are scattered around the base error.
	withCommunity := actual * (1 + (errPct+g.rng.NormFloat64()*3)/100)
	withTime := actual * (1 + (errPct/2+g.rng.NormFloat64()*2)/100)

	r := &models.PropertyRecord{
		Lat:                                city.Center[0] + (g.rng.Float64()-0.5)*jitterDegrees,
		Lng:                                city.Center[1] + (g.rng.Float64()-0.5)*jitterDegrees,
		ActualPrice:                        actual,
		EstimatedPrice:                     models.Float(estimate),
		EstimatedPriceWithCommunity:        models.Float(withCommunity),
		EstimatedPriceWithCommunityAndTime: models.Float(withTime),
		Date:                               g.date(),
		Size:                               models.Float(math.Round((15+g.rng.Float64()*60)*10) / 10),
		Floor:                              models.Int(1 + g.rng.Intn(30)),
		City:                               city.Name,
		Community:                          communities[g.rng.Intn(len(communities))],
	}
	if names := districts[city.Name]; len(names) > 0 {
		r.District = names[g.rng.Intn(len(names))]
		r.Address = fmt.Sprintf("%s%s%d號", cityLabel(city), r.District, 1+g.rng.Intn(300))
	}

	r.Error, _ = percentError(estimate, actual)
	r.ErrorWithCommunity, _ = percentError(withCommunity, actual)
	r.ErrorWithCommunityAndTime, _ = percentError(withTime, actual)
	return r
}

// date is uniform over the historyMonths months before now.
func (g *Generator) date() time.Time {
	start := g.now.AddDate(0, -historyMonths, 0)
	span := g.now.Sub(start)
	return start.Add(time.Duration(g.rng.Int63n(int64(span) + 1)))
}

func percentError(estimate, actual float64) (*float64, bool) {
	e, ok := models.PercentError(estimate, actual)
	if !ok {
		return nil, false
	}
	return models.Float(e), true
}

func cityLabel(city config.City) string {
	if city.DisplayName != "" {
		return city.DisplayName
	}
	return city.Name
}
