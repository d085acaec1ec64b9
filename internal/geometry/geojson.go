package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"valuemap/server/config"
	"valuemap/server/internal/models"
	"valuemap/server/internal/pipeline"
)

// View is the initial map viewport. Center is [lat, lng] like config.City;
// Bounds is [[south, west], [north, east]] and absent for an empty set.
type View struct {
	Center    []float64      `json:"center"`
	ZoomLevel int            `json:"zoom_level"`
	Bounds    *[2][2]float64 `json:"bounds,omitempty"`
}

// FeatureCollection renders one point feature per record with usable
// coordinates, carrying what a marker popup shows.
func FeatureCollection(records []*models.PropertyRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		p, ok := location(r)
		if !ok {
			continue
		}

		feature := geojson.NewFeature(p)
		props := geojson.Properties{
			"actual_price": r.ActualPrice,
		}
		if r.EstimatedPrice != nil {
			props["estimated_price"] = *r.EstimatedPrice
		}
		if r.Error != nil && models.IsFinite(*r.Error) {
			band := pipeline.ClassifyError(*r.Error)
			props["error"] = *r.Error
			props["band"] = band.Level
			props["direction"] = band.Direction
			props["color"] = band.Color
		}
		if r.HasDate() {
			props["date"] = r.Date.Format("2006-01-02")
		}
		if r.Floor != nil {
			props["floor"] = *r.Floor
		}
		if r.Size != nil {
			props["size"] = *r.Size
		}
		for key, value := range map[string]string{
			"address":   r.Address,
			"city":      r.City,
			"district":  r.District,
			"community": r.Community,
		} {
			if value != "" {
				props[key] = value
			}
		}
		feature.Properties = props
		fc.Append(feature)
	}
	return fc
}

// Bounds frames every located record. With none it centres on fallback.
func Bounds(records []*models.PropertyRecord, fallback config.City) View {
	var mp orb.MultiPoint
	for _, r := range records {
		if p, ok := location(r); ok {
			mp = append(mp, p)
		}
	}
	if len(mp) == 0 {
		return View{Center: fallback.Center, ZoomLevel: fallback.ZoomLevel}
	}

	b := mp.Bound()
	c := b.Center()
	return View{
		Center:    []float64{c.Lat(), c.Lon()},
		ZoomLevel: fallback.ZoomLevel,
		Bounds: &[2][2]float64{
			{b.Min.Lat(), b.Min.Lon()},
			{b.Max.Lat(), b.Max.Lon()},
		},
	}
}

// location returns the record as an orb point (lng, lat).
func location(r *models.PropertyRecord) (orb.Point, bool) {
	if r == nil || !models.IsFinite(r.Lat) || !models.IsFinite(r.Lng) {
		return orb.Point{}, false
	}
	if math.Abs(r.Lat) > 90 || math.Abs(r.Lng) > 180 {
		return orb.Point{}, false
	}
	return orb.Point{r.Lng, r.Lat}, true
}
