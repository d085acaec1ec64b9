package geometry

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"valuemap/server/internal/models"
	"valuemap/server/internal/pipeline"
)

// CommunityHulls outlines every community that has at least three distinct,
// non-collinear locations. Communities come out in first-appearance order.
func CommunityHulls(records []*models.PropertyRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	names, groups := pipeline.GroupByCommunity(records)
	for _, name := range names {
		members := groups[name]

		points := uniquePoints(members)
		if len(points) < 3 {
			continue
		}
		hull := convexHull(points)
		if hull == nil {
			continue
		}

		feature := geojson.NewFeature(orb.Polygon{hull})
		feature.Properties = geojson.Properties{
			"community":   name,
			"point_count": len(members),
			"hull_type":   "convex",
		}
		stats := pipeline.ComputeStats(members)
		if hasError(members) {
			band := pipeline.ClassifyError(stats.AvgError)
			feature.Properties["avg_error"] = stats.AvgError
			feature.Properties["band"] = band.Level
			feature.Properties["color"] = band.Color
		}
		fc.Append(feature)
	}
	return fc
}

func uniquePoints(records []*models.PropertyRecord) []orb.Point {
	seen := make(map[orb.Point]bool, len(records))
	points := make([]orb.Point, 0, len(records))
	for _, r := range records {
		p, ok := location(r)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		points = append(points, p)
	}
	return points
}

func hasError(records []*models.PropertyRecord) bool {
	for _, r := range records {
		if r.Error != nil && models.IsFinite(*r.Error) {
			return true
		}
	}
	return false
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// convexHull returns the closed counter-clockwise hull of points using
// Andrew's monotone chain, or nil when all points are collinear.
// points is reordered in place.
func convexHull(points []orb.Point) orb.Ring {
	if len(points) < 3 {
		return nil
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i][0] != points[j][0] {
			return points[i][0] < points[j][0]
		}
		return points[i][1] < points[j][1]
	})

	hull := make([]orb.Point, 0, 2*len(points))

	// lower
	for _, p := range points {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// upper
	lower := len(hull) + 1
	for i := len(points) - 2; i >= 0; i-- {
		p := points[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// The last point repeats the first, closing the ring.
	if len(hull) < 4 {
		return nil
	}
	return orb.Ring(hull)
}
