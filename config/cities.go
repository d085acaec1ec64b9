package config

import (
	"regexp"
	"strings"
)

// City represents a city configuration
type City struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Center      []float64 `json:"center"`
	ZoomLevel   int       `json:"zoom_level"`
}

// SupportedCities is a list of cities supported by the application.
// Center is [lat, lng].
var SupportedCities = []City{
	{Name: "taipei", DisplayName: "台北市", Center: []float64{25.0330, 121.5654}, ZoomLevel: 13},
	{Name: "taichung", DisplayName: "台中市", Center: []float64{24.1477, 120.6736}, ZoomLevel: 13},
	{Name: "kaohsiung", DisplayName: "高雄市", Center: []float64{22.6273, 120.3014}, ZoomLevel: 13},
	{Name: "hsinchu", DisplayName: "新竹市", Center: []float64{24.8138, 120.9675}, ZoomLevel: 13},
	{Name: "tainan", DisplayName: "台南市", Center: []float64{22.9999, 120.2269}, ZoomLevel: 13},
	{Name: "keelung", DisplayName: "基隆市", Center: []float64{25.1276, 121.7392}, ZoomLevel: 13},
	{Name: "taoyuan", DisplayName: "桃園市", Center: []float64{24.9936, 121.3010}, ZoomLevel: 13},
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeCity turns a free-form city name into its lookup key,
// e.g. "Kaohsiung City" -> "kaohsiung-city".
func NormalizeCity(name string) string {
	slug := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}

// GetCityNames returns a list of supported city names
func GetCityNames() []string {
	names := make([]string, len(SupportedCities))
	for i, city := range SupportedCities {
		names[i] = city.Name
	}
	return names
}

// GetCityByName returns a city configuration by name, matching either the
// key or the display name.
func GetCityByName(name string) *City {
	key := NormalizeCity(name)
	for _, city := range SupportedCities {
		if city.Name == key || city.DisplayName == strings.TrimSpace(name) {
			c := city
			return &c
		}
	}
	return nil
}

// DefaultCity returns the named city or the first supported one.
func DefaultCity(name string) City {
	if c := GetCityByName(name); c != nil {
		return *c
	}
	return SupportedCities[0]
}
