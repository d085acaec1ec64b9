package pipeline

import "math"

// ErrorBand is the marker class of a valuation error.
type ErrorBand struct {
	Level     int    `json:"level"`
	Direction string `json:"direction"`
	Color     string `json:"color"`
}

const (
	DirectionOver  = "over"
	DirectionUnder = "under"
)

// Band thresholds in percent; anything above the last one is level 3.
var bandThresholds = []float64{5, 10, 15}

var bandColors = []string{"#10B981", "#FBBF24", "#F97316", "#EF4444"}

// ClassifyError maps a signed error to its band: |e| <= 5, 10, 15 or above.
// The direction tells over- from under-estimation.
func ClassifyError(e float64) ErrorBand {
	if math.IsNaN(e) {
		e = 0
	}
	abs := math.Abs(e)
	level := len(bandThresholds)
	for i, t := range bandThresholds {
		if abs <= t {
			level = i
			break
		}
	}
	dir := DirectionOver
	if e < 0 {
		dir = DirectionUnder
	}
	return ErrorBand{Level: level, Direction: dir, Color: bandColors[level]}
}
