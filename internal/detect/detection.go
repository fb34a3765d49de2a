package detect

import (
	"image"
	"time"
)

// Stage identifies which detector produced a candidate.
type Stage string

const (
	StageMotion Stage = "motion"
	StageColor  Stage = "color"
	StageFused  Stage = "fused"
)

// Detection is one candidate anomaly region extracted from a fused score
// mask: a connected component with its bounding box, centroid, and the
// mean score of its pixels as confidence.
type Detection struct {
	Seq        uint64          `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	Box        image.Rectangle `json:"-"`
	X          int             `json:"x"`
	Y          int             `json:"y"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Centroid   image.Point     `json:"-"`
	Area       int             `json:"area"`
	Confidence float64         `json:"confidence"`
	Stage      Stage           `json:"stage"`
}

// fill derives the flat JSON fields from Box so wire consumers never see
// the image.Rectangle encoding.
func (d *Detection) fill() {
	d.X = d.Box.Min.X
	d.Y = d.Box.Min.Y
	d.Width = d.Box.Dx()
	d.Height = d.Box.Dy()
}
