// Package layout establishes reading order over detected regions and cuts
// the padded crops handed to recognition.
package layout

import (
	"image"

	"github.com/MeKo-Tech/ledgerscan/internal/utils"
)

// Region is a detected text line in raster coordinates.
type Region struct {
	Box        utils.Box     `json:"box"`
	Polygon    []utils.Point `json:"polygon,omitempty"`
	Confidence float64       `json:"confidence"`
	Backend    string        `json:"backend,omitempty"`
}

// NewRegion builds a rectangular region.
func NewRegion(x, y, w, h, confidence float64) Region {
	return Region{Box: utils.NewBox(x, y, x+w, y+h), Confidence: confidence}
}

// Valid reports whether the region has positive area.
func (r Region) Valid() bool { return r.Box.Width() > 0 && r.Box.Height() > 0 }

// Clamp restricts the region to bounds. The result may be invalid when the
// region lies entirely outside.
func (r Region) Clamp(bounds image.Rectangle) Region {
	r.Box = r.Box.Intersect(utils.BoxFromRect(bounds))
	return r
}

// Crop is the padded sub-image of one region.
type Crop struct {
	Image *image.NRGBA
	// Region is a copy of the source region; RegionIndex points into the
	// detector output it came from.
	Region      Region
	RegionIndex int
	// Order is the reading-order position, stable across filtering.
	Order int
	Page  int
}
