package layout

import (
	"image"
	"image/color"
	"log/slog"
	"slices"

	"github.com/MeKo-Tech/ledgerscan/internal/utils"
)

// CropOptions control padding and filtering of crops.
type CropOptions struct {
	Padding    int         `mapstructure:"padding" yaml:"padding" json:"padding"`
	MinSize    int         `mapstructure:"min_size" yaml:"min_size" json:"min_size"`
	MaxAspect  float64     `mapstructure:"max_aspect" yaml:"max_aspect" json:"max_aspect"`
	Background color.NRGBA `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultCropOptions suits printed statement lines.
func DefaultCropOptions() CropOptions {
	return CropOptions{Padding: 4, MinSize: 4, MaxAspect: 100, Background: utils.White}
}

// keep reports whether a region survives the size and aspect filters.
func (o CropOptions) keep(b utils.Box) bool {
	w, h := b.Width(), b.Height()
	if o.MinSize > 0 && (w < float64(o.MinSize) || h < float64(o.MinSize)) {
		return false
	}
	if o.MaxAspect > 0 && h > 0 {
		ar := w / h
		if ar > o.MaxAspect || ar < 1/o.MaxAspect {
			return false
		}
	}
	return true
}

// OrderAndCrop orders regions and extracts their padded crops. Regions left
// empty by clamping to the raster are dropped before ordering so they cannot
// skew the row threshold. The size filter runs after ordering, so surviving
// crops keep their order index. The indices of dropped regions are returned.
func OrderAndCrop(img *image.NRGBA, regions []Region, page int, opts CropOptions) ([]Crop, []int) {
	if opts.Background.A == 0 {
		opts.Background = utils.White
	}
	bounds := img.Bounds()
	var (
		valid   []Region
		index   []int
		dropped []int
	)
	for i, r := range regions {
		c := r.Clamp(bounds)
		if !c.Valid() {
			dropped = append(dropped, i)
			slog.Warn("layout: region outside raster dropped", "region", i)
			continue
		}
		valid = append(valid, c)
		index = append(index, i)
	}

	crops := make([]Crop, 0, len(valid))
	for order, vi := range Order(valid) {
		r, idx := valid[vi], index[vi]
		if !opts.keep(r.Box) {
			dropped = append(dropped, idx)
			slog.Warn("layout: crop dropped", "region", idx, "order", order,
				"width", r.Box.Width(), "height", r.Box.Height())
			continue
		}
		crops = append(crops, Crop{
			Image:       utils.CropPadded(img, r.Box.ToRect(bounds), opts.Padding, opts.Background),
			Region:      r,
			RegionIndex: idx,
			Order:       order,
			Page:        page,
		})
	}
	slices.Sort(dropped)
	return crops, dropped
}
