package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/ingest"
	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/mempool"
	"github.com/MeKo-Tech/ledgerscan/internal/models"
	"github.com/MeKo-Tech/ledgerscan/internal/onnx"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
)

// DBConfig configures the ONNX differentiable-binarisation detector.
type DBConfig struct {
	ModelPath string             `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	Session   onnx.SessionConfig `mapstructure:"session" yaml:"session" json:"session"`
	// Thresh binarises the probability map.
	Thresh float32 `mapstructure:"thresh" yaml:"thresh" json:"thresh"`
	// BoxThresh is the minimum mean probability inside a kept component.
	BoxThresh float64 `mapstructure:"box_thresh" yaml:"box_thresh" json:"box_thresh"`
	// MaxSide limits the longer input side; both sides become multiples of 32.
	MaxSide int `mapstructure:"max_side" yaml:"max_side" json:"max_side"`
	// UnclipRatio grows shrunk kernels back to full text boxes.
	UnclipRatio  float64 `mapstructure:"unclip_ratio" yaml:"unclip_ratio" json:"unclip_ratio"`
	MinSize      int     `mapstructure:"min_size" yaml:"min_size" json:"min_size"`
	Dilation     int     `mapstructure:"dilation" yaml:"dilation" json:"dilation"`
	UseNMS       bool    `mapstructure:"use_nms" yaml:"use_nms" json:"use_nms"`
	NMSThreshold float64 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
}

// DefaultDBConfig returns PP-OCR style defaults.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		ModelPath:    models.DetectionPath(""),
		Session:      onnx.SessionConfig{GPU: onnx.DefaultGPUConfig()},
		Thresh:       0.3,
		BoxThresh:    0.5,
		MaxSide:      960,
		UnclipRatio:  1.5,
		MinSize:      3,
		UseNMS:       true,
		NMSThreshold: 0.3,
	}
}

var (
	dbMean = [3]float32{0.485, 0.456, 0.406}
	dbStd  = [3]float32{0.229, 0.224, 0.225}
)

// DB runs a DB text detection model through ONNX Runtime.
type DB struct {
	cfg     DBConfig
	session *onnx.Session
}

// NewDB loads the detection model.
func NewDB(cfg DBConfig) (*DB, error) {
	if cfg.Thresh <= 0 || cfg.Thresh >= 1 {
		return nil, fmt.Errorf("db threshold must be in (0,1), got %v", cfg.Thresh)
	}
	slog.Debug("Initializing DB detector",
		"model_path", cfg.ModelPath,
		"gpu_enabled", cfg.Session.GPU.UseGPU,
		"max_side", cfg.MaxSide,
		"use_nms", cfg.UseNMS)

	sess, err := onnx.NewSession(cfg.ModelPath, cfg.Session)
	if err != nil {
		return nil, err
	}
	if shape := sess.InputShape(0); len(shape) != 4 {
		_ = sess.Close()
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(shape))
	}
	return &DB{cfg: cfg, session: sess}, nil
}

// Name implements Detector.
func (d *DB) Name() string { return BackendONNXDB }

// Version reports the model label for processing metadata.
func (d *DB) Version() string { return models.Version(d.cfg.ModelPath) }

// Close implements Detector.
func (d *DB) Close() error { return d.session.Close() }

// Detect implements Detector.
func (d *DB) Detect(ctx context.Context, r *ingest.Raster) ([]layout.Region, error) {
	if r == nil || r.Image == nil {
		return nil, errors.New("input raster is nil")
	}
	start := time.Now()
	bounds := r.Image.Bounds()

	input := resizeForDB(r.Image, d.cfg.MaxSide)
	data, w, h, err := utils.NormalizeNCHW(input, dbMean, dbStd)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	defer mempool.PutFloat32(data)
	tensor, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputs, err := d.session.Run(tensor)
	if err != nil {
		return nil, err
	}
	prob, mw, mh, err := outputs[0].Map2D()
	if err != nil {
		return nil, err
	}

	regions := dbPostprocess(prob, mw, mh, bounds.Dx(), bounds.Dy(), d.cfg)
	regions = finalize(regions, bounds, BackendONNXDB)

	slog.Debug("DB detection completed",
		"page", r.Meta.Page,
		"input_size", fmt.Sprintf("%dx%d", w, h),
		"regions", len(regions),
		"duration_ms", float64(time.Since(start).Microseconds())/1000)
	return regions, nil
}

// resizeForDB scales so the longer side is at most maxSide and both sides are
// multiples of 32.
func resizeForDB(img *image.NRGBA, maxSide int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scale := 1.0
	if maxSide > 0 && max(w, h) > maxSide {
		scale = float64(maxSide) / float64(max(w, h))
	}
	round32 := func(v float64) int {
		return max(32, int(math.Round(v/32))*32)
	}
	nw, nh := round32(float64(w)*scale), round32(float64(h)*scale)
	if nw == w && nh == h {
		return img
	}
	return imaging.Resize(img, nw, nh, imaging.Linear)
}

// dbPostprocess turns a probability map into boxes in original image
// coordinates.
func dbPostprocess(prob []float32, w, h, origW, origH int, cfg DBConfig) []layout.Region {
	mask := mempool.GetBool(w * h)
	defer mempool.PutBool(mask)
	for i, p := range prob[:w*h] {
		mask[i] = p >= cfg.Thresh
	}
	work := mask
	if cfg.Dilation > 1 {
		work = dilate(mask, w, h, cfg.Dilation)
	}

	comps, _ := connectedComponents(work, prob, w, h, false)
	sx := float64(origW) / float64(w)
	sy := float64(origH) / float64(h)

	regions := make([]layout.Region, 0, len(comps))
	for _, c := range comps {
		if min(c.width(), c.height()) < cfg.MinSize {
			continue
		}
		score := c.mean()
		if score < cfg.BoxThresh {
			continue
		}
		box := unclip(c.box(), cfg.UnclipRatio).Scale(sx, sy)
		regions = append(regions, layout.Region{Box: box, Polygon: box.Polygon(), Confidence: score})
	}
	if cfg.UseNMS {
		regions = NonMaxSuppression(regions, cfg.NMSThreshold)
	}
	return regions
}

// unclip expands a box by area*ratio/perimeter on every side, the DB offset
// for a rectangle.
func unclip(b utils.Box, ratio float64) utils.Box {
	if ratio <= 0 {
		return b
	}
	perimeter := 2 * (b.Width() + b.Height())
	if perimeter == 0 {
		return b
	}
	return b.Expand(b.Area() * ratio / perimeter)
}
