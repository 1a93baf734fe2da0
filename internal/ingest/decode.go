package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// decodeStrategy is one way of turning bytes into an image.
type decodeStrategy struct {
	name   string
	decode func(data []byte, format Format) (image.Image, error)
}

// imageStrategies are tried in order; the first success wins.
var imageStrategies = []decodeStrategy{
	{name: "imaging-autoorient", decode: decodeWithImaging},
	{name: "native", decode: decodeNative},
}

func decodeWithImaging(data []byte, _ Format) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func decodeNative(data []byte, format Format) (image.Image, error) {
	var dec func(io.Reader) (image.Image, error)
	switch format {
	case FormatPNG:
		dec = png.Decode
	case FormatJPEG:
		dec = jpeg.Decode
	case FormatGIF:
		dec = gif.Decode
	case FormatBMP:
		dec = bmp.Decode
	case FormatTIFF:
		dec = tiff.Decode
	case FormatWebP:
		dec = webp.Decode
	default:
		return nil, fmt.Errorf("no native decoder for %q", format)
	}
	return dec(bytes.NewReader(data))
}

// decodeImage runs every strategy until one succeeds.
func decodeImage(data []byte, format Format) (*Raster, error) {
	return decodeWith(imageStrategies, data, format)
}

func decodeWith(strategies []decodeStrategy, data []byte, format Format) (*Raster, error) {
	var attempts []ledger.DecodeAttempt
	for _, s := range strategies {
		img, err := s.decode(data, format)
		if err == nil && img != nil && !img.Bounds().Empty() {
			return &Raster{
				Image: utils.Flatten(img),
				Meta: Metadata{
					Format:    string(format),
					DPI:       sniffDPI(data, format),
					Page:      1,
					PageCount: 1,
				},
			}, nil
		}
		if err == nil {
			err = errors.New("decoded empty image")
		}
		attempts = append(attempts, ledger.DecodeAttempt{Strategy: s.name, Err: err})
	}
	return nil, &ledger.CorruptedSourceError{Format: string(format), Attempts: attempts}
}
