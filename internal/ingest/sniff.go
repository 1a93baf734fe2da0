package ingest

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
)

// Format is a sniffed source format.
type Format string

const (
	FormatUnknown Format = ""
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatWebP    Format = "webp"
	FormatPDF     Format = "pdf"
)

var signatures = []struct {
	format Format
	match  func([]byte) bool
}{
	{FormatPNG, prefix("\x89PNG\r\n\x1a\n")},
	{FormatJPEG, prefix("\xff\xd8\xff")},
	{FormatGIF, func(b []byte) bool {
		return bytes.HasPrefix(b, []byte("GIF87a")) || bytes.HasPrefix(b, []byte("GIF89a"))
	}},
	{FormatBMP, prefix("BM")},
	{FormatTIFF, func(b []byte) bool {
		return bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*"))
	}},
	{FormatWebP, func(b []byte) bool { return len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP" }},
	{FormatPDF, isPDF},
}

func prefix(p string) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, []byte(p)) }
}

// isPDF accepts the %PDF- marker anywhere in the first KiB, which tolerates
// leading garbage some scanners emit.
func isPDF(b []byte) bool {
	head := b
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// Sniff identifies data by its leading bytes.
func Sniff(data []byte) Format {
	for _, s := range signatures {
		if s.match(data) {
			return s.format
		}
	}
	return FormatUnknown
}

func signatureHex(data []byte) string {
	if len(data) > 8 {
		data = data[:8]
	}
	return hex.EncodeToString(data)
}

// sniffDPI reads the resolution recorded in a PNG pHYs chunk or a JFIF
// header. It returns 0 when none is present.
func sniffDPI(data []byte, format Format) float64 {
	switch format {
	case FormatPNG:
		return pngDPI(data)
	case FormatJPEG:
		return jfifDPI(data)
	default:
		return 0
	}
}

func pngDPI(data []byte) float64 {
	pos := 8
	for pos+8 <= len(data) {
		n := int(binary.BigEndian.Uint32(data[pos:]))
		typ := string(data[pos+4 : pos+8])
		body := pos + 8
		if n < 0 || body+n > len(data) {
			return 0
		}
		switch typ {
		case "pHYs":
			if n < 9 || data[body+8] != 1 { // unit 1 = metre
				return 0
			}
			ppm := binary.BigEndian.Uint32(data[body:])
			return float64(int(float64(ppm)*0.0254 + 0.5))
		case "IDAT", "IEND":
			return 0
		}
		pos = body + n + 4 // skip CRC
	}
	return 0
}

func jfifDPI(data []byte) float64 {
	// SOI, APP0 marker, length, "JFIF\0", version, units, Xdensity, Ydensity.
	if len(data) < 18 || data[2] != 0xff || data[3] != 0xe0 || string(data[6:11]) != "JFIF\x00" {
		return 0
	}
	units := data[13]
	x := float64(binary.BigEndian.Uint16(data[14:16]))
	switch units {
	case 1:
		return x
	case 2:
		return float64(int(x*2.54 + 0.5))
	default:
		return 0
	}
}
