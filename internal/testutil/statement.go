package testutil

import (
	"image"
	"image/color"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Cell is the ground truth of one rendered table cell.
type Cell struct {
	Text string
	// Rect is the glyph cell box of the text, not its ink.
	Rect image.Rectangle
	Row  int // 0 is the header when one is rendered
	Col  int
}

// RenderOptions controls statement layout.
type RenderOptions struct {
	Margin    int
	RowHeight int
	// ColumnGap is the blank space between columns in characters.
	ColumnGap int
	// RuledLines draws a rule under every row.
	RuledLines bool
	Background color.NRGBA
	Foreground color.NRGBA
}

// DefaultRenderOptions lays rows 24px apart with four blank characters
// between columns.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Margin:     20,
		RowHeight:  24,
		ColumnGap:  4,
		Background: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		Foreground: color.NRGBA{A: 255},
	}
}

// StatementHeader is the usual five-column header.
var StatementHeader = []string{"Date", "Description", "Debit", "Credit", "Balance"}

// SampleRows returns a three-row statement whose balances reconcile.
func SampleRows() [][]string {
	return [][]string{
		{"01/01/2024", "Opening Balance", "", "", "50000.00"},
		{"02/01/2024", "Salary Credit", "", "10000.00", "60000.00"},
		{"03/01/2024", "ATM Withdrawal", "2000.00", "", "58000.00"},
	}
}

const (
	glyphW      = 7
	glyphH      = 13
	glyphAscent = 11
)

// RenderStatement draws header (may be nil) and rows as a left-aligned text
// table with basicfont.Face7x13. Numeric cells are right-aligned within their
// column. It returns the image and every non-empty cell.
func RenderStatement(header []string, rows [][]string, opts RenderOptions) (*image.NRGBA, []Cell) {
	all := rows
	if header != nil {
		all = append([][]string{header}, rows...)
	}
	ncol := 0
	for _, r := range all {
		ncol = max(ncol, len(r))
	}
	widths := make([]int, ncol)
	for _, r := range all {
		for c, text := range r {
			widths[c] = max(widths[c], len(text))
		}
	}
	colX := make([]int, ncol)
	x := opts.Margin
	for c := range ncol {
		colX[c] = x
		x += (widths[c] + opts.ColumnGap) * glyphW
	}
	width := x - opts.ColumnGap*glyphW + opts.Margin
	height := 2*opts.Margin + len(all)*opts.RowHeight

	img := imaging.New(width, height, opts.Background)
	drawer := &font.Drawer{Dst: img, Src: image.NewUniform(opts.Foreground), Face: basicfont.Face7x13}

	var cells []Cell
	for r, row := range all {
		top := opts.Margin + r*opts.RowHeight + (opts.RowHeight-glyphH)/2
		for c, text := range row {
			if strings.TrimSpace(text) == "" {
				continue
			}
			cx := colX[c]
			if isNumeric(text) {
				cx += (widths[c] - len(text)) * glyphW
			}
			drawer.Dot = fixed.P(cx, top+glyphAscent)
			drawer.DrawString(text)
			cells = append(cells, Cell{
				Text: text,
				Rect: image.Rect(cx, top, cx+len(text)*glyphW, top+glyphH),
				Row:  r,
				Col:  c,
			})
		}
		if opts.RuledLines {
			y := opts.Margin + (r+1)*opts.RowHeight - 1
			for xx := opts.Margin / 2; xx < width-opts.Margin/2; xx++ {
				img.SetNRGBA(xx, y, opts.Foreground)
			}
		}
	}
	return img, cells
}

// RenderText draws a single line of text with a margin around it.
func RenderText(text string, margin int) *image.NRGBA {
	img := imaging.New(len(text)*glyphW+2*margin, glyphH+2*margin, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	drawer := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	drawer.Dot = fixed.P(margin, margin+glyphAscent)
	drawer.DrawString(text)
	return img
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' && r != '-' && r != '(' && r != ')' {
			return false
		}
	}
	return true
}
