package ingest

import (
	"bytes"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/MeKo-Tech/ledgerscan/internal/utils"
	"github.com/dslipak/pdf"
)

// textRun is a horizontal run of glyphs in PDF user space (origin bottom-left).
type textRun struct {
	text     string
	x, y     float64
	w        float64
	fontSize float64
}

// pageText is the embedded text of one PDF page.
type pageText struct {
	width, height float64
	runs          []textRun
}

// place converts the runs to raster coordinates at scale pixels per point.
func (p pageText) place(scale float64) []TextFragment {
	out := make([]TextFragment, 0, len(p.runs))
	for _, r := range p.runs {
		baseline := (p.height - r.y) * scale
		fs := r.fontSize * scale
		out = append(out, TextFragment{
			Text: r.text,
			Box:  utils.NewBox(r.x*scale, baseline-0.8*fs, (r.x+r.w)*scale, baseline+0.2*fs),
		})
	}
	return out
}

// readTextLayer returns the text runs of every page that has any. Malformed
// content streams make the reader panic, so each page is isolated.
func readTextLayer(data []byte) map[int]pageText {
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Debug("ingest: no readable text layer", "error", err)
		return nil
	}
	out := make(map[int]pageText)
	for n := 1; n <= rd.NumPage(); n++ {
		if pt, ok := readPageText(rd, n); ok && len(pt.runs) > 0 {
			out[n] = pt
		}
	}
	return out
}

func readPageText(rd *pdf.Reader, n int) (pt pageText, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("ingest: text layer unreadable", "page", n, "panic", r)
			ok = false
		}
	}()
	page := rd.Page(n)
	if page.V.IsNull() {
		return pageText{}, false
	}
	pt.width, pt.height = mediaBox(page.V)
	pt.runs = groupRuns(page.Content().Text)
	return pt, true
}

// mediaBox walks up the page tree for an inherited MediaBox; US Letter otherwise.
func mediaBox(v pdf.Value) (float64, float64) {
	for range 16 {
		if v.IsNull() {
			break
		}
		if mb := v.Key("MediaBox"); mb.Kind() == pdf.Array && mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return 612, 792
}

// groupRuns joins glyphs that share a baseline and are closer than one em.
func groupRuns(glyphs []pdf.Text) []textRun {
	gs := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S != "" {
			gs = append(gs, g)
		}
	}
	sort.SliceStable(gs, func(i, j int) bool {
		if math.Abs(gs[i].Y-gs[j].Y) > 0.5 {
			return gs[i].Y > gs[j].Y
		}
		return gs[i].X < gs[j].X
	})

	var runs []textRun
	var cur *textRun
	var sb strings.Builder
	flush := func() {
		if cur != nil {
			cur.text = strings.TrimSpace(sb.String())
			if cur.text != "" {
				runs = append(runs, *cur)
			}
		}
		cur = nil
		sb.Reset()
	}
	for _, g := range gs {
		fs := g.FontSize
		if fs <= 0 {
			fs = 10
		}
		if cur != nil {
			sameLine := math.Abs(g.Y-cur.y) <= 0.3*fs
			gap := g.X - (cur.x + cur.w)
			if !sameLine || gap > fs {
				flush()
			}
		}
		if cur == nil {
			cur = &textRun{x: g.X, y: g.Y, fontSize: fs}
		}
		sb.WriteString(g.S)
		if end := g.X + g.W; end > cur.x+cur.w {
			cur.w = end - cur.x
		}
		if fs > cur.fontSize {
			cur.fontSize = fs
		}
	}
	flush()
	return runs
}
