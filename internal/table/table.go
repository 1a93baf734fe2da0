// Package table rebuilds statement rows and column roles from positioned,
// recognized text fragments.
package table

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/utils"
)

// Role is the logical meaning of a column.
type Role string

const (
	RoleDate        Role = "DATE"
	RoleDescription Role = "DESCRIPTION"
	RoleDebit       Role = "DEBIT"
	RoleCredit      Role = "CREDIT"
	RoleBalance     Role = "BALANCE"
	// RoleAmount is a single signed amount column.
	RoleAmount  Role = "AMOUNT"
	RoleUnknown Role = "UNKNOWN"
)

// Fragment is one recognized crop with its position.
type Fragment struct {
	Text       string
	Box        utils.Box
	Confidence float64
	// Order is the crop's reading-order index.
	Order int
	Page  int
}

// Row is a reconstructed table row. Cells maps each role to its raw text;
// several fragments in one column are joined with a space.
type Row struct {
	Index       int             `json:"index"`
	Page        int             `json:"page"`
	Cells       map[Role]string `json:"cells"`
	Y           float64         `json:"y"`
	Orders      []int           `json:"orders"`
	Confidences []float64       `json:"confidences"`
	Header      bool            `json:"header,omitempty"`
	// Continuations counts merged follow-on lines.
	Continuations int `json:"continuations,omitempty"`
}

// Text returns the cell text for role.
func (r Row) Text(role Role) string { return r.Cells[role] }

// Empty reports whether every cell is blank.
func (r Row) Empty() bool {
	for _, v := range r.Cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Confidence is the mean cell confidence, 0 without cells.
func (r Row) Confidence() float64 {
	if len(r.Confidences) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range r.Confidences {
		sum += c
	}
	return sum / float64(len(r.Confidences))
}

// Classifier tells dates and amounts apart from free text.
type Classifier interface {
	IsDate(s string) bool
	IsAmount(s string) bool
}

// Config tunes reconstruction.
type Config struct {
	// ColumnGap merges column clusters closer than this many pixels; zero
	// uses the median fragment height.
	ColumnGap float64 `mapstructure:"column_gap" yaml:"column_gap" json:"column_gap"`
	// MinHeaderCells is the number of keyword cells that make a header row.
	MinHeaderCells int `mapstructure:"min_header_cells" yaml:"min_header_cells" json:"min_header_cells"`
}

// DefaultConfig returns automatic column spacing and two-cell headers.
func DefaultConfig() Config {
	return Config{MinHeaderCells: 2}
}

// Result is the output of Reconstruct.
type Result struct {
	Rows    []Row
	Roles   []Role
	Header  bool
	Dropped int
	// Warnings describe dropped lines and ambiguous columns.
	Warnings []string
}

// Reconstructor groups fragments into rows and assigns column roles.
type Reconstructor struct {
	cfg        Config
	classifier Classifier
}

// New returns a Reconstructor. A nil classifier uses pattern matching.
func New(cfg Config, classifier Classifier) *Reconstructor {
	if classifier == nil {
		classifier = PatternClassifier{}
	}
	if cfg.MinHeaderCells <= 0 {
		cfg.MinHeaderCells = DefaultConfig().MinHeaderCells
	}
	return &Reconstructor{cfg: cfg, classifier: classifier}
}

// Reconstruct rebuilds the rows of one page. Rows come out in reading order;
// continuation lines are merged into the preceding data row.
func (t *Reconstructor) Reconstruct(frags []Fragment) Result {
	start := time.Now()
	if len(frags) == 0 {
		return Result{}
	}
	boxes := make([]utils.Box, len(frags))
	for i, f := range frags {
		boxes[i] = f.Box
	}
	groups := layout.GroupRows(boxes)
	headerRow := t.findHeader(frags, groups)
	// Rows above the header are titles and summaries; they must not shape the columns.
	seedGroups := groups
	if headerRow > 0 {
		seedGroups = groups[headerRow:]
	}
	columns := clusterColumns(boxes, seedGroups, t.columnGap(boxes))
	roles, warnings := t.assignRoles(frags, groups, columns, headerRow)

	res := Result{Roles: roles, Header: headerRow >= 0, Warnings: warnings}
	lastData := -1
	for gi, group := range groups {
		row := buildRow(frags, group, columns, roles)
		if gi == headerRow {
			row.Header = true
			row.Index = len(res.Rows)
			res.Rows = append(res.Rows, row)
			continue
		}
		if row.Empty() {
			continue
		}
		if t.isContinuation(row) {
			if lastData < 0 {
				res.Dropped++
				res.Warnings = append(res.Warnings,
					"continuation line before first data row dropped: "+strings.Join(rowTexts(row), " "))
				slog.Warn("table: continuation dropped", "page", row.Page, "y", row.Y)
				continue
			}
			mergeContinuation(&res.Rows[lastData], row)
			continue
		}
		row.Index = len(res.Rows)
		res.Rows = append(res.Rows, row)
		lastData = row.Index
	}
	slog.Debug("Table reconstruction completed",
		"fragments", len(frags), "rows", len(res.Rows), "columns", len(roles),
		"header", res.Header, "duration_ms", time.Since(start).Milliseconds())
	return res
}

func (t *Reconstructor) columnGap(boxes []utils.Box) float64 {
	if t.cfg.ColumnGap > 0 {
		return t.cfg.ColumnGap
	}
	hs := make([]float64, len(boxes))
	for i, b := range boxes {
		hs[i] = b.Height()
	}
	slices.Sort(hs)
	return hs[len(hs)/2]
}

// isContinuation reports a row with text but neither a date nor an amount.
func (t *Reconstructor) isContinuation(row Row) bool {
	for _, text := range rowTexts(row) {
		if t.classifier.IsDate(text) || t.classifier.IsAmount(text) {
			return false
		}
	}
	return true
}

func buildRow(frags []Fragment, group []int, columns []int, roles []Role) Row {
	row := Row{Cells: make(map[Role]string), Page: frags[group[0]].Page}
	row.Y = frags[group[0]].Box.MinY
	for _, fi := range group {
		f := frags[fi]
		role := roles[columns[fi]]
		text := strings.TrimSpace(f.Text)
		if prev := row.Cells[role]; prev != "" && text != "" {
			text = prev + " " + text
		} else if text == "" {
			text = prev
		}
		row.Cells[role] = text
		row.Y = min(row.Y, f.Box.MinY)
		row.Orders = append(row.Orders, f.Order)
		row.Confidences = append(row.Confidences, f.Confidence)
	}
	return row
}

// rowTexts returns the non-empty cell texts in column-role order.
func rowTexts(row Row) []string {
	var out []string
	for _, role := range allRoles {
		if v := strings.TrimSpace(row.Cells[role]); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func mergeContinuation(dst *Row, cont Row) {
	extra := strings.Join(rowTexts(cont), " ")
	if d := dst.Cells[RoleDescription]; d != "" {
		dst.Cells[RoleDescription] = d + " " + extra
	} else {
		dst.Cells[RoleDescription] = extra
	}
	dst.Orders = append(dst.Orders, cont.Orders...)
	dst.Confidences = append(dst.Confidences, cont.Confidences...)
	dst.Continuations++
}

var allRoles = []Role{RoleDate, RoleDescription, RoleDebit, RoleCredit, RoleAmount, RoleBalance, RoleUnknown}
