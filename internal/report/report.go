// Package report renders attendance tables as paginated PDF or CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Column is a table column. Width is relative to the other columns.
type Column struct {
	Title string
	Width float64
	Align string
}

// Line is a labelled value printed above or below the table.
type Line struct {
	Label string
	Value string
}

func (l Line) String() string {
	if l.Label == "" {
		return l.Value
	}
	return l.Label + ": " + l.Value
}

// Document is one exported report.
type Document struct {
	Filename string
	Title    string
	Header   []Line
	Columns  []Column
	Rows     [][]string
	Footer   []Line
}

const (
	margin   = 14.0
	rowH     = 7.0
	lineH    = 6.0
	ellipsis = "..."
)

// PDF writes d as an A4 PDF. The column header repeats on every page.
func (d Document) PDF(w io.Writer) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetTitle(d.Title, true)
	pdf.SetCreator("attendsync", true)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	widths := d.widths(pageW - 2*margin)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr(d.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	for _, l := range d.Header {
		pdf.CellFormat(0, lineH, tr(l.String()), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(41, 128, 185)
		pdf.SetTextColor(255, 255, 255)
		for i, col := range d.Columns {
			pdf.CellFormat(widths[i], rowH, tr(col.Title), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0, 0, 0)
	}
	header()

	bottom := pageH - margin - 6
	for n, row := range d.Rows {
		if pdf.GetY()+rowH > bottom {
			pdf.AddPage()
			header()
		}
		fill := n%2 == 1
		pdf.SetFillColor(245, 245, 245)
		for i := range d.Columns {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(widths[i], rowH, fit(pdf, tr(cell), widths[i]-2), "1", 0, d.Columns[i].align(), fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(d.Footer) > 0 {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "", 11)
		for _, l := range d.Footer {
			if pdf.GetY()+lineH > bottom {
				pdf.AddPage()
			}
			pdf.CellFormat(0, lineH, tr(l.String()), "", 1, "L", false, 0, "")
		}
	}
	return pdf.Output(w)
}

// CSV writes the header lines, a blank row, then the table.
func (d Document) CSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	for _, l := range d.Header {
		if err := cw.Write([]string{l.Label, l.Value}); err != nil {
			return err
		}
	}
	if len(d.Header) > 0 {
		if err := cw.Write([]string{}); err != nil {
			return err
		}
	}
	titles := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		titles[i] = c.Title
	}
	if err := cw.Write(titles); err != nil {
		return err
	}
	if err := cw.WriteAll(d.Rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// CSVFilename swaps the .pdf suffix of d.Filename for .csv.
func (d Document) CSVFilename() string {
	return strings.TrimSuffix(d.Filename, ".pdf") + ".csv"
}

func (d Document) widths(avail float64) []float64 {
	var sum float64
	for _, c := range d.Columns {
		sum += c.weight()
	}
	out := make([]float64, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = avail * c.weight() / sum
	}
	return out
}

func (c Column) weight() float64 {
	if c.Width <= 0 {
		return 1
	}
	return c.Width
}

func (c Column) align() string {
	if c.Align == "" {
		return "L"
	}
	return c.Align
}

// fit truncates s so it renders within w.
func fit(pdf *fpdf.Fpdf, s string, w float64) string {
	if pdf.GetStringWidth(s) <= w {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+ellipsis) > w {
		s = s[:len(s)-1]
	}
	return s + ellipsis
}
