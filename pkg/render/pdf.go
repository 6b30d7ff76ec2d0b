package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	DefaultToolVersion = "1.0.0"

	marginLeft   = 20.0
	marginTop    = 20.0
	marginRight  = 20.0
	marginBottom = 20.0
)

const defaultDisclaimer = "This forensic report was generated using MemHawk, an open-source memory forensics tool. " +
	"The analysis is based on automated techniques and should be reviewed by qualified forensic experts."

// Renderer lays out report drafts and writes them as A4 PDF documents.
type Renderer struct {
	ToolName    string
	ToolVersion string
	Subtitles   []string
	Disclaimer  string
}

func New() *Renderer {
	return &Renderer{
		ToolName:    "MemHawk",
		ToolVersion: DefaultToolVersion,
		Subtitles: []string{
			"Digital Memory Forensics Investigation",
			"Generated by MemHawk - Open Source Memory Forensics Tool",
		},
		Disclaimer: defaultDisclaimer,
	}
}

// Layout returns the block sequence of the document: title, subtitles,
// metadata grid, the draft's sections and the closing disclaimer.
func (r *Renderer) Layout(d ReportDraft, meta ArtifactMeta, h Header) []Block {
	title := d.Title
	if title == "" {
		title = DefaultTitle
	}
	blocks := []Block{{Kind: KindTitle, Text: title}}
	for _, s := range r.Subtitles {
		blocks = append(blocks, Block{Kind: KindSubtitle, Text: s})
	}
	blocks = append(blocks, Block{Kind: KindMetadata, Rows: r.metadataRows(meta, h)})
	for _, s := range d.Sections {
		if s.Title != "" {
			blocks = append(blocks, Block{Kind: KindHeading, Level: s.Level, Text: s.Title})
		}
		blocks = append(blocks, ParseBlocks(s.Body)...)
	}
	return append(blocks, Block{Kind: KindDisclaimer, Text: r.Disclaimer})
}

func (r *Renderer) metadataRows(meta ArtifactMeta, h Header) [][]string {
	generated := "Unknown"
	if !h.Generated.IsZero() {
		generated = h.Generated.UTC().Format("2006-01-02 15:04:05 MST")
	}
	status := h.Status
	if status == "" {
		status = "Draft"
	}
	version := h.ToolVersion
	if version == "" {
		version = r.ToolVersion
	}
	return [][]string{
		{"Report ID", orUnknown(h.ReportID)},
		{"Generated", generated},
		{"Memory Image", orUnknown(meta.Filename)},
		{"Image Size", FormatSize(meta.Size)},
		{"Analysis Tool", fmt.Sprintf("%s v%s", r.ToolName, version)},
		{"Report Status", status},
	}
}

// Render writes the layout as PDF. The creation date is pinned to
// h.Generated.
func (r *Renderer) Render(d ReportDraft, meta ArtifactMeta, h Header) ([]byte, error) {
	blocks := r.Layout(d, meta, h)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	created := h.Generated
	if created.IsZero() {
		created = time.Unix(0, 0)
	}
	pdf.SetCreationDate(created.UTC())
	pdf.SetModificationDate(created.UTC())
	pdf.SetTitle(blocks[0].Text, true)
	pdf.SetSubject("Digital Memory Forensics Investigation", true)
	pdf.SetAuthor("MemHawk Forensics Engine", true)
	pdf.SetCreator("MemHawk Report Generator", true)
	pdf.SetProducer("MemHawk Forensics Platform", true)
	pdf.SetKeywords("forensics memory volatility memhawk", true)
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.AliasNbPages("")

	w := &pageWriter{pdf: pdf, tr: textTranslator(pdf)}
	pageW, pageH := pdf.GetPageSize()
	w.width = pageW - marginLeft - marginRight
	w.height = pageH

	pdf.SetHeaderFunc(func() {
		pdf.SetY(8)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, w.tr(r.ToolName+" Forensic Report - Confidential"), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.SetY(marginTop)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		left := r.ToolName + " Forensics Platform"
		if h.ReportID != "" {
			left += " | Report ID: " + h.ReportID
		}
		pdf.CellFormat(w.width/2, 5, w.tr(left), "", 0, "L", false, 0, "")
		pdf.CellFormat(w.width/2, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()
	for _, b := range blocks {
		w.block(b)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// glyphFallbacks spells out symbols that model output uses often but the
// cp1252 core fonts cannot draw.
var glyphFallbacks = strings.NewReplacer(
	"\u2192", "->", "\u2190", "<-", "\u21d2", "=>", "\u2194", "<->",
	"\u2713", "[x]", "\u2714", "[x]", "\u2717", "[ ]", "\u2718", "[ ]",
	"\u2265", ">=", "\u2264", "<=", "\u2260", "!=",
	"\u25cf", "\u2022", "\u25aa", "\u2022", "\u25e6", "-",
	"\u26a0", "(!)",
)

// textTranslator maps UTF-8 text onto the cp1252 encoding of the built-in
// Helvetica and Courier fonts. Common symbols get ASCII stand-ins; any other
// rune outside cp1252, such as CJK text, is drawn as '.'.
func textTranslator(pdf *fpdf.Fpdf) func(string) string {
	cp := pdf.UnicodeTranslatorFromDescriptor("")
	return func(s string) string {
		return cp(glyphFallbacks.Replace(s))
	}
}

type pageWriter struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	width  float64
	height float64
}

func (w *pageWriter) block(b Block) {
	pdf := w.pdf
	switch b.Kind {
	case KindTitle:
		pdf.SetFont("Helvetica", "B", 18)
		pdf.MultiCell(0, 9, w.tr(b.Text), "", "C", false)
		pdf.Ln(2)
	case KindSubtitle:
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 6, w.tr(b.Text), "", "C", false)
		pdf.SetTextColor(0, 0, 0)
	case KindMetadata:
		w.metadata(b.Rows)
	case KindHeading:
		size := 11.0
		switch b.Level {
		case 1:
			size = 16
		case 2:
			size = 14
		case 3:
			size = 12
		}
		pdf.Ln(3)
		w.ensure(size)
		pdf.SetFont("Helvetica", "B", size)
		pdf.MultiCell(0, size*0.5, w.tr(b.Text), "", "L", false)
		if b.Level <= 2 {
			y := pdf.GetY()
			pdf.SetDrawColor(180, 180, 180)
			pdf.Line(marginLeft, y, marginLeft+w.width, y)
			pdf.SetDrawColor(0, 0, 0)
		}
		pdf.Ln(2)
	case KindParagraph:
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, w.tr(b.Text), "", "L", false)
		pdf.Ln(2)
	case KindList:
		pdf.SetFont("Helvetica", "", 10)
		for _, it := range b.Items {
			indent := float64(it.Depth) * 6
			markW := 6.0
			if b.Ordered {
				markW = 8
			}
			pdf.SetX(marginLeft + indent)
			pdf.CellFormat(markW, 5, it.Mark, "", 0, "L", false, 0, "")
			pdf.MultiCell(w.width-indent-markW, 5, w.tr(it.Text), "", "L", false)
		}
		pdf.Ln(2)
	case KindTable:
		w.table(b)
		pdf.Ln(3)
	case KindCode:
		pdf.SetFont("Courier", "", 8)
		pdf.SetFillColor(244, 244, 244)
		pdf.MultiCell(0, 4, w.tr(strings.ReplaceAll(b.Text, "\t", "    ")), "", "L", true)
		pdf.Ln(2)
	case KindQuote:
		pdf.SetFont("Helvetica", "I", 10)
		pdf.SetX(marginLeft + 6)
		pdf.MultiCell(w.width-6, 5, w.tr(b.Text), "", "L", false)
		pdf.Ln(2)
	case KindRule:
		pdf.Ln(2)
		y := pdf.GetY()
		pdf.Line(marginLeft, y, marginLeft+w.width, y)
		pdf.Ln(3)
	case KindDisclaimer:
		pdf.Ln(6)
		y := pdf.GetY()
		pdf.Line(marginLeft, y, marginLeft+w.width, y)
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(0, 4, w.tr("Disclaimer: "+b.Text), "", "L", false)
	}
}

func (w *pageWriter) metadata(rows [][]string) {
	pdf := w.pdf
	pdf.Ln(4)
	pdf.SetFillColor(245, 245, 245)
	half := w.width / 2
	const labelW = 30.0
	for i := 0; i < len(rows); i += 2 {
		for col := 0; col < 2 && i+col < len(rows); col++ {
			row := rows[i+col]
			pdf.SetX(marginLeft + float64(col)*half)
			pdf.SetFont("Helvetica", "B", 9)
			pdf.CellFormat(labelW, 6, w.tr(row[0]+":"), "", 0, "L", true, 0, "")
			pdf.SetFont("Helvetica", "", 9)
			pdf.CellFormat(half-labelW, 6, w.fit(w.tr(row[1]), half-labelW-2), "", 0, "L", true, 0, "")
		}
		pdf.Ln(6)
	}
	pdf.Ln(4)
}

func (w *pageWriter) table(b Block) {
	cols := len(b.Header)
	for _, r := range b.Rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if cols == 0 {
		return
	}
	colW := w.width / float64(cols)
	if len(b.Header) > 0 {
		w.row(b.Header, cols, colW, true)
	}
	for _, r := range b.Rows {
		w.row(r, cols, colW, false)
	}
}

func (w *pageWriter) row(cells []string, cols int, colW float64, header bool) {
	pdf := w.pdf
	const lineH = 5.0
	if header {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
	} else {
		pdf.SetFont("Helvetica", "", 9)
	}

	texts := make([]string, cols)
	lines := 1
	for i := 0; i < cols; i++ {
		if i < len(cells) {
			texts[i] = w.tr(cells[i])
		}
		if n := len(pdf.SplitLines([]byte(texts[i]), colW-2)); n > lines {
			lines = n
		}
	}
	h := float64(lines) * lineH
	w.ensure(h)

	y := pdf.GetY()
	style := "D"
	if header {
		style = "FD"
	}
	for i, t := range texts {
		x := marginLeft + float64(i)*colW
		pdf.Rect(x, y, colW, h, style)
		pdf.SetXY(x+1, y)
		pdf.MultiCell(colW-2, lineH, t, "", "L", false)
	}
	pdf.SetXY(marginLeft, y+h)
}

// ensure starts a new page when fewer than h millimetres remain.
func (w *pageWriter) ensure(h float64) {
	if w.pdf.GetY()+h > w.height-marginBottom {
		w.pdf.AddPage()
	}
}

func (w *pageWriter) fit(s string, width float64) string {
	if w.pdf.GetStringWidth(s) <= width {
		return s
	}
	// s is already in the font encoding, one byte per glyph.
	b := []byte(s)
	for len(b) > 0 && w.pdf.GetStringWidth(string(b)+"...") > width {
		b = b[:len(b)-1]
	}
	return string(b) + "..."
}

// FormatSize renders a byte count for display.
func FormatSize(n int64) string {
	if n <= 0 {
		return "Unknown"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
