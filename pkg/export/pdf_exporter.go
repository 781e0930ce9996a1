package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Section is one titled table of a PDF document.
type Section struct {
	Title string
	Data  Dataset
}

const (
	pdfMarginLeft   = 15.0
	pdfMarginTop    = 15.0
	pdfMarginBottom = 15.0
	pdfCellWidth    = 28.0
	pdfRowHeight    = 8.0
	pdfHeadingSize  = 13.0
)

// PDFExporter renders titled sections into an A4 document, one styled grid
// per section. A section that does not fit on the current page starts a new one.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the PDF document for the given sections.
func (e *PDFExporter) Render(sections []Section) ([]byte, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("pdf requires at least one section")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMarginLeft, pdfMarginTop, pdfMarginLeft)
	pdf.SetAutoPageBreak(true, pdfMarginBottom)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	_, pageHeight := pdf.GetPageSize()
	for i, section := range sections {
		if len(section.Data.Headers) == 0 {
			return nil, fmt.Errorf("pdf section %d has no headers", i+1)
		}
		needed := 12 + pdfRowHeight*float64(len(section.Data.Rows)+1)
		if i > 0 && pdf.GetY()+needed > pageHeight-pdfMarginBottom {
			pdf.AddPage()
		}

		pdf.SetFont("Helvetica", "B", pdfHeadingSize)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 10, tr(section.Title), "", 1, "L", false, 0, "")
		pdf.Ln(2)

		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(0.2)

		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(128, 128, 128)
		pdf.SetTextColor(255, 255, 255)
		for _, header := range section.Data.Headers {
			pdf.CellFormat(pdfCellWidth, pdfRowHeight, tr(header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 10)
		pdf.SetFillColor(245, 245, 220)
		pdf.SetTextColor(0, 0, 0)
		for _, record := range section.Data.Records()[1:] {
			for _, value := range record {
				pdf.CellFormat(pdfCellWidth, pdfRowHeight, tr(value), "1", 0, "C", true, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
