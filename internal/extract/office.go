package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/unidoc/unioffice/v2/document"
	"github.com/xuri/excelize/v2"

	"aide/internal/errs"
)

// DocxExtractor extracts paragraph text from Word documents.
type DocxExtractor struct{}

// NewDocxExtractor creates a DocxExtractor.
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

func (e *DocxExtractor) AcceptedExtensions() []string {
	return []string{".docx"}
}

func (e *DocxExtractor) AcceptedMimeTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
}

// Extract walks every paragraph run. Office documents have no page structure
// worth capping; size is already bounded by the upload limit.
func (e *DocxExtractor) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &errs.ExtractionError{Filename: filename, Err: fmt.Errorf("failed to open docx: %w", err)}
	}
	defer doc.Close()

	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n")
	}
	return &Result{Text: sb.String()}, nil
}

var _ Extractor = (*DocxExtractor)(nil)

// SpreadsheetExtractor flattens workbook cells into tab-separated text, one
// sheet after another.
type SpreadsheetExtractor struct{}

// NewSpreadsheetExtractor creates a SpreadsheetExtractor.
func NewSpreadsheetExtractor() *SpreadsheetExtractor {
	return &SpreadsheetExtractor{}
}

func (e *SpreadsheetExtractor) AcceptedExtensions() []string {
	return []string{".xlsx", ".xlsm"}
}

func (e *SpreadsheetExtractor) AcceptedMimeTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
}

func (e *SpreadsheetExtractor) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &errs.ExtractionError{Filename: filename, Err: fmt.Errorf("failed to open spreadsheet: %w", err)}
	}
	defer wb.Close()

	var sb strings.Builder
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			// A broken sheet must not lose the rest of the workbook.
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s\n", sheet))
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return &Result{Text: sb.String()}, nil
}

var _ Extractor = (*SpreadsheetExtractor)(nil)
