// Package tabfile decodes uploaded tabular files (delimited text or
// spreadsheet workbooks) into a flat, ordered sequence of records keyed by
// header name. Every import path consumes this one shape.
package tabfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Record is one parsed row: header name to cell value. Cells missing from a
// short row are nil; cells beyond the header are dropped.
type Record = map[string]any

// Parse decodes a file buffer based on its filename extension. Unknown
// extensions fall back to a CSV parse attempt.
func Parse(buf []byte, filename string) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(buf)
	case ".xls", ".xlsx":
		return parseWorkbook(buf)
	default:
		records, err := parseCSV(buf)
		if err != nil {
			return nil, errors.New("unsupported file type or parse error")
		}
		return records, nil
	}
}

func parseCSV(buf []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(buf))
	r.FieldsPerRecord = -1 // tolerate ragged rows
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// skip unparseable rows rather than failing the file
			continue
		}
		if isBlank(row) {
			continue
		}

		rec := make(Record, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				rec[name] = strings.TrimSpace(row[i])
			} else {
				rec[name] = nil
			}
		}
		records = append(records, rec)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func parseWorkbook(buf []byte) ([]Record, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return []Record{}, nil
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return []Record{}, nil
	}

	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				rec[name] = strings.TrimSpace(row[i])
			} else {
				rec[name] = nil
			}
		}
		records = append(records, rec)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
