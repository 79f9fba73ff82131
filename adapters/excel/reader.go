package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/errors"
)

// DataReader reads a local CSV or XLSX file; it implements ports.TableSourcePort
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	config   ReaderConfig
	logger   *internal.Logger
}

// NewDataReader creates a reader, choosing the format from the file extension
func NewDataReader(filePath string, config ReaderConfig, logger *internal.Logger) *DataReader {
	return &DataReader{
		filePath: filePath,
		fileType: FileType(filePath),
		config:   config,
		logger:   logger.OrDefault("DataReader"),
	}
}

// FileType returns "xlsx" for workbook extensions and "csv" otherwise
func FileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx":
		return "xlsx"
	}
	return "csv"
}

// Describe names the source
func (r *DataReader) Describe() string {
	return r.fileType + " file " + r.filePath
}

// Fetch reads the whole file
func (r *DataReader) Fetch(ctx context.Context) (*survey.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.logger.Info("reading %s file: %s", r.fileType, r.filePath)

	readStart := time.Now()
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.ConfigInvalidf(err, "%s file not readable: %s", strings.ToUpper(r.fileType), r.filePath)
	}
	defer file.Close()

	var table *survey.RawTable
	switch r.fileType {
	case "xlsx":
		table, err = ParseXLSX(file, r.config)
	default:
		table, err = ParseCSV(file, r.config)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("%s file read in %.2fms (%d columns, %d rows)", strings.ToUpper(r.fileType),
		float64(time.Since(readStart).Nanoseconds())/1e6, len(table.Headers), table.RowCount())
	return table, nil
}

// ParseCSV reads delimited text with a header row
func ParseCSV(in io.Reader, config ReaderConfig) (*survey.RawTable, error) {
	reader := csv.NewReader(in)
	if config.Delimiter != 0 {
		reader.Comma = config.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to parse CSV: %w", err))
	}
	return BuildTable(rows, config)
}

// ParseXLSX reads the configured sheet (or the first one) of a workbook
func ParseXLSX(in io.Reader, config ReaderConfig) (*survey.RawTable, error) {
	f, err := excelize.OpenReader(in)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to open workbook: %w", err))
	}
	defer f.Close()

	sheet := config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.InvalidInput("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to read sheet %q: %w", sheet, err))
	}
	return BuildTable(rows, config)
}

// ParseBytes dispatches on format: "csv" or "xlsx"
func ParseBytes(data []byte, format string, config ReaderConfig) (*survey.RawTable, error) {
	switch format {
	case "xlsx":
		return ParseXLSX(bytes.NewReader(data), config)
	case "csv", "":
		return ParseCSV(bytes.NewReader(data), config)
	}
	return nil, errors.InvalidInput(fmt.Sprintf("unsupported format %q", format))
}

// BuildTable turns string rows into a raw table. The first row is the
// header; headers are kept verbatim except for a leading byte-order mark,
// and repeated headers become "name.1", "name.2". Cells equal to a missing
// marker (or blank) are missing.
func BuildTable(rows [][]string, config ReaderConfig) (*survey.RawTable, error) {
	if len(rows) == 0 {
		return nil, errors.InvalidInput("table has no header row")
	}

	headerRow := append([]string(nil), rows[0]...)
	if len(headerRow) > 0 {
		headerRow[0] = strings.TrimPrefix(headerRow[0], "\ufeff")
	}
	headers := MangleDuplicateHeaders(headerRow)

	markers := config.markerSet()
	data := make([][]survey.Cell, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		cells := make([]survey.Cell, len(row))
		for j, text := range row {
			if _, missing := markers[text]; missing {
				cells[j] = survey.MissingCell()
				continue
			}
			cells[j] = survey.NewCell(text)
		}
		data = append(data, cells)
	}

	return survey.NewRawTable(headers, data), nil
}

// MangleDuplicateHeaders renames repeated headers so every name is unique:
// the second "x" becomes "x.1", the third "x.2", skipping names in use.
func MangleDuplicateHeaders(headers []string) []string {
	out := make([]string, len(headers))
	used := make(map[string]struct{}, len(headers))
	counts := make(map[string]int, len(headers))

	for i, h := range headers {
		name := h
		if _, dup := used[name]; dup {
			n := counts[h]
			for {
				n++
				name = h + "." + strconv.Itoa(n)
				if _, taken := used[name]; !taken {
					break
				}
			}
			counts[h] = n
		}
		used[name] = struct{}{}
		out[i] = name
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
