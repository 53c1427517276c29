package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/alttext/internal/models"
	"github.com/parquet-go/parquet-go"
)

// Header is the first CSV row
var Header = []string{"filename", "alt_text", "chars"}

// Format of an exported result file
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// FormatFromPath picks the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case "", ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s (supported: .csv, .parquet)", filepath.Ext(path))
	}
}

// Write serialises results in the given format.
func Write(w io.Writer, format Format, results []models.Result) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, results)
	case FormatParquet:
		return WriteParquet(w, results)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// WriteCSV writes the header and one row per result.
func WriteCSV(w io.Writer, results []models.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write([]string{r.Name, r.Text, strconv.Itoa(r.Chars)}); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", r.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]models.Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty CSV file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, col := range Header {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("unexpected CSV header %v, expected %v", header, Header)
		}
	}

	var results []models.Result
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		chars, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("invalid chars value on line %d: %w", line, err)
		}
		results = append(results, models.Result{Name: row[0], Text: row[1], Chars: chars})
	}

	return results, nil
}

// Row is the Parquet schema of an exported result
type Row struct {
	Filename string `parquet:"filename"`
	AltText  string `parquet:"alt_text"`
	Chars    int64  `parquet:"chars"`
}

// WriteParquet writes results as a single row group Parquet file.
func WriteParquet(w io.Writer, results []models.Result) error {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{Filename: r.Name, AltText: r.Text, Chars: int64(r.Chars)}
	}

	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
