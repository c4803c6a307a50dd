// Package sheet reads the route and stop tabs of an operator's schedule
// spreadsheet and normalizes their rows into transit records.
package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RangeReader returns every row of a named spreadsheet range.
type RangeReader interface {
	ReadRange(ctx context.Context, rangeName string) ([][]string, error)
}

// DirReader reads ranges exported as <dir>/<range name>.csv.
type DirReader struct {
	Dir string
}

func (r DirReader) ReadRange(ctx context.Context, rangeName string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(r.Dir, rangeName+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open range %q: %w", rangeName, err)
	}
	defer f.Close()
	rows, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read range %q: %w", rangeName, err)
	}
	return rows, nil
}

const exportURL = "https://docs.google.com/spreadsheets/d/%s/gviz/tq?tqx=out:csv&sheet=%s"

// HTTPReader downloads the CSV export of a published spreadsheet tab.
type HTTPReader struct {
	SpreadsheetID string
	Client        *http.Client
	// URLFormat overrides the export URL; it receives the spreadsheet id and
	// the escaped range name.
	URLFormat string
}

func NewHTTPReader(spreadsheetID string, timeout time.Duration) *HTTPReader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPReader{
		SpreadsheetID: strings.TrimSpace(spreadsheetID),
		Client:        &http.Client{Timeout: timeout},
	}
}

func (r *HTTPReader) ReadRange(ctx context.Context, rangeName string) ([][]string, error) {
	if r.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheet reader: spreadsheet id is empty")
	}
	format := r.URLFormat
	if format == "" {
		format = exportURL
	}
	u := fmt.Sprintf(format, url.PathEscape(r.SpreadsheetID), url.QueryEscape(rangeName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sheet reader: build request: %w", err)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheet reader: fetch range %q: %w", rangeName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sheet reader: fetch range %q: unexpected status %s", rangeName, resp.Status)
	}
	rows, err := readCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sheet reader: parse range %q: %w", rangeName, err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // trailing empty cells are often dropped
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}
