package sheet

import (
	"context"

	"stopgraph/internal/catalog"
	"stopgraph/internal/transit"
)

// Source is a row source backed by a spreadsheet. The same reader serves
// every target; the target picks the range names.
type Source struct {
	Reader RangeReader
}

func (s *Source) FetchRoutes(ctx context.Context, t catalog.Target) ([]transit.Route, error) {
	rows, err := s.reader(t).ReadRange(ctx, t.RouteRange)
	if err != nil {
		return nil, err
	}
	return ParseRoutes(t.RouteRange, rows)
}

func (s *Source) FetchStops(ctx context.Context, t catalog.Target) ([]transit.Stop, error) {
	rows, err := s.reader(t).ReadRange(ctx, t.StopRange)
	if err != nil {
		return nil, err
	}
	return ParseStops(t.StopRange, rows)
}

// reader points an HTTP reader at the target's own spreadsheet when the
// catalog names one.
func (s *Source) reader(t catalog.Target) RangeReader {
	if hr, ok := s.Reader.(*HTTPReader); ok && t.SpreadsheetID != "" && t.SpreadsheetID != hr.SpreadsheetID {
		cp := *hr
		cp.SpreadsheetID = t.SpreadsheetID
		return &cp
	}
	return s.Reader
}
