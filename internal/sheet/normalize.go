package sheet

import (
	"fmt"
	"strings"

	"stopgraph/internal/transit"
)

// Route range columns. A row with an ID starts a route; rows without one
// append further stops to the route above.
const (
	colRouteID = iota
	colRouteType
	colRouteNum
	colRouteName
	colRouteDestination
	colRouteStopID
	colRouteStopMeta1
	colRouteStopMeta2
	colRouteStopFullDest
	colRouteStopSkipTo
	colRouteStopBoarding
)

// Stop range columns. Columns 4-6 hold hand-authored adjacency from older
// sheets; connections are always rebuilt, so they are not read.
const (
	colStopID = iota
	colStopCode
	colStopCity
	colStopName
	_ // adjacent stop id
	_ // adjacent route
	_ // adjacent cost
	colStopKeywords
)

// RowError locates a malformed row (1-based, as shown in the sheet).
type RowError struct {
	Range string
	Row   int
	Msg   string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("range %q row %d: %s", e.Range, e.Row, e.Msg)
}

// ParseRoutes normalizes the rows of a route range.
func ParseRoutes(rangeName string, rows [][]string) ([]transit.Route, error) {
	var routes []transit.Route
	for i, row := range rows {
		if isHeader(row) {
			continue
		}
		stopID := cell(row, colRouteStopID)
		if stopID == "" {
			continue
		}

		if id := cell(row, colRouteID); id != "" {
			routes = append(routes, transit.Route{
				ID:            id,
				Type:          cell(row, colRouteType),
				Num:           cell(row, colRouteNum),
				Name:          cell(row, colRouteName),
				DestinationID: cell(row, colRouteDestination),
			})
		} else if len(routes) == 0 {
			return nil, &RowError{Range: rangeName, Row: i + 1, Msg: "stop row before any route id"}
		}

		last := &routes[len(routes)-1]
		last.Stops = append(last.Stops, transit.RouteStop{
			ID:                  stopID,
			Meta1:               cell(row, colRouteStopMeta1),
			Meta2:               cell(row, colRouteStopMeta2),
			DisplayFullDestName: strings.EqualFold(cell(row, colRouteStopFullDest), "yes"),
			SkipTo:              cell(row, colRouteStopSkipTo),
			NoBoarding:          strings.EqualFold(cell(row, colRouteStopBoarding), "no"),
		})
	}
	return routes, nil
}

// ParseStops normalizes the rows of a stop range.
func ParseStops(rangeName string, rows [][]string) ([]transit.Stop, error) {
	var stops []transit.Stop
	seen := make(map[string]int)
	for i, row := range rows {
		if isHeader(row) {
			continue
		}
		id := cell(row, colStopID)
		if id == "" {
			continue
		}
		if first, dup := seen[id]; dup {
			return nil, &RowError{Range: rangeName, Row: i + 1, Msg: fmt.Sprintf("stop %q already defined on row %d", id, first)}
		}
		seen[id] = i + 1
		stops = append(stops, transit.Stop{
			ID:       id,
			Code:     cell(row, colStopCode),
			City:     cell(row, colStopCity),
			Name:     cell(row, colStopName),
			Keywords: cell(row, colStopKeywords),
		})
	}
	return stops, nil
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.TrimSpace(row[0]) == "ID"
}

// cell returns the trimmed value at i; missing cells and the literal
// "null" read as empty.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if v == "null" {
		return ""
	}
	return v
}
