package transit

import (
	"encoding/json"
	"sort"
)

type Route struct {
	ID            string      `json:"id"`
	Type          string      `json:"type"`
	Num           string      `json:"num"`
	Name          string      `json:"name"`
	DestinationID string      `json:"destinationId"`
	Stops         []RouteStop `json:"stops"` // travel order
}

type RouteStop struct {
	ID                  string `json:"id"`
	Meta1               string `json:"meta1"`
	Meta2               string `json:"meta2"`
	DisplayFullDestName bool   `json:"displayFullDestName"`
	SkipTo              string `json:"skipTo"`               // kept verbatim, never interpreted here
	NoBoarding          bool   `json:"noBoarding,omitempty"` // alighting only
}

type Stop struct {
	ID          string                 `json:"id"`
	Code        string                 `json:"code"`
	City        string                 `json:"city"`
	Name        string                 `json:"stopName"`
	Keywords    string                 `json:"keywords"`
	Connections map[string]*Connection `json:"-"` // destination stop id -> connection
	Routes      []RouteRef             `json:"routes"`
}

// Connection is a direct, single-route edge to another stop.
type Connection struct {
	ID     string   `json:"id"`     // destination stop id
	Cost   int      `json:"cost"`   // hop count, >= 1
	Routes []string `json:"routes"` // set semantics
}

// RouteRef is the trimmed route metadata attached to the stops a route serves.
type RouteRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Num  string `json:"num"`
}

// SortedConnections returns the stop's connections ordered by destination id.
func (s Stop) SortedConnections() []Connection {
	out := make([]Connection, 0, len(s.Connections))
	for _, c := range s.Connections {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clone returns a copy of the stop with no storage shared with the original.
func (s Stop) Clone() Stop {
	c := s
	c.Connections = make(map[string]*Connection, len(s.Connections))
	for id, conn := range s.Connections {
		cp := *conn
		cp.Routes = append([]string(nil), conn.Routes...)
		c.Connections[id] = &cp
	}
	c.Routes = append([]RouteRef(nil), s.Routes...)
	return c
}

// ConnectionCount sums the connections held by all stops.
func ConnectionCount(stops []Stop) int {
	n := 0
	for _, s := range stops {
		n += len(s.Connections)
	}
	return n
}

type stopDocument struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	City        string       `json:"city"`
	Name        string       `json:"stopName"`
	Keywords    string       `json:"keywords"`
	Connections []Connection `json:"connections"`
	Routes      []RouteRef   `json:"routes"`
}

// MarshalJSON encodes the connection mapping as an array sorted by destination.
func (s Stop) MarshalJSON() ([]byte, error) {
	routes := s.Routes
	if routes == nil {
		routes = []RouteRef{}
	}
	return json.Marshal(stopDocument{
		ID:          s.ID,
		Code:        s.Code,
		City:        s.City,
		Name:        s.Name,
		Keywords:    s.Keywords,
		Connections: s.SortedConnections(),
		Routes:      routes,
	})
}

func (s *Stop) UnmarshalJSON(b []byte) error {
	var doc stopDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	*s = Stop{
		ID:          doc.ID,
		Code:        doc.Code,
		City:        doc.City,
		Name:        doc.Name,
		Keywords:    doc.Keywords,
		Connections: ConnectionMap(doc.Connections),
		Routes:      doc.Routes,
	}
	return nil
}

// ConnectionMap indexes a connection list by destination id. Later entries
// for the same destination replace earlier ones.
func ConnectionMap(conns []Connection) map[string]*Connection {
	m := make(map[string]*Connection, len(conns))
	for i := range conns {
		c := conns[i]
		m[c.ID] = &c
	}
	return m
}
