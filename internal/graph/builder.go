// Package graph turns a company's routes and stops into a per-stop
// adjacency list of direct, same-route connections.
package graph

import (
	"fmt"
	"strings"

	"stopgraph/internal/transit"
)

// RouteSetPolicy decides which routes a merged connection lists.
type RouteSetPolicy int

const (
	// RouteSetAll keeps every route that connects the pair, at any cost.
	RouteSetAll RouteSetPolicy = iota
	// RouteSetMinCost keeps only the routes achieving the minimum cost.
	RouteSetMinCost
)

func (p RouteSetPolicy) String() string {
	switch p {
	case RouteSetMinCost:
		return "min-cost"
	default:
		return "all"
	}
}

// ParseRouteSetPolicy accepts "all" and "min-cost" (case-insensitive).
func ParseRouteSetPolicy(s string) (RouteSetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return RouteSetAll, nil
	case "min-cost", "mincost", "min":
		return RouteSetMinCost, nil
	}
	return RouteSetAll, fmt.Errorf("unknown route set policy %q", s)
}

// Candidate is one directed connection proposed by a single route.
type Candidate struct {
	From    string
	To      string
	Cost    int
	RouteID string
}

// Stats summarizes a build.
type Stats struct {
	Routes      int
	Stops       int
	Candidates  int
	Connections int
}

type Builder struct {
	policy RouteSetPolicy
}

type Option func(*Builder)

func WithRouteSetPolicy(p RouteSetPolicy) Option {
	return func(b *Builder) { b.policy = p }
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{policy: RouteSetAll}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Builder) Policy() RouteSetPolicy { return b.policy }

// Build returns fresh copies of stops whose connection mappings hold every
// stop reachable from them on a single route. The inputs are not modified.
func (b *Builder) Build(routes []transit.Route, stops []transit.Stop) ([]transit.Stop, error) {
	out, _, err := b.BuildWithStats(routes, stops)
	return out, err
}

func (b *Builder) BuildWithStats(routes []transit.Route, stops []transit.Stop) ([]transit.Stop, Stats, error) {
	out, index, err := indexStops(stops)
	if err != nil {
		return nil, Stats{}, err
	}
	for i := range out {
		out[i].Connections = make(map[string]*transit.Connection)
	}
	if err := checkRoutes(routes, index); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Routes: len(routes), Stops: len(out)}
	for _, r := range routes {
		for _, c := range Expand(r) {
			stats.Candidates++
			b.merge(out[index[c.From]].Connections, c)
		}
	}
	stats.Connections = transit.ConnectionCount(out)
	return out, stats, nil
}

// Expand lists the candidates a route offers: every listed stop reaches
// every later stop, at a cost equal to the number of positions between
// them. A route with n stops yields n*(n-1)/2 candidates. Entries marked
// NoBoarding still occupy a position but offer no outgoing candidates, and
// a route revisiting a stop never yields a connection to itself.
func Expand(r transit.Route) []Candidate {
	n := len(r.Stops)
	if n < 2 {
		return nil
	}
	out := make([]Candidate, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		from := r.Stops[i]
		if from.NoBoarding {
			continue
		}
		for j := i + 1; j < n; j++ {
			to := r.Stops[j].ID
			if to == from.ID {
				continue
			}
			out = append(out, Candidate{From: from.ID, To: to, Cost: j - i, RouteID: r.ID})
		}
	}
	return out
}

func (b *Builder) merge(conns map[string]*transit.Connection, c Candidate) {
	existing, ok := conns[c.To]
	if !ok {
		conns[c.To] = &transit.Connection{ID: c.To, Cost: c.Cost, Routes: []string{c.RouteID}}
		return
	}
	switch b.policy {
	case RouteSetMinCost:
		switch {
		case c.Cost < existing.Cost:
			existing.Cost = c.Cost
			existing.Routes = []string{c.RouteID}
		case c.Cost == existing.Cost:
			existing.Routes = addRoute(existing.Routes, c.RouteID)
		}
	default:
		existing.Routes = addRoute(existing.Routes, c.RouteID)
		if c.Cost < existing.Cost {
			existing.Cost = c.Cost
		}
	}
}

func addRoute(routes []string, id string) []string {
	for _, r := range routes {
		if r == id {
			return routes
		}
	}
	return append(routes, id)
}

// indexStops copies stops and maps each id to its position in the copy.
func indexStops(stops []transit.Stop) ([]transit.Stop, map[string]int, error) {
	out := make([]transit.Stop, len(stops))
	index := make(map[string]int, len(stops))
	for i, s := range stops {
		if _, dup := index[s.ID]; dup {
			return nil, nil, &DuplicateIDError{Kind: "stop", ID: s.ID}
		}
		index[s.ID] = i
		out[i] = s.Clone()
	}
	return out, index, nil
}

// checkRoutes rejects duplicate route ids and route entries pointing at
// stops outside the index. It runs before any merging so a failed build
// leaves nothing half-done.
func checkRoutes(routes []transit.Route, index map[string]int) error {
	seen := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		if _, dup := seen[r.ID]; dup {
			return &DuplicateIDError{Kind: "route", ID: r.ID}
		}
		seen[r.ID] = struct{}{}
		for pos, rs := range r.Stops {
			if _, ok := index[rs.ID]; !ok {
				return &MissingStopError{RouteID: r.ID, StopID: rs.ID, Position: pos}
			}
		}
	}
	return nil
}
