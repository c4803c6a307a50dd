package graph

import "stopgraph/internal/transit"

// AttachRoutes returns copies of stops where each stop lists the routes
// serving it. A route that visits a stop more than once is listed once.
// Existing route lists are replaced, not extended.
func AttachRoutes(routes []transit.Route, stops []transit.Stop) ([]transit.Stop, error) {
	out, index, err := indexStops(stops)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Routes = nil
	}
	if err := checkRoutes(routes, index); err != nil {
		return nil, err
	}

	for _, r := range routes {
		ref := transit.RouteRef{ID: r.ID, Type: r.Type, Num: r.Num}
		attached := make(map[string]bool, len(r.Stops))
		for _, rs := range r.Stops {
			if attached[rs.ID] {
				continue
			}
			attached[rs.ID] = true
			s := &out[index[rs.ID]]
			s.Routes = append(s.Routes, ref)
		}
	}
	return out, nil
}
