package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"stopgraph/internal/catalog"
	"stopgraph/internal/logging"
	"stopgraph/internal/transit"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store persists route and stop snapshots, one table pair per target.
type Store struct {
	db     *sql.DB
	driver string

	Logger *slog.Logger
	Now    func() time.Time
}

func NewStore(sqlDB *sql.DB, driver string) *Store {
	return &Store{db: sqlDB, driver: driver, Logger: slog.Default(), Now: time.Now}
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tables(t catalog.Target) (routes, stops string, err error) {
	routes, stops = t.RouteTable(), t.StopTable()
	if !identRe.MatchString(routes) {
		return "", "", fmt.Errorf("invalid route table name %q for %s", routes, t)
	}
	if !identRe.MatchString(stops) {
		return "", "", fmt.Errorf("invalid stop table name %q for %s", stops, t)
	}
	return routes, stops, nil
}

// EnsureSchema creates the target's tables and the run ledger if missing.
func (s *Store) EnsureSchema(ctx context.Context, t catalog.Target) error {
	routes, stops, err := tables(t)
	if err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + routes + ` (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	type TEXT NOT NULL,
	num TEXT NOT NULL,
	name TEXT NOT NULL,
	destination_id TEXT NOT NULL,
	stops TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + stops + ` (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	code TEXT NOT NULL,
	city TEXT NOT NULL,
	name TEXT NOT NULL,
	keywords TEXT NOT NULL,
	connections TEXT NOT NULL,
	routes TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS snapshot_runs (
	run_id TEXT PRIMARY KEY,
	operator TEXT NOT NULL,
	mode TEXT NOT NULL,
	route_count INTEGER NOT NULL,
	stop_count INTEGER NOT NULL,
	connection_count INTEGER NOT NULL,
	imported_at TEXT NOT NULL
)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema for %s: %w", t, err)
		}
	}
	return nil
}

// ReplaceSnapshot swaps both collections of a target and records the run,
// all in one transaction. Readers see either the old or the new snapshot.
func (s *Store) ReplaceSnapshot(ctx context.Context, t catalog.Target, routes []transit.Route, stops []transit.Stop, runID string) error {
	routeTable, stopTable, err := tables(t)
	if err != nil {
		return err
	}
	return s.inTx(ctx, "replace_snapshot", func(tx *sql.Tx) error {
		if err := s.writeRoutes(ctx, tx, routeTable, routes); err != nil {
			return err
		}
		if err := s.writeStops(ctx, tx, stopTable, stops); err != nil {
			return err
		}
		run := Run{
			ID:          runID,
			Operator:    t.Operator,
			Mode:        t.Mode,
			Routes:      len(routes),
			Stops:       len(stops),
			Connections: transit.ConnectionCount(stops),
			ImportedAt:  s.Now().UTC(),
		}
		return s.recordRun(ctx, tx, run)
	})
}

// ReplaceRoutes swaps only the route collection of a target.
func (s *Store) ReplaceRoutes(ctx context.Context, t catalog.Target, routes []transit.Route) error {
	table, _, err := tables(t)
	if err != nil {
		return err
	}
	return s.inTx(ctx, "replace_routes", func(tx *sql.Tx) error {
		return s.writeRoutes(ctx, tx, table, routes)
	})
}

// ReplaceStops swaps only the stop collection of a target.
func (s *Store) ReplaceStops(ctx context.Context, t catalog.Target, stops []transit.Stop) error {
	_, table, err := tables(t)
	if err != nil {
		return err
	}
	return s.inTx(ctx, "replace_stops", func(tx *sql.Tx) error {
		return s.writeStops(ctx, tx, table, stops)
	})
}

func (s *Store) inTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", operation, err)
	}
	defer logging.SafeRollbackWithLogging(tx, s.logger(), operation)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", operation, err)
	}
	return nil
}

func (s *Store) writeRoutes(ctx context.Context, tx *sql.Tx, table string, routes []transit.Route) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO `+table+
		` (id, position, type, num, name, destination_id, stops) VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table, err)
	}
	defer logging.SafeCloseWithLogging(stmt, s.logger(), "insert_routes")

	for i, r := range routes {
		routeStops := r.Stops
		if routeStops == nil {
			routeStops = []transit.RouteStop{}
		}
		doc, err := json.Marshal(routeStops)
		if err != nil {
			return fmt.Errorf("encode stops of route %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, i, r.Type, r.Num, r.Name, r.DestinationID, string(doc)); err != nil {
			return fmt.Errorf("insert route %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *Store) writeStops(ctx context.Context, tx *sql.Tx, table string, stops []transit.Stop) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO `+table+
		` (id, position, code, city, name, keywords, connections, routes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table, err)
	}
	defer logging.SafeCloseWithLogging(stmt, s.logger(), "insert_stops")

	for i, st := range stops {
		conns, err := json.Marshal(st.SortedConnections())
		if err != nil {
			return fmt.Errorf("encode connections of stop %s: %w", st.ID, err)
		}
		refs := st.Routes
		if refs == nil {
			refs = []transit.RouteRef{}
		}
		routes, err := json.Marshal(refs)
		if err != nil {
			return fmt.Errorf("encode routes of stop %s: %w", st.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, st.ID, i, st.Code, st.City, st.Name, st.Keywords, string(conns), string(routes)); err != nil {
			return fmt.Errorf("insert stop %s: %w", st.ID, err)
		}
	}
	return nil
}

// FetchRoutes reads a target's persisted routes in their original order.
func (s *Store) FetchRoutes(ctx context.Context, t catalog.Target) ([]transit.Route, error) {
	table, _, err := tables(t)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, num, name, destination_id, stops FROM `+table+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []transit.Route
	for rows.Next() {
		var r transit.Route
		var doc string
		if err := rows.Scan(&r.ID, &r.Type, &r.Num, &r.Name, &r.DestinationID, &doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(doc), &r.Stops); err != nil {
			return nil, fmt.Errorf("decode stops of route %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchStops reads a target's persisted stops, connections included.
func (s *Store) FetchStops(ctx context.Context, t catalog.Target) ([]transit.Stop, error) {
	_, table, err := tables(t)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, city, name, keywords, connections, routes FROM `+table+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []transit.Stop
	for rows.Next() {
		var st transit.Stop
		var conns, refs string
		if err := rows.Scan(&st.ID, &st.Code, &st.City, &st.Name, &st.Keywords, &conns, &refs); err != nil {
			return nil, err
		}
		var list []transit.Connection
		if err := json.Unmarshal([]byte(conns), &list); err != nil {
			return nil, fmt.Errorf("decode connections of stop %s: %w", st.ID, err)
		}
		st.Connections = transit.ConnectionMap(list)
		if err := json.Unmarshal([]byte(refs), &st.Routes); err != nil {
			return nil, fmt.Errorf("decode routes of stop %s: %w", st.ID, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
