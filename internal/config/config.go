package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stopgraph/internal/db"
	"stopgraph/internal/graph"
	"stopgraph/internal/logging"
)

type Config struct {
	DBDriver    string
	DatabaseURL string // cluster DSN for pgx; the database name is replaced per operator
	SQLiteDir   string // one <database>.db file per operator

	SheetsDir     string // directory of CSV range exports; takes precedence over SpreadsheetID
	SpreadsheetID string
	GTFSSource    string // path or URL of a GTFS zip
	HTTPTimeout   time.Duration

	CatalogFile    string
	RouteSetPolicy graph.RouteSetPolicy

	NATSURL           string
	NATSSubjectPrefix string
	MetricsAddr       string

	RefreshInterval time.Duration

	LogLevel  slog.Level
	LogFormat string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.DBDriver = strings.ToLower(getenvDefault("DB_DRIVER", db.DriverPostgres))
	switch cfg.DBDriver {
	case db.DriverPostgres:
		dsn, err := postgresDSN()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	case db.DriverSQLite:
		cfg.SQLiteDir = getenvDefault("SQLITE_DIR", "data")
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER: %q (want pgx or sqlite)", cfg.DBDriver)
	}

	cfg.SheetsDir = os.Getenv("SHEETS_DIR")
	cfg.SpreadsheetID = firstNonEmpty(os.Getenv("SHEETS_SPREADSHEET_ID"), os.Getenv("SPREADSHEET_ID"))
	cfg.GTFSSource = os.Getenv("GTFS_SOURCE")

	if v := os.Getenv("HTTP_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SEC: %q", v)
		}
		cfg.HTTPTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.HTTPTimeout = 60 * time.Second
	}

	cfg.CatalogFile = os.Getenv("CATALOG_FILE")

	policy, err := graph.ParseRouteSetPolicy(os.Getenv("ROUTE_SET_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROUTE_SET_POLICY: %w", err)
	}
	cfg.RouteSetPolicy = policy

	// Empty NATS_URL disables snapshot notifications.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "stopgraph.snapshots")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if v := os.Getenv("REFRESH_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid REFRESH_INTERVAL_SEC: %q", v)
		}
		cfg.RefreshInterval = time.Duration(sec) * time.Second
	} else {
		cfg.RefreshInterval = 30 * time.Minute
	}

	level, err := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "text"))

	return cfg, nil
}

// postgresDSN prefers DATABASE_URL / PG_DSN, else builds one from PG* vars.
func postgresDSN() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	// The operator's database replaces this one; it only has to exist.
	dbName := getenvDefault("PGDATABASE", "postgres")
	if strings.TrimSpace(dbName) == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, dbName, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, dbName, sslmode), nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
