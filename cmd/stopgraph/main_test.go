package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stopgraph/internal/catalog"
	"stopgraph/internal/config"
	"stopgraph/internal/db"
	"stopgraph/internal/graph"
)

const railRoutes = `ID,Type,Num,Name,Destination,Stop,Meta1,Meta2,Full dest,Skip to,Boarding
R1,rail,1,Coastal Line,C,A,,,,,
,,,,,B,,,,,
,,,,,C,,,,,
`

const railStops = `ID,Code,City,Name,Adjacent,Route,Cost,Keywords
A,AAA,Springfield,Alpha,,,,alpha
B,BBB,Springfield,Beta,,,,beta
C,CCC,Shelbyville,Gamma,,,,gamma
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	sheets := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sheets, "rail routes.csv"), []byte(railRoutes), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sheets, "rail stops.csv"), []byte(railStops), 0o644))
	return &config.Config{
		DBDriver:        db.DriverSQLite,
		SQLiteDir:       filepath.Join(t.TempDir(), "data"),
		SheetsDir:       sheets,
		HTTPTimeout:     time.Second,
		RouteSetPolicy:  graph.RouteSetAll,
		RefreshInterval: time.Minute,
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunThenStatus(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, options{operator: "intra", status: true}, quiet(), &out))
	assert.Contains(t, out.String(), "intra/rail")
	assert.Contains(t, out.String(), "-")

	require.NoError(t, run(ctx, cfg, options{operator: "intra", source: "sheet"}, quiet(), io.Discard))
	require.NoError(t, run(ctx, cfg, options{operator: "intra", mode: "rail", enrichOnly: true}, quiet(), io.Discard))

	out.Reset()
	require.NoError(t, run(ctx, cfg, options{operator: "intra", mode: "rail", status: true}, quiet(), &out))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	fields := bytes.Fields(lines[1])
	require.GreaterOrEqual(t, len(fields), 5)
	assert.Equal(t, "intra/rail", string(fields[0]))
	assert.Equal(t, "1", string(fields[2]), "routes")
	assert.Equal(t, "3", string(fields[3]), "stops")
	assert.Equal(t, "3", string(fields[4]), "connections")

	_, err := os.Stat(filepath.Join(cfg.SQLiteDir, "intraRoute.db"))
	assert.NoError(t, err)
}

func TestRunRejectsBadInput(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	err := run(ctx, cfg, options{operator: "intra", mode: "bus", source: "sheet"}, quiet(), io.Discard)
	assert.ErrorIs(t, err, catalog.ErrNotImplemented)

	err = run(ctx, cfg, options{operator: "nope", source: "sheet"}, quiet(), io.Discard)
	assert.ErrorIs(t, err, catalog.ErrUnknown)

	err = run(ctx, cfg, options{operator: "blu", source: "sheet"}, quiet(), io.Discard)
	assert.ErrorIs(t, err, catalog.ErrNotImplemented)

	err = run(ctx, cfg, options{operator: "intra", source: "carrier-pigeon"}, quiet(), io.Discard)
	assert.Error(t, err)
}

func TestRunSheetWithoutLocation(t *testing.T) {
	cfg := testConfig(t)
	cfg.SheetsDir = ""

	err := run(context.Background(), cfg, options{operator: "intra", source: "sheet"}, quiet(), io.Discard)
	assert.ErrorContains(t, err, "SPREADSHEET_ID")
}

func TestWatchStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, options{operator: "intra", source: "sheet", watch: true}, quiet(), io.Discard)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch mode did not stop")
	}
}
