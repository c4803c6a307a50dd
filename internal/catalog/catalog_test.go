package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLookup(t *testing.T) {
	c := Default()

	t.Run("intra rail is implemented", func(t *testing.T) {
		tg, err := c.Lookup("intra", "rail")
		require.NoError(t, err)
		assert.Equal(t, "intraRoute", tg.Database)
		assert.Equal(t, "rail routes", tg.RouteRange)
		assert.Equal(t, "rail stops", tg.StopRange)
		assert.Equal(t, "intraRailRoutes", tg.RouteCollection)
		assert.Equal(t, "intraRailStops", tg.StopCollection)
		assert.Equal(t, "intra_rail_routes", tg.RouteTable())
		assert.Equal(t, "intra_rail_stops", tg.StopTable())
	})

	t.Run("reserved modes are not implemented", func(t *testing.T) {
		_, err := c.Lookup("intra", "bus")
		assert.ErrorIs(t, err, ErrNotImplemented)
		_, err = c.Lookup("blu", "rail")
		assert.ErrorIs(t, err, ErrNotImplemented)
	})

	t.Run("unknown operator and mode", func(t *testing.T) {
		_, err := c.Lookup("omega", "rail")
		assert.ErrorIs(t, err, ErrUnknown)
		_, err = c.Lookup("intra", "hyperloop")
		assert.ErrorIs(t, err, ErrUnknown)
	})

	t.Run("operator targets list only enabled modes", func(t *testing.T) {
		ts, err := c.Targets("intra")
		require.NoError(t, err)
		require.Len(t, ts, 1)
		assert.Equal(t, "intra/rail", ts[0].String())

		ts, err = c.Targets("blu")
		require.NoError(t, err)
		assert.Empty(t, ts)
	})

	t.Run("modes", func(t *testing.T) {
		modes, err := c.Modes("intra")
		require.NoError(t, err)
		assert.Equal(t, []string{"rail"}, modes)

		_, err = c.Modes("nope")
		assert.ErrorIs(t, err, ErrUnknown)
	})
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()

	t.Run("enables a reserved target", func(t *testing.T) {
		path := filepath.Join(dir, "catalog.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - operator: blu
    mode: bus
    database: bluTransit
    routeRange: bus routes
    stopRange: bus stops
    routeCollection: bluBusRoutes
    stopCollection: bluBusStops
    spreadsheetId: sheet-123
    enabled: true
`), 0o644))

		c := Default()
		require.NoError(t, c.LoadOverrides(path))
		tg, err := c.Lookup("blu", "bus")
		require.NoError(t, err)
		assert.Equal(t, "sheet-123", tg.SpreadsheetID)
		assert.Equal(t, "blu_bus_stops", tg.StopTable())
	})

	t.Run("rejects invalid targets", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - operator: blu
    mode: teleport
    database: bluTransit
`), 0o644))

		err := Default().LoadOverrides(path)
		assert.Error(t, err)
	})

	t.Run("rejects collection names that are not identifiers", func(t *testing.T) {
		path := filepath.Join(dir, "inject.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - operator: blu
    mode: bus
    database: bluTransit
    routeRange: bus routes
    stopRange: bus stops
    routeCollection: "routes; DROP TABLE x"
    stopCollection: bluBusStops
`), 0o644))

		err := Default().LoadOverrides(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, Default().LoadOverrides(filepath.Join(dir, "nope.yml")))
	})
}
