// Package catalog maps an operator and travel mode to the spreadsheet
// ranges, document collections and database tables that hold its data.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknown        = errors.New("unknown operator or mode")
	ErrNotImplemented = errors.New("operator/mode not implemented")
)

const (
	OperatorIntra = "intra"
	OperatorBlu   = "blu"

	ModeRail = "rail"
	ModeBus  = "bus"
	ModeAir  = "air"
	ModeSail = "sail"
)

// Modes in the order an operator-wide update processes them.
var Modes = []string{ModeRail, ModeBus, ModeAir, ModeSail}

// Target is everything needed to read and write one operator+mode.
type Target struct {
	Operator        string `yaml:"operator" validate:"required,alphanum"`
	Mode            string `yaml:"mode" validate:"required,oneof=rail bus air sail"`
	Database        string `yaml:"database" validate:"required"`
	RouteRange      string `yaml:"routeRange" validate:"required"`
	StopRange       string `yaml:"stopRange" validate:"required"`
	RouteCollection string `yaml:"routeCollection" validate:"required"`
	StopCollection  string `yaml:"stopCollection" validate:"required"`
	SpreadsheetID   string `yaml:"spreadsheetId"`
	GTFSSource      string `yaml:"gtfsSource"`
	Enabled         bool   `yaml:"enabled"`
}

func (t Target) String() string { return t.Operator + "/" + t.Mode }

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// RouteTable is the SQL table holding the target's routes, e.g. intra_rail_routes.
func (t Target) RouteTable() string { return tableName(t.RouteCollection) }

// StopTable is the SQL table holding the target's stops, e.g. intra_rail_stops.
func (t Target) StopTable() string { return tableName(t.StopCollection) }

func tableName(collection string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(collection, "${1}_${2}"))
}

// Catalog is a static lookup of targets keyed by operator then mode.
type Catalog struct {
	targets map[string]map[string]Target
}

// Default returns the built-in catalog. Only intra rail is implemented;
// blu and the non-rail modes are reserved.
func Default() *Catalog {
	c := &Catalog{targets: make(map[string]map[string]Target)}
	dbs := map[string]string{OperatorIntra: "intraRoute", OperatorBlu: "bluTransit"}
	for _, op := range []string{OperatorIntra, OperatorBlu} {
		for _, mode := range Modes {
			title := strings.ToUpper(mode[:1]) + mode[1:]
			c.put(Target{
				Operator:        op,
				Mode:            mode,
				Database:        dbs[op],
				RouteRange:      mode + " routes",
				StopRange:       mode + " stops",
				RouteCollection: op + title + "Routes",
				StopCollection:  op + title + "Stops",
				Enabled:         op == OperatorIntra && mode == ModeRail,
			})
		}
	}
	return c
}

func (c *Catalog) put(t Target) {
	if c.targets[t.Operator] == nil {
		c.targets[t.Operator] = make(map[string]Target)
	}
	c.targets[t.Operator][t.Mode] = t
}

// Lookup returns the enabled target for operator+mode.
func (c *Catalog) Lookup(operator, mode string) (Target, error) {
	modes, ok := c.targets[operator]
	if !ok {
		return Target{}, fmt.Errorf("%w: operator %q", ErrUnknown, operator)
	}
	t, ok := modes[mode]
	if !ok {
		return Target{}, fmt.Errorf("%w: mode %q", ErrUnknown, mode)
	}
	if !t.Enabled {
		return Target{}, fmt.Errorf("%w: %s", ErrNotImplemented, t)
	}
	return t, nil
}

// Targets returns the enabled targets of an operator in mode order.
func (c *Catalog) Targets(operator string) ([]Target, error) {
	modes, ok := c.targets[operator]
	if !ok {
		return nil, fmt.Errorf("%w: operator %q", ErrUnknown, operator)
	}
	var out []Target
	for _, m := range Modes {
		if t, ok := modes[m]; ok && t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

// Modes lists the implemented modes of an operator.
func (c *Catalog) Modes(operator string) ([]string, error) {
	targets, err := c.Targets(operator)
	if err != nil {
		return nil, err
	}
	modes := make([]string, 0, len(targets))
	for _, t := range targets {
		modes = append(modes, t.Mode)
	}
	return modes, nil
}

type overrideFile struct {
	Targets []Target `yaml:"targets" validate:"dive"`
}

// LoadOverrides merges the targets listed in a YAML file into the catalog,
// replacing built-in entries with the same operator and mode.
func (c *Catalog) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog file: %w", err)
	}
	v := validator.New()
	if err := v.Struct(f); err != nil {
		return fmt.Errorf("validate catalog file: %w", err)
	}
	for _, t := range f.Targets {
		if !identRe.MatchString(t.RouteTable()) || !identRe.MatchString(t.StopTable()) {
			return fmt.Errorf("catalog target %s: collection names must be identifiers", t)
		}
		c.put(t)
	}
	return nil
}
