// Package pipeline runs the update flow of one operator+mode: fetch the
// source rows, build connections, attach routes and replace the stored
// snapshot. Nothing is persisted unless every earlier step succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stopgraph/internal/catalog"
	"stopgraph/internal/graph"
	"stopgraph/internal/logging"
	"stopgraph/internal/publisher"
	"stopgraph/internal/transit"
)

type RowSource interface {
	FetchRoutes(ctx context.Context, t catalog.Target) ([]transit.Route, error)
	FetchStops(ctx context.Context, t catalog.Target) ([]transit.Stop, error)
}

type GraphStore interface {
	ReplaceSnapshot(ctx context.Context, t catalog.Target, routes []transit.Route, stops []transit.Stop, runID string) error
}

type Notifier interface {
	PublishSnapshot(ctx context.Context, msg publisher.SnapshotMessage) error
}

type Metrics interface {
	RunSucceeded(target string, routes, stops, connections int, at time.Time)
	RunFailed(target, stage string)
	BuildObserve(d time.Duration)
	PersistObserve(d time.Duration)
}

// Stages reported on failure.
const (
	StageFetchRoutes = "fetch_routes"
	StageFetchStops  = "fetch_stops"
	StageBuild       = "build"
	StageEnrich      = "enrich"
	StagePersist     = "persist"
)

// ErrStoreNotReadable is returned by Enrich when the store cannot serve
// its own snapshot back.
var ErrStoreNotReadable = errors.New("pipeline: store cannot be read back")

// StageError names the step a run failed in.
type StageError struct {
	Target catalog.Target
	Stage  string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Target, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Updater wires the collaborators of a run. Notifier and Metrics are optional.
type Updater struct {
	Source   RowSource
	Store    GraphStore
	Builder  *graph.Builder
	Notifier Notifier
	Metrics  Metrics
	Logger   *slog.Logger
	Catalog  *catalog.Catalog

	Now      func() time.Time
	NewRunID func() string
}

type Result struct {
	RunID       string
	Target      catalog.Target
	Routes      int
	Stops       int
	Connections int
	Duration    time.Duration
}

// Run refreshes one target from the row source.
func (u *Updater) Run(ctx context.Context, t catalog.Target) (Result, error) {
	return u.run(ctx, t, u.Source)
}

// Enrich rebuilds a target from its own stored snapshot, reattaching the
// routes serving each stop.
func (u *Updater) Enrich(ctx context.Context, t catalog.Target) (Result, error) {
	src, ok := u.Store.(RowSource)
	if !ok {
		return Result{}, ErrStoreNotReadable
	}
	return u.run(ctx, t, src)
}

// RunOperator runs every implemented mode of an operator in catalog order
// and stops at the first failure.
func (u *Updater) RunOperator(ctx context.Context, operator string) ([]Result, error) {
	c := u.Catalog
	if c == nil {
		c = catalog.Default()
	}
	targets, err := c.Targets(operator)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: operator %q has no implemented modes", catalog.ErrNotImplemented, operator)
	}
	results := make([]Result, 0, len(targets))
	for _, t := range targets {
		res, err := u.Run(ctx, t)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (u *Updater) run(ctx context.Context, t catalog.Target, src RowSource) (Result, error) {
	logger := u.logger().With(slog.String("target", t.String()))
	start := u.now()
	res := Result{RunID: u.newRunID(), Target: t}

	if src == nil {
		return res, u.fail(logger, t, StageFetchRoutes, errors.New("no row source configured"))
	}
	if u.Store == nil {
		return res, u.fail(logger, t, StagePersist, errors.New("no graph store configured"))
	}

	routes, err := src.FetchRoutes(ctx, t)
	if err != nil {
		return res, u.fail(logger, t, StageFetchRoutes, err)
	}
	stops, err := src.FetchStops(ctx, t)
	if err != nil {
		return res, u.fail(logger, t, StageFetchStops, err)
	}

	builder := u.Builder
	if builder == nil {
		builder = graph.NewBuilder()
	}
	buildStart := time.Now()
	built, stats, err := builder.BuildWithStats(routes, stops)
	if err != nil {
		return res, u.fail(logger, t, StageBuild, err)
	}
	enriched, err := graph.AttachRoutes(routes, built)
	if err != nil {
		return res, u.fail(logger, t, StageEnrich, err)
	}
	if u.Metrics != nil {
		u.Metrics.BuildObserve(time.Since(buildStart))
	}

	if err := ctx.Err(); err != nil {
		return res, u.fail(logger, t, StagePersist, err)
	}
	persistStart := time.Now()
	if err := u.Store.ReplaceSnapshot(ctx, t, routes, enriched, res.RunID); err != nil {
		return res, u.fail(logger, t, StagePersist, err)
	}
	if u.Metrics != nil {
		u.Metrics.PersistObserve(time.Since(persistStart))
	}

	res.Routes, res.Stops, res.Connections = stats.Routes, stats.Stops, stats.Connections
	finished := u.now()
	res.Duration = finished.Sub(start)
	if u.Metrics != nil {
		u.Metrics.RunSucceeded(t.String(), res.Routes, res.Stops, res.Connections, finished)
	}
	logging.LogOperation(logger, "snapshot replaced",
		slog.String("run_id", res.RunID),
		slog.Int("routes", res.Routes),
		slog.Int("stops", res.Stops),
		slog.Int("candidates", stats.Candidates),
		slog.Int("connections", res.Connections),
		slog.Duration("duration", res.Duration))

	u.notify(ctx, logger, res, finished)
	return res, nil
}

// notify announces a persisted snapshot. Failures are logged only: the
// snapshot is already committed.
func (u *Updater) notify(ctx context.Context, logger *slog.Logger, res Result, at time.Time) {
	if u.Notifier == nil {
		return
	}
	msg := publisher.SnapshotMessage{
		RunID:       res.RunID,
		Operator:    res.Target.Operator,
		Mode:        res.Target.Mode,
		Stops:       res.Stops,
		Routes:      res.Routes,
		Connections: res.Connections,
		Timestamp:   at.UTC(),
	}
	if err := u.Notifier.PublishSnapshot(ctx, msg); err != nil {
		logging.LogError(logger, "snapshot notification failed", err, slog.String("run_id", res.RunID))
	}
}

func (u *Updater) fail(logger *slog.Logger, t catalog.Target, stage string, err error) error {
	if u.Metrics != nil {
		u.Metrics.RunFailed(t.String(), stage)
	}
	logging.LogError(logger, "update failed, previous snapshot kept", err, slog.String("stage", stage))
	return &StageError{Target: t, Stage: stage, Err: err}
}

func (u *Updater) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}

func (u *Updater) now() time.Time {
	if u.Now == nil {
		return time.Now()
	}
	return u.Now()
}

func (u *Updater) newRunID() string {
	if u.NewRunID == nil {
		return uuid.NewString()
	}
	return u.NewRunID()
}
