package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"stopgraph/internal/catalog"
	"stopgraph/internal/config"
	"stopgraph/internal/db"
	"stopgraph/internal/graph"
	"stopgraph/internal/gtfsfeed"
	"stopgraph/internal/logging"
	"stopgraph/internal/metrics"
	"stopgraph/internal/pipeline"
	"stopgraph/internal/publisher"
	"stopgraph/internal/sheet"
)

type options struct {
	operator   string
	mode       string
	source     string
	enrichOnly bool
	watch      bool
	status     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.operator, "operator", catalog.OperatorIntra, "operator to update")
	flag.StringVar(&opts.mode, "mode", "", "mode to update (empty = every implemented mode)")
	flag.StringVar(&opts.source, "source", "sheet", "row source: sheet, gtfs or store")
	flag.BoolVar(&opts.enrichOnly, "enrich-only", false, "rebuild from the stored snapshot and reattach routes")
	flag.BoolVar(&opts.watch, "watch", false, "rerun every REFRESH_INTERVAL_SEC until interrupted")
	flag.BoolVar(&opts.status, "status", false, "print the latest snapshot run and exit")
	flag.Parse()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewStructuredLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, logger, os.Stdout); err != nil {
		logging.LogError(logger, "stopgraph failed", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger, out io.Writer) error {
	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		if err := cat.LoadOverrides(cfg.CatalogFile); err != nil {
			return err
		}
	}
	targets, err := selectTargets(cat, opts.operator, opts.mode)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, targets, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.status {
		return printStatus(ctx, st, targets, out)
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.RefreshInterval)
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	u := &pipeline.Updater{
		Store:   st,
		Builder: graph.NewBuilder(graph.WithRouteSetPolicy(cfg.RouteSetPolicy)),
		Logger:  logger,
		Catalog: cat,
	}
	if mcol != nil {
		u.Metrics = mcol
	}
	// enrichment always reads the stored snapshot
	if !opts.enrichOnly {
		u.Source, err = newSource(cfg, opts.source, st)
		if err != nil {
			return err
		}
	}

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogLevel <= slog.LevelDebug, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			return fmt.Errorf("nats error: %w", err)
		}
		defer pub.Close()
		u.Notifier = pub
	}

	if opts.watch {
		s := &pipeline.Scheduler{Updater: u, Targets: targets, Interval: cfg.RefreshInterval, Enrich: opts.enrichOnly}
		s.Start(ctx)
		// Block until context cancelled
		<-ctx.Done()
		s.Stop()
		logger.Info("shutdown complete")
		return nil
	}

	if opts.mode == "" && !opts.enrichOnly {
		_, err = u.RunOperator(ctx, opts.operator)
		return err
	}
	for _, t := range targets {
		if opts.enrichOnly {
			_, err = u.Enrich(ctx, t)
		} else {
			_, err = u.Run(ctx, t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func selectTargets(cat *catalog.Catalog, operator, mode string) ([]catalog.Target, error) {
	if mode != "" {
		t, err := cat.Lookup(operator, mode)
		if err != nil {
			return nil, err
		}
		return []catalog.Target{t}, nil
	}
	targets, err := cat.Targets(operator)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: operator %q has no implemented modes", catalog.ErrNotImplemented, operator)
	}
	return targets, nil
}

func newSource(cfg *config.Config, name string, st *stores) (pipeline.RowSource, error) {
	switch name {
	case "sheet":
		if cfg.SheetsDir != "" {
			return &sheet.Source{Reader: sheet.DirReader{Dir: cfg.SheetsDir}}, nil
		}
		if cfg.SpreadsheetID == "" {
			return nil, errors.New("sheet source needs SHEETS_DIR or SPREADSHEET_ID")
		}
		return &sheet.Source{Reader: sheet.NewHTTPReader(cfg.SpreadsheetID, cfg.HTTPTimeout)}, nil
	case "gtfs":
		src := gtfsfeed.NewSource(cfg.GTFSSource, cfg.HTTPTimeout)
		if cfg.RefreshInterval > 0 {
			src.TTL = cfg.RefreshInterval / 2
		}
		return src, nil
	case "store":
		return st, nil
	}
	return nil, fmt.Errorf("unknown source %q (want sheet, gtfs or store)", name)
}

func printStatus(ctx context.Context, st *stores, targets []catalog.Target, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tRUN\tROUTES\tSTOPS\tCONNECTIONS\tIMPORTED AT")
	for _, t := range targets {
		run, err := st.LatestRun(ctx, t)
		if errors.Is(err, db.ErrNoRuns) {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\n", t)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", t, run.ID, run.Routes, run.Stops, run.Connections, run.ImportedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
