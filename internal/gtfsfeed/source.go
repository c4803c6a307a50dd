// Package gtfsfeed derives routes and stops from a GTFS static feed, for
// operators that publish one instead of maintaining a spreadsheet.
package gtfsfeed

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jamespfennell/gtfs"

	"stopgraph/internal/catalog"
	"stopgraph/internal/transit"
)

// Source loads a feed once and serves both collections from it until TTL
// passes. Targets naming their own gtfsSource use that instead of the default.
type Source struct {
	Default string
	Client  *http.Client
	TTL     time.Duration // zero keeps feeds until Reset

	mu    sync.Mutex
	feeds map[string]cachedFeed
	now   func() time.Time
}

type cachedFeed struct {
	feed     *gtfs.Static
	noPickup NoPickup
	loadedAt time.Time
}

func NewSource(defaultSource string, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Source{
		Default: defaultSource,
		Client:  &http.Client{Timeout: timeout},
		TTL:     time.Minute,
		feeds:   make(map[string]cachedFeed),
		now:     time.Now,
	}
}

func (s *Source) FetchRoutes(ctx context.Context, t catalog.Target) ([]transit.Route, error) {
	c, err := s.load(ctx, t)
	if err != nil {
		return nil, err
	}
	return Routes(c.feed, c.noPickup)
}

func (s *Source) FetchStops(ctx context.Context, t catalog.Target) ([]transit.Stop, error) {
	c, err := s.load(ctx, t)
	if err != nil {
		return nil, err
	}
	return Stops(c.feed), nil
}

// Reset drops cached feeds so the next fetch downloads again.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = make(map[string]cachedFeed)
}

func (s *Source) load(ctx context.Context, t catalog.Target) (cachedFeed, error) {
	src := t.GTFSSource
	if src == "" {
		src = s.Default
	}
	if src == "" {
		return cachedFeed{}, fmt.Errorf("gtfs feed: no source configured for %s", t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feeds == nil {
		s.feeds = make(map[string]cachedFeed)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if c, ok := s.feeds[src]; ok && (s.TTL <= 0 || s.now().Sub(c.loadedAt) < s.TTL) {
		return c, nil
	}
	b, err := s.raw(ctx, src)
	if err != nil {
		return cachedFeed{}, err
	}
	feed, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return cachedFeed{}, fmt.Errorf("gtfs feed: parse %s: %w", src, err)
	}
	noPickup, err := ReadNoPickup(b)
	if err != nil {
		return cachedFeed{}, fmt.Errorf("gtfs feed: %s: %w", src, err)
	}
	c := cachedFeed{feed: feed, noPickup: noPickup, loadedAt: s.now()}
	s.feeds[src] = c
	return c, nil
}

func (s *Source) raw(ctx context.Context, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("gtfs feed: read local file: %w", err)
		}
		return b, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("gtfs feed: build request: %w", err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gtfs feed: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gtfs feed: download: unexpected status %s", resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gtfs feed: read body: %w", err)
	}
	return b, nil
}

// NoPickup holds the stop times whose pickup_type is explicitly 1, keyed by
// trip id then stop sequence. The parsed feed cannot be used for this: it
// reports a missing pickup_type the same way as 1.
type NoPickup map[string]map[int]bool

func (n NoPickup) Has(tripID string, stopSequence int) bool {
	return n[tripID][stopSequence]
}

// ReadNoPickup scans stop_times.txt of a zipped feed. A feed without a
// pickup_type column yields an empty index.
func ReadNoPickup(zipped []byte) (NoPickup, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	var file *zip.File
	for _, f := range zr.File {
		if path.Base(f.Name) == "stop_times.txt" {
			file = f
			break
		}
	}
	out := NoPickup{}
	if file == nil {
		return out, nil
	}
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open stop_times.txt: %w", err)
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stop_times.txt header: %w", err)
	}
	tripCol, seqCol, pickupCol := -1, -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case "trip_id":
			tripCol = i
		case "stop_sequence":
			seqCol = i
		case "pickup_type":
			pickupCol = i
		}
	}
	if pickupCol < 0 || tripCol < 0 || seqCol < 0 {
		return out, nil
	}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read stop_times.txt: %w", err)
		}
		if field(rec, pickupCol) != "1" {
			continue
		}
		seq, err := strconv.Atoi(field(rec, seqCol))
		if err != nil {
			return nil, fmt.Errorf("stop_times.txt line %d: invalid stop_sequence %q", line, field(rec, seqCol))
		}
		trip := field(rec, tripCol)
		if out[trip] == nil {
			out[trip] = make(map[int]bool)
		}
		out[trip][seq] = true
	}
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// routeKey is "<route id>:<direction_id>", or the bare route id when the
// trip has no direction.
func routeKey(trip *gtfs.ScheduledTrip) string {
	switch trip.DirectionId {
	case gtfs.DirectionID_False:
		return trip.Route.Id + ":0"
	case gtfs.DirectionID_True:
		return trip.Route.Id + ":1"
	}
	return trip.Route.Id
}

// Routes turns each route+direction of the feed into one route, using the
// stop sequence of its longest trip. Stops listed in noPickup are marked
// NoBoarding. A stop time without a stop is an error.
func Routes(feed *gtfs.Static, noPickup NoPickup) ([]transit.Route, error) {
	longest := make(map[string]*gtfs.ScheduledTrip)
	for i := range feed.Trips {
		trip := &feed.Trips[i]
		if trip.Route == nil || len(trip.StopTimes) == 0 {
			continue
		}
		key := routeKey(trip)
		if cur, ok := longest[key]; !ok || len(trip.StopTimes) > len(cur.StopTimes) {
			longest[key] = trip
		}
	}

	keys := make([]string, 0, len(longest))
	for k := range longest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	routes := make([]transit.Route, 0, len(keys))
	for _, key := range keys {
		trip := longest[key]
		sts := append([]gtfs.ScheduledStopTime(nil), trip.StopTimes...)
		sort.SliceStable(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })

		r := transit.Route{
			ID:   key,
			Type: fmt.Sprint(trip.Route.Type),
			Num:  trip.Route.ShortName,
			Name: trip.Route.LongName,
		}
		if r.Name == "" {
			r.Name = trip.Headsign
		}
		for _, st := range sts {
			if st.Stop == nil {
				return nil, fmt.Errorf("gtfs feed: trip %s: stop time %d has no stop", trip.ID, st.StopSequence)
			}
			r.Stops = append(r.Stops, transit.RouteStop{
				ID:         st.Stop.Id,
				NoBoarding: noPickup.Has(trip.ID, int(st.StopSequence)),
			})
		}
		if n := len(r.Stops); n > 0 {
			r.DestinationID = r.Stops[n-1].ID
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// Stops converts every feed stop; parent stations are kept as plain stops.
func Stops(feed *gtfs.Static) []transit.Stop {
	stops := make([]transit.Stop, 0, len(feed.Stops))
	for _, s := range feed.Stops {
		stops = append(stops, transit.Stop{
			ID:       s.Id,
			Code:     s.Code,
			Name:     s.Name,
			Keywords: strings.ToLower(s.Name),
		})
	}
	return stops
}
