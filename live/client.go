package live

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/clock"
	"tidbyt.dev/transit/downloader"
	"tidbyt.dev/transit/model"
)

const (
	DefaultTTL     = 30 * time.Second
	DefaultTimeout = 10 * time.Second
	DefaultMaxSize = 1 << 20 // 1 MB
)

// Reads upcoming trips from GTFS Realtime feeds.
type Client struct {
	TripUpdatesURL      string
	VehiclePositionsURL string
	Headers             map[string]string

	TTL     time.Duration
	Timeout time.Duration
	MaxSize int

	Downloader downloader.Downloader
	Logger     zerolog.Logger

	clock clock.Clock
}

var _ transit.LiveFeed = (*Client)(nil)

func NewClient(tripUpdatesURL string, clk clock.Clock) *Client {
	return &Client{
		TripUpdatesURL: tripUpdatesURL,
		Headers:        map[string]string{},
		TTL:            DefaultTTL,
		Timeout:        DefaultTimeout,
		MaxSize:        DefaultMaxSize,
		Downloader:     downloader.NewMemoryDownloader(),
		Logger:         zerolog.Nop(),
		clock:          clk,
	}
}

// Downloads and parses the configured feeds.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	urls := []string{c.TripUpdatesURL}
	if c.VehiclePositionsURL != "" {
		urls = append(urls, c.VehiclePositionsURL)
	}

	feeds := [][]byte{}
	for _, url := range urls {
		data, err := c.Downloader.Get(ctx, url, c.Headers, downloader.GetOptions{
			Cache:    true,
			CacheTTL: c.TTL,
			Timeout:  c.Timeout,
			MaxSize:  c.MaxSize,
		})
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", url, err)
		}
		feeds = append(feeds, data)
	}

	snapshot, err := ParseFeeds(feeds)
	if err != nil {
		return nil, fmt.Errorf("parsing realtime: %w", err)
	}

	c.Logger.Debug().
		Int("trips", len(snapshot.Trips)).
		Int("vehicles", len(snapshot.Vehicles)).
		Int("canceled", snapshot.NumCanceledTrips).
		Uint64("timestamp", snapshot.Timestamp).
		Msg("loaded realtime")

	return snapshot, nil
}

// Returns live trips of a route arriving at a stop, ordered by
// expected arrival. Routes and stops are matched on their feed
// labels.
func (c *Client) NextForRoute(ctx context.Context, stop model.Stop, route model.Route) ([]transit.LiveTrip, error) {
	snapshot, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	today := c.clock.Today()
	now := today.Add(time.Duration(c.clock.ElapsedSecondsSinceMidnight()) * time.Second)

	routeLabel := route.Label
	if routeLabel == "" {
		routeLabel = route.Name
	}

	trips := []transit.LiveTrip{}
	for _, tu := range snapshot.Trips {
		if tu.RouteID != routeLabel || snapshot.CanceledTrips[tu.TripID] {
			continue
		}

		var at time.Time
		for _, stu := range tu.Updates {
			if stu.StopID != stop.Label || stu.Skipped {
				continue
			}
			at = stu.Arrival
			if at.IsZero() {
				at = stu.Departure
			}
			break
		}
		if at.IsZero() {
			continue
		}

		trip := transit.LiveTrip{
			Destination: tu.VehicleLabel,
			Expected:    int(at.Sub(today) / time.Second),
			Age:         -1,
			VehicleType: route.RouteType.String(),
		}

		if tu.StartTime != "" {
			trip.DepartureFromOrigin, err = clock.ParseElapsed(tu.StartTime)
			if err != nil {
				trip.DepartureFromOrigin, err = clock.ParseHourMinute(tu.StartTime)
			}
			if err != nil {
				c.Logger.Warn().Err(err).Str("trip", tu.TripID).Msg("bad start_time")
			}
		}

		timestamp := tu.Timestamp
		if v, found := snapshot.Vehicles[tu.TripID]; found {
			trip.Lat = v.Lat
			trip.Lon = v.Lon
			trip.Speed = v.Speed
			if v.Timestamp > 0 {
				timestamp = v.Timestamp
			}
		}
		if timestamp > 0 {
			trip.Age = int(now.Sub(time.Unix(int64(timestamp), 0)) / time.Second)
			if trip.Age < 0 {
				trip.Age = 0
			}
		}

		trips = append(trips, trip)
	}

	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].Expected < trips[j].Expected
	})

	return trips, nil
}
