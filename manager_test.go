package transit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/clock"
	"tidbyt.dev/transit/testutil"
)

type recordingNotifier struct {
	events []transit.FeedEvent
	err    error
}

func (n *recordingNotifier) FeedCompiled(ctx context.Context, event transit.FeedEvent) error {
	n.events = append(n.events, event)
	return n.err
}

func ottawaZip(t *testing.T) []byte {
	files := map[string][]string{}
	for name, content := range ottawaFeed {
		files[name] = content
	}
	return testutil.BuildZip(t, files)
}

func TestManagerLoadURL(t *testing.T) {
	for _, backend := range testutil.Backends() {
		t.Run(backend, func(t *testing.T) {
			zip := ottawaZip(t)

			requests := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests++
				assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
				w.Write(zip)
			}))
			defer server.Close()

			notifier := &recordingNotifier{}
			m := transit.NewManager(testutil.BuildStorage(t, backend))
			m.Notifier = notifier

			feed, err := m.Load(context.Background(), server.URL, map[string]string{"X-Api-Key": "secret"})
			require.NoError(t, err)
			assert.Equal(t, 64, len(feed))
			assert.Equal(t, 1, requests)

			require.Equal(t, 1, len(notifier.events))
			assert.Equal(t, feed, notifier.events[0].Feed)
			assert.Equal(t, server.URL, notifier.events[0].Source)
			assert.Equal(t, map[string]int{
				"calendar.txt":   2,
				"stops.txt":      4,
				"routes.txt":     2,
				"trips.txt":      4,
				"stop_times.txt": 11,
			}, notifier.events[0].Rows)

			// Same data again is not recompiled
			again, err := m.Load(context.Background(), server.URL, map[string]string{"X-Api-Key": "secret"})
			require.NoError(t, err)
			assert.Equal(t, feed, again)
			assert.Equal(t, 2, requests)
			assert.Equal(t, 1, len(notifier.events))

			s, err := m.Open(feed, clock.Fixed{Now: thursdayMorning}, transit.ExceptionsIgnore)
			require.NoError(t, err)

			events, err := s.ArrivingWithin(3000, 10)
			require.NoError(t, err)
			assert.Equal(t, 2, len(events))
		})
	}
}

func TestManagerLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.zip")
	require.NoError(t, os.WriteFile(path, ottawaZip(t), 0644))

	m := transit.NewManager(testutil.BuildStorage(t, "memory"))

	feed, err := m.Load(context.Background(), path, nil)
	require.NoError(t, err)

	// file:// URLs name the same data
	again, err := m.Load(context.Background(), "file://"+path, nil)
	require.NoError(t, err)
	assert.Equal(t, feed, again)

	s, err := m.Open(feed, clock.Fixed{Now: thursdayMorning}, transit.ExceptionsIgnore)
	require.NoError(t, err)
	stop, err := s.Stop(3002)
	require.NoError(t, err)
	assert.Equal(t, "BANK / SOMERSET", stop.Name)
}

func TestManagerLoadDir(t *testing.T) {
	dir := t.TempDir()
	for name, content := range ottawaFeed {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(content, "\n")), 0644))
	}

	m := transit.NewManager(testutil.BuildStorage(t, "sqlite"))

	feed, err := m.Load(context.Background(), dir, nil)
	require.NoError(t, err)

	again, err := m.Load(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, feed, again)

	// Changing a table changes the feed
	stops := append([]string{}, ottawaFeed["stops.txt"]...)
	stops = append(stops, "AA050,3004,TUNNEY'S PASTURE,45.4035,-75.7350")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stops.txt"), []byte(strings.Join(stops, "\n")), 0644))

	changed, err := m.Load(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.NotEqual(t, feed, changed)

	s, err := m.Open(changed, clock.Fixed{Now: thursdayMorning}, transit.ExceptionsIgnore)
	require.NoError(t, err)
	stop, err := s.Stop(3004)
	require.NoError(t, err)
	assert.Equal(t, "TUNNEY'S PASTURE", stop.Name)
}

func TestManagerBrokenData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a zip file"))
	}))
	defer server.Close()

	notifier := &recordingNotifier{}
	m := transit.NewManager(testutil.BuildStorage(t, "memory"))
	m.Notifier = notifier

	_, err := m.Load(context.Background(), server.URL, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, len(notifier.events))
}

func TestManagerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := transit.NewManager(testutil.BuildStorage(t, "memory"))
	m.StaticTimeout = 5 * time.Second

	_, err := m.Load(context.Background(), server.URL, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestManagerNotifierFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.zip")
	require.NoError(t, os.WriteFile(path, ottawaZip(t), 0644))

	m := transit.NewManager(testutil.BuildStorage(t, "memory"))
	m.Notifier = &recordingNotifier{err: errors.New("nope")}

	feed, err := m.Load(context.Background(), path, nil)
	require.NoError(t, err)

	_, err = m.Open(feed, clock.Fixed{Now: thursdayMorning}, transit.ExceptionsIgnore)
	assert.NoError(t, err)
}

func TestNotifiers(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("b failed")}
	c := &recordingNotifier{}

	err := transit.Notifiers{a, b, c}.FeedCompiled(context.Background(), transit.FeedEvent{Feed: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")

	// Everyone is told regardless
	assert.Equal(t, 1, len(a.events))
	assert.Equal(t, 1, len(b.events))
	assert.Equal(t, 1, len(c.events))
}

func TestManagerOpenUnknown(t *testing.T) {
	m := transit.NewManager(testutil.BuildStorage(t, "memory"))
	_, err := m.Open("nope", clock.Fixed{Now: thursdayMorning}, transit.ExceptionsIgnore)
	assert.Error(t, err)
}
