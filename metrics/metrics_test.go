package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/parse"
	"tidbyt.dev/transit/storage"
)

func TestCompileProgress(t *testing.T) {
	c := NewCollector()
	p := c.Progress()

	p.Begin(model.KindStop, 4)
	p.Step(1)
	p.Step(2)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.TableLines.WithLabelValues("stop")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.TableProgress.WithLabelValues("stop")))

	p.Step(3)
	p.Step(4)
	p.Finish()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TablesCompiled.WithLabelValues("stop")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.RowsCompiled.WithLabelValues("stop")))

	// Empty table
	p.Begin(model.KindCalendarException, 0)
	p.Finish()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TablesCompiled.WithLabelValues("service_exception")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.RowsCompiled.WithLabelValues("service_exception")))
}

func TestCompileProgressWithCompiler(t *testing.T) {
	c := NewCollector()

	writer, err := storage.NewMemoryStorage().GetWriter("test")
	require.NoError(t, err)
	compiler := parse.NewCompiler(writer)

	stops := "stop_id,stop_code,stop_name,stop_lat,stop_lon\n" +
		"AA010,3000,RIDEAU CENTRE,45.4255,-75.6920\n" +
		"AA020,3001,LAURIER / NICHOLAS,45.4235,-75.6855\n"
	require.NoError(t, compiler.CompileTable("stops.txt", strings.NewReader(stops), c.Progress()))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.TablesCompiled.WithLabelValues("stop")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RowsCompiled.WithLabelValues("stop")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.TableLines.WithLabelValues("stop")))

	// Rejected tables aren't counted
	routes := "route_id,route_short_name,route_type\n95-124,95,99\n"
	require.Error(t, compiler.CompileTable("routes.txt", strings.NewReader(routes), c.Progress()))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.TablesCompiled.WithLabelValues("route")))
}

func TestFeedCompiled(t *testing.T) {
	c := NewCollector()

	at := time.Date(2012, 3, 29, 8, 0, 0, 0, time.UTC)
	require.NoError(t, c.FeedCompiled(context.Background(), transit.FeedEvent{Feed: "abc", CompiledAt: at}))
	require.NoError(t, c.FeedCompiled(context.Background(), transit.FeedEvent{Feed: "def", CompiledAt: at.Add(time.Hour)}))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.FeedsCompiled))
	assert.Equal(t, float64(at.Add(time.Hour).Unix()), testutil.ToFloat64(c.LastCompiled))
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.FeedsCompiled.Inc()

	server := httptest.NewServer(c.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "transit_feeds_compiled_total 1")
}
