package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/parse"
)

type Collector struct {
	reg *prometheus.Registry

	TablesCompiled *prometheus.CounterVec   // kind
	RowsCompiled   *prometheus.CounterVec   // kind
	TableDuration  *prometheus.HistogramVec // kind
	TableLines     *prometheus.GaugeVec     // kind
	TableProgress  *prometheus.GaugeVec     // kind

	FeedsCompiled prometheus.Counter
	LastCompiled  prometheus.Gauge // unix seconds
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TablesCompiled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_tables_compiled_total",
			Help: "Tables committed to a schedule store.",
		}, []string{"kind"}),
		RowsCompiled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_rows_compiled_total",
			Help: "Rows committed to a schedule store.",
		}, []string{"kind"}),
		TableDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_table_compile_seconds",
			Help:    "Time spent compiling a table.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"kind"}),
		TableLines: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_table_lines",
			Help: "Lines in the table being compiled, header included.",
		}, []string{"kind"}),
		TableProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_table_line",
			Help: "Last line compiled of the table being compiled.",
		}, []string{"kind"}),
		FeedsCompiled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_feeds_compiled_total",
			Help: "Feeds compiled into storage.",
		}),
		LastCompiled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_feed_last_compiled_timestamp_seconds",
			Help: "When a feed was last compiled.",
		}),
	}

	reg.MustRegister(
		c.TablesCompiled, c.RowsCompiled, c.TableDuration,
		c.TableLines, c.TableProgress,
		c.FeedsCompiled, c.LastCompiled,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

// Counts compiled feeds. Implements transit.Notifier.
func (c *Collector) FeedCompiled(ctx context.Context, event transit.FeedEvent) error {
	c.FeedsCompiled.Inc()
	c.LastCompiled.Set(float64(event.CompiledAt.Unix()))
	return nil
}

// Tracks compilation of tables. Implements parse.Progress.
type CompileProgress struct {
	c *Collector

	kind    model.EntityKind
	line    int
	started time.Time
}

var _ parse.Progress = (*CompileProgress)(nil)
var _ transit.Notifier = (*Collector)(nil)

func (c *Collector) Progress() *CompileProgress {
	return &CompileProgress{c: c}
}

func (p *CompileProgress) Begin(kind model.EntityKind, total int) {
	p.kind = kind
	p.line = 0
	p.started = time.Now()
	p.c.TableLines.WithLabelValues(kind.String()).Set(float64(total))
	p.c.TableProgress.WithLabelValues(kind.String()).Set(0)
}

func (p *CompileProgress) Step(line int) {
	p.line = line
	p.c.TableProgress.WithLabelValues(p.kind.String()).Set(float64(line))
}

func (p *CompileProgress) Finish() {
	kind := p.kind.String()

	// Header is line 1
	rows := p.line - 1
	if rows < 0 {
		rows = 0
	}

	p.c.TablesCompiled.WithLabelValues(kind).Inc()
	p.c.RowsCompiled.WithLabelValues(kind).Add(float64(rows))
	p.c.TableDuration.WithLabelValues(kind).Observe(time.Since(p.started).Seconds())
}
