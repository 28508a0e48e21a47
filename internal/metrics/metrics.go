// Package metrics exposes Prometheus counters and gauges for a barrow
// host's page cache and statement execution, registered once and updated
// by internal/storage/pager and internal/db as they run.
//
// What: Metrics holds the process's counters/gauges; NewMetrics registers
// them with the default Prometheus registry via promauto.
// How: Grounded on the pack's own internal/metrics package (same
// promauto.NewCounterVec/NewGauge shape), scaled down from its gRPC/
// document-store metric set to the concerns barrow actually has: page
// cache hits/misses, statements executed by kind, and open-database
// count.
// Why: promauto registers on construction, so a host just needs one
// Metrics value threaded through (or a package-level default for the
// common single-database-per-process case) and an HTTP handler exposing
// promhttp.Handler() to get scrape-ready output for free.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every barrow Prometheus instrument.
type Metrics struct {
	PageCacheHits   prometheus.Counter
	PageCacheMisses prometheus.Counter

	StatementsTotal *prometheus.CounterVec // labeled by statement kind: SELECT/INSERT/UPDATE/DELETE/DDL.
	StatementErrors prometheus.Counter

	OpenDatabases prometheus.Gauge
}

// NewMetrics registers and returns a fresh Metrics set. Calling this more
// than once per process panics (promauto registers against the default
// registry), matching the pack's own one-Metrics-per-process convention.
func NewMetrics() *Metrics {
	return &Metrics{
		PageCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "barrow_page_cache_hits_total",
			Help: "Pages served from the in-memory page cache without a storage read.",
		}),
		PageCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "barrow_page_cache_misses_total",
			Help: "Pages that required a storage read.",
		}),
		StatementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "barrow_statements_total",
			Help: "SQL statements executed, by kind.",
		}, []string{"kind"}),
		StatementErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "barrow_statement_errors_total",
			Help: "SQL statements that returned an error.",
		}),
		OpenDatabases: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "barrow_open_databases",
			Help: "Number of Database handles currently open in this process.",
		}),
	}
}

// Hit and Miss implement pager.CacheObserver, letting a *Metrics be wired
// straight into pager.Shared.SetObserver.
func (m *Metrics) Hit()  { m.PageCacheHits.Inc() }
func (m *Metrics) Miss() { m.PageCacheMisses.Inc() }

// StatementRun and StatementError implement db.Metrics, letting a
// *Metrics be wired straight into Database.SetMetrics.
func (m *Metrics) StatementRun(kind string) { m.StatementsTotal.WithLabelValues(kind).Inc() }
func (m *Metrics) StatementError()          { m.StatementErrors.Inc() }
