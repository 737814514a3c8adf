package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ICSEventsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uqconnect_ics_events_parsed_total",
		Help: "Total number of VEVENT blocks decoded into calendar events.",
	})

	ICSEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uqconnect_ics_events_dropped_total",
		Help: "Total number of VEVENT blocks dropped for missing SUMMARY or DTSTART.",
	})

	ICSFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uqconnect_ics_fetches_total",
		Help: "Total number of upstream ICS fetches, labelled by result.",
	}, []string{"result"})

	Imports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uqconnect_calendar_imports_total",
		Help: "Total number of calendar uploads and URL imports, labelled by kind and status.",
	}, []string{"kind", "status"})

	Recommendations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uqconnect_recommendations_total",
		Help: "Total number of recommendations returned, labelled by match kind.",
	}, []string{"match"})

	RankingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uqconnect_ranking_duration_ms",
		Help:    "Recommendation computation latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
	})

	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uqconnect_refresh_runs_total",
		Help: "Total number of subscription refresh runs, labelled by status.",
	}, []string{"status"})

	CatalogueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uqconnect_catalogue_events",
		Help: "Number of events in the current catalogue snapshot.",
	})
)
