package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// serverMetrics carries the gauges exported at /metrics. Each server
// owns its registry so tests can run servers side by side.
type serverMetrics struct {
	registry     *prometheus.Registry
	runsListed   prometheus.Gauge
	pagesStored  prometheus.Gauge
	scrapeActive prometheus.Gauge
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		runsListed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webarchiver",
			Name:      "runs_total",
			Help:      "Number of runs present in the output directory.",
		}),
		pagesStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webarchiver",
			Name:      "pages_stored_total",
			Help:      "Pages stored across all runs in the output directory.",
		}),
		scrapeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webarchiver",
			Name:      "scrape_active",
			Help:      "1 while a subordinate crawl process is running.",
		}),
	}
	m.registry.MustRegister(m.runsListed, m.pagesStored, m.scrapeActive)
	return m
}

// observe refreshes the gauges from the current filesystem state and
// process state. Called on each /metrics scrape.
func (m *serverMetrics) observe(runs []runListItem, scrapeRunning bool) {
	m.runsListed.Set(float64(len(runs)))

	var pages int
	for _, run := range runs {
		pages += run.TotalPages
	}
	m.pagesStored.Set(float64(pages))

	if scrapeRunning {
		m.scrapeActive.Set(1)
	} else {
		m.scrapeActive.Set(0)
	}
}
