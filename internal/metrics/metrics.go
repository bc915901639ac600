// Package metrics exposes run counters in Prometheus text format, written to
// a file for the node-exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"content_spider/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "content_spider"
	Subsystem = "run"

	OutcomeFetched    = "fetched"
	OutcomeFetchError = "fetch_error"
	OutcomeParseError = "parse_error"
	OutcomeDuplicate  = "duplicate"
)

type Metrics struct {
	registry *prometheus.Registry

	Pages *prometheus.CounterVec

	Discovered       prometheus.Gauge
	Accepted         prometheus.Gauge
	Quarantined      prometheus.Gauge
	ImagesDownloaded prometheus.Gauge
	SitesProcessed   prometheus.Gauge
	Cancelled        prometheus.Gauge
	DurationSeconds  prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		registry: reg,
		Pages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "pages_total",
			Help:      "Article pages handled by workers, by outcome",
		}, []string{"outcome"}),
		Discovered:       gauge("discovered_urls", "Candidate URLs discovered in the last run"),
		Accepted:         gauge("accepted_records", "Records accepted by the validator in the last run"),
		Quarantined:      gauge("quarantined_records", "Records quarantined by the validator in the last run"),
		ImagesDownloaded: gauge("images_downloaded", "Images downloaded in the last run"),
		SitesProcessed:   gauge("sites_processed", "Sites processed in the last run"),
		Cancelled:        gauge("cancelled", "1 when the last run was cancelled"),
		DurationSeconds:  gauge("duration_seconds", "Wall time of the last run"),
		LastRunTimestamp: gauge("last_timestamp_seconds", "Unix time the last run finished"),
	}
}

// ObservePage counts one worker outcome. Safe on a nil receiver.
func (m *Metrics) ObservePage(outcome string) {
	if m == nil {
		return
	}
	m.Pages.WithLabelValues(outcome).Inc()
}

// Record copies a finished run's statistics into the gauges.
func (m *Metrics) Record(res *models.BatchResult) {
	s := res.Stats
	m.Discovered.Set(float64(s.Discovered))
	m.Accepted.Set(float64(s.Accepted))
	m.Quarantined.Set(float64(s.Quarantined))
	m.ImagesDownloaded.Set(float64(s.ImagesDownloaded))
	m.SitesProcessed.Set(float64(s.SitesProcessed))
	if s.Cancelled {
		m.Cancelled.Set(1)
	} else {
		m.Cancelled.Set(0)
	}
	m.DurationSeconds.Set(res.FinishedAt.Sub(res.StartedAt).Seconds())
	m.LastRunTimestamp.Set(float64(res.FinishedAt.Unix()))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
