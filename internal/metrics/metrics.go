// Package metrics exposes per-pass counters in the Prometheus text format, written to a
// node-exporter textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// Metrics holds all the Prometheus metrics for a scan
type Metrics struct {
	registry *prometheus.Registry

	Records            *prometheus.GaugeVec
	Skipped            prometheus.Gauge
	Flagged            prometheus.Gauge
	CurrentSession     prometheus.Gauge
	PatternMatches     *prometheus.GaugeVec
	AuxiliaryFindings  *prometheus.GaugeVec
	AuxiliaryAvailable prometheus.Gauge
	Duration           prometheus.Gauge
	LastScan           prometheus.Gauge
}

// NewMetrics creates a new Metrics instance on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ferret_bam_records",
			Help: "Execution records of the last pass by trust status",
		}, []string{"trust"}),
		Skipped: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ferret_bam_skipped_entries",
			Help: "Artifact values that could not be decoded in the last pass",
		}),
		Flagged: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ferret_bam_flagged_records",
			Help: "Records with a pattern match or replace finding",
		}),
		CurrentSession: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ferret_bam_current_session_records",
			Help: "Records executed since the earliest interactive logon",
		}),
		PatternMatches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ferret_bam_pattern_matches",
			Help: "Records matched per content rule",
		}, []string{"rule"}),
		AuxiliaryFindings: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ferret_bam_replace_findings",
			Help: "Replace scanner findings attached to records, by type",
		}, []string{"type"}),
		AuxiliaryAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ferret_bam_replace_scanner_available",
			Help: "1 when the replace scanner ran for the last pass",
		}),
		Duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ferret_bam_scan_duration_seconds",
			Help: "Wall time of the last pass",
		}),
		LastScan: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ferret_bam_last_scan_timestamp_seconds",
			Help: "Unix time the last pass started",
		}),
	}
}

// Registry returns the registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe replaces the gauges with the figures of result
func (m *Metrics) Observe(result *types.ScanResult) {
	m.Records.Reset()
	m.PatternMatches.Reset()
	m.AuxiliaryFindings.Reset()

	for _, status := range types.AllTrustStatuses {
		m.Records.WithLabelValues(string(status)).Set(float64(result.Summary.ByTrust[status]))
	}
	for i := range result.Records {
		rec := &result.Records[i]
		for _, id := range rec.PatternMatches {
			m.PatternMatches.WithLabelValues(id).Inc()
		}
		for _, f := range rec.AuxiliaryFindings {
			m.AuxiliaryFindings.WithLabelValues(f.FindingType).Inc()
		}
	}

	m.Skipped.Set(float64(result.Summary.SkippedEntries))
	m.Flagged.Set(float64(result.Summary.Flagged))
	m.CurrentSession.Set(float64(result.Summary.CurrentSession))
	if result.AuxiliaryAvailable {
		m.AuxiliaryAvailable.Set(1)
	} else {
		m.AuxiliaryAvailable.Set(0)
	}
	m.Duration.Set(float64(result.ScanDurationMs) / 1000)
	m.LastScan.Set(float64(result.ScanTime.Unix()))
}

// WriteTextfile atomically writes the metrics for the node-exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
