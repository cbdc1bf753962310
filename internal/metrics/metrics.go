// Package metrics exposes prometheus counters for the billing engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const (
	DocTypeInvoice = "invoice"
	DocTypeQuote   = "quote"

	ArchiveResultOK     = "ok"
	ArchiveResultDryRun = "dry_run"
	ArchiveResultError  = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	documentRecomputes *prometheus.CounterVec
	archiveRuns        *prometheus.CounterVec
	quoteConversions   prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		documentRecomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atelier_document_recompute_total",
			Help: "Totals engine recomputations by document type.",
		}, []string{"doc_type"}),
		archiveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atelier_fiscal_archive_runs_total",
			Help: "Fiscal archive runs by result.",
		}, []string{"result"}),
		quoteConversions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atelier_quote_conversions_total",
			Help: "Quotes converted to invoices.",
		}),
	}

	registry.MustRegister(m.documentRecomputes, m.archiveRuns, m.quoteConversions)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// All recording methods tolerate a nil receiver so tests can run
// services without wiring metrics.

func (m *Metrics) RecordRecompute(docType string) {
	if m == nil {
		return
	}
	m.documentRecomputes.WithLabelValues(docType).Inc()
}

func (m *Metrics) RecordArchiveRun(result string) {
	if m == nil {
		return
	}
	m.archiveRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordQuoteConversion() {
	if m == nil {
		return
	}
	m.quoteConversions.Inc()
}

// Module provides the metrics registry.
var Module = fx.Module("metrics",
	fx.Provide(New),
)
