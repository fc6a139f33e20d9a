// Package metrics sammelt und veröffentlicht Prometheus-Metriken.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder ist die Aufzeichnungsschnittstelle für den Cleanup-Job.
type Recorder interface {
	RecordSweepCompleted(dauer time.Duration)
	RecordSweepFailed()
	RecordAntraegeGeloescht(n int)
	RecordAntraegeAnonymisiert(n int)
	RecordDokumenteGeloescht(n int)
	RecordSessionsGeloescht(n int)
	RecordBlobFehler(n int)
	RecordErasure()
	RecordExport()
}

// Collector ist die Prometheus-Implementierung des Recorders.
type Collector struct {
	sweepsTotal        prometheus.Counter
	sweepFailures      prometheus.Counter
	sweepDauer         prometheus.Histogram
	antraegeGeloescht  prometheus.Counter
	antraegeAnonym     prometheus.Counter
	dokumenteGeloescht prometheus.Counter
	sessionsGeloescht  prometheus.Counter
	blobFehler         prometheus.Counter
	erasures           prometheus.Counter
	exports            prometheus.Counter
}

// NewCollector erzeugt den Collector und registriert alle Metriken
// auf der übergebenen Registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_cleanup_sweeps_total",
			Help: "Anzahl abgeschlossener Cleanup-Sweeps",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_cleanup_sweep_failures_total",
			Help: "Anzahl fehlgeschlagener Cleanup-Sweeps",
		}),
		sweepDauer: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobcoach_cleanup_sweep_duration_seconds",
			Help:    "Dauer eines Cleanup-Sweeps in Sekunden",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		antraegeGeloescht: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_antraege_geloescht_total",
			Help: "Anzahl endgültig gelöschter Anträge",
		}),
		antraegeAnonym: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_antraege_anonymisiert_total",
			Help: "Anzahl anonymisierter Anträge",
		}),
		dokumenteGeloescht: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_dokumente_geloescht_total",
			Help: "Anzahl gelöschter Dokumente",
		}),
		sessionsGeloescht: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_sessions_geloescht_total",
			Help: "Anzahl gelöschter abgelaufener Sessions",
		}),
		blobFehler: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_blob_delete_fehler_total",
			Help: "Anzahl fehlgeschlagener Blob-Löschungen (Datei bleibt als Altlast liegen)",
		}),
		erasures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_gdpr_erasures_total",
			Help: "Anzahl durchgeführter Löschbegehren (Art. 17 DSGVO)",
		}),
		exports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcoach_gdpr_exports_total",
			Help: "Anzahl erstellter Datenauskünfte (Art. 15 DSGVO)",
		}),
	}

	reg.MustRegister(
		c.sweepsTotal,
		c.sweepFailures,
		c.sweepDauer,
		c.antraegeGeloescht,
		c.antraegeAnonym,
		c.dokumenteGeloescht,
		c.sessionsGeloescht,
		c.blobFehler,
		c.erasures,
		c.exports,
	)

	return c
}

// RecordSweepCompleted zählt einen abgeschlossenen Sweep und dessen Dauer.
func (c *Collector) RecordSweepCompleted(dauer time.Duration) {
	c.sweepsTotal.Inc()
	c.sweepDauer.Observe(dauer.Seconds())
}

// RecordSweepFailed zählt einen fehlgeschlagenen Sweep.
func (c *Collector) RecordSweepFailed() {
	c.sweepFailures.Inc()
}

// RecordAntraegeGeloescht zählt gelöschte Anträge.
func (c *Collector) RecordAntraegeGeloescht(n int) {
	c.antraegeGeloescht.Add(float64(n))
}

// RecordAntraegeAnonymisiert zählt anonymisierte Anträge.
func (c *Collector) RecordAntraegeAnonymisiert(n int) {
	c.antraegeAnonym.Add(float64(n))
}

// RecordDokumenteGeloescht zählt gelöschte Dokumente.
func (c *Collector) RecordDokumenteGeloescht(n int) {
	c.dokumenteGeloescht.Add(float64(n))
}

// RecordSessionsGeloescht zählt gelöschte Sessions.
func (c *Collector) RecordSessionsGeloescht(n int) {
	c.sessionsGeloescht.Add(float64(n))
}

// RecordBlobFehler zählt fehlgeschlagene Blob-Löschungen.
func (c *Collector) RecordBlobFehler(n int) {
	c.blobFehler.Add(float64(n))
}

// RecordErasure zählt ein durchgeführtes Löschbegehren.
func (c *Collector) RecordErasure() {
	c.erasures.Inc()
}

// RecordExport zählt eine erstellte Datenauskunft.
func (c *Collector) RecordExport() {
	c.exports.Inc()
}

// Handler liefert den HTTP-Handler für Prometheus-Scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
