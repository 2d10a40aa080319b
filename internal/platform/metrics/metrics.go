package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds the Prometheus collectors of the respondent subsystem.
// All methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	RespondentsResolved *prometheus.CounterVec
	MergedRespondents   prometheus.Counter
	MergeDuration       prometheus.Histogram
	ConsentDecisions    *prometheus.CounterVec
	ComplianceDenials   *prometheus.CounterVec
	ParticipationStatus *prometheus.CounterVec
	OutboxRelayed       *prometheus.CounterVec
	ProjectedEvents     *prometheus.CounterVec
	ExportDuration      prometheus.Histogram
	ErasedRespondents   prometheus.Counter
	PrunedEvents        prometheus.Counter
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RespondentsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollster_respondents_resolved_total",
			Help: "Respondent resolutions by outcome (session, fingerprint, created)",
		}, []string{"outcome"}),
		MergedRespondents: f.NewCounter(prometheus.CounterOpts{
			Name: "pollster_respondents_merged_total",
			Help: "Respondents merged into another respondent",
		}),
		MergeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollster_merge_duration_seconds",
			Help:    "Duration of single merge transactions",
			Buckets: durationBuckets,
		}),
		ConsentDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollster_consent_decisions_total",
			Help: "Consent grants and revocations by category",
		}, []string{"category", "decision"}),
		ComplianceDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollster_compliance_denials_total",
			Help: "Regulated operations denied for a missing consent category",
		}, []string{"category"}),
		ParticipationStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollster_participation_transitions_total",
			Help: "Participation status transitions",
		}, []string{"status"}),
		OutboxRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollster_outbox_relayed_total",
			Help: "Outbox entries relayed to the event stream by result",
		}, []string{"result"}),
		ProjectedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollster_stats_projected_events_total",
			Help: "Events applied to the statistics read-model by type",
		}, []string{"event_type"}),
		ExportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollster_export_duration_seconds",
			Help:    "Duration of data export bundle assembly",
			Buckets: durationBuckets,
		}),
		ErasedRespondents: f.NewCounter(prometheus.CounterOpts{
			Name: "pollster_respondents_erased_total",
			Help: "Respondents erased on request",
		}),
		PrunedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "pollster_events_pruned_total",
			Help: "Events physically deleted by retention pruning",
		}),
	}
}

func (m *Metrics) IncrementResolved(outcome string) {
	if m == nil {
		return
	}
	m.RespondentsResolved.WithLabelValues(outcome).Inc()
}

// ObserveMerge records one committed merge. Call with time.Now() taken at the start.
func (m *Metrics) ObserveMerge(start time.Time) {
	if m == nil {
		return
	}
	m.MergedRespondents.Inc()
	m.MergeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementConsentDecision(category, decision string) {
	if m == nil {
		return
	}
	m.ConsentDecisions.WithLabelValues(category, decision).Inc()
}

func (m *Metrics) IncrementComplianceDenied(categories []string) {
	if m == nil {
		return
	}
	for _, c := range categories {
		m.ComplianceDenials.WithLabelValues(c).Inc()
	}
}

func (m *Metrics) IncrementParticipationStatus(status string) {
	if m == nil {
		return
	}
	m.ParticipationStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementOutbox(result string) {
	if m == nil {
		return
	}
	m.OutboxRelayed.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementProjected(eventType string) {
	if m == nil {
		return
	}
	m.ProjectedEvents.WithLabelValues(eventType).Inc()
}

// ObserveExport records the duration of an export. Call with time.Now() taken at the start.
func (m *Metrics) ObserveExport(start time.Time) {
	if m == nil {
		return
	}
	m.ExportDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementErased(n int) {
	if m == nil {
		return
	}
	m.ErasedRespondents.Add(float64(n))
}

func (m *Metrics) AddPruned(n int64) {
	if m == nil {
		return
	}
	m.PrunedEvents.Add(float64(n))
}
