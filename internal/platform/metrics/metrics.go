package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	UsersRegistered       prometheus.Counter
	Logins                *prometheus.CounterVec
	ApplicationsCreated   prometheus.Counter
	ApplicationsSubmitted *prometheus.CounterVec
	ApplicationsReviewed  *prometheus.CounterVec
	RiskScore             prometheus.Histogram
	VersionConflicts      prometheus.Counter
	AuditEmitFailures     prometheus.Counter
	SubmitDuration        prometheus.Histogram
	HTTPRequests          *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		UsersRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_users_registered_total",
			Help: "Total number of users registered",
		}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		ApplicationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_applications_created_total",
			Help: "Total number of applications started",
		}),
		ApplicationsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_applications_submitted_total",
			Help: "Submitted applications by risk level",
		}, []string{"risk_level"}),
		ApplicationsReviewed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_applications_reviewed_total",
			Help: "Review decisions by outcome",
		}, []string{"decision"}),
		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_risk_score",
			Help:    "Distribution of risk scores computed at submission",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		VersionConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_application_version_conflicts_total",
			Help: "Writes rejected because the application changed underneath them",
		}),
		AuditEmitFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "kyc_audit_emit_failures_total",
			Help: "Audit events that could not be recorded",
		}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_submit_duration_seconds",
			Help:    "Duration of SubmitApplication (scoring and persistence)",
			Buckets: durationBuckets,
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementUsersRegistered() {
	m.UsersRegistered.Inc()
}

// IncrementLogin records a login attempt; result is "success" or "failure".
func (m *Metrics) IncrementLogin(result string) {
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementApplicationsCreated() {
	m.ApplicationsCreated.Inc()
}

// ObserveSubmission records the risk tier and score of a submitted application.
func (m *Metrics) ObserveSubmission(level string, score float64) {
	m.ApplicationsSubmitted.WithLabelValues(level).Inc()
	m.RiskScore.Observe(score)
}

func (m *Metrics) IncrementReviewed(decision string) {
	m.ApplicationsReviewed.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementVersionConflicts() {
	m.VersionConflicts.Inc()
}

func (m *Metrics) IncrementAuditEmitFailures() {
	m.AuditEmitFailures.Inc()
}

// ObserveSubmit records the duration of a SubmitApplication call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementHTTPRequests(method, route, status string) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}
