package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type CalculatorMetrics struct {
	RequestDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	SessionsActive       prometheus.Gauge
	SessionsExpiredTotal prometheus.Counter
	SubmissionsTotal     *prometheus.CounterVec
	TransitionsTotal     *prometheus.CounterVec
	PaymentsTotal        *prometheus.CounterVec
	LoansRepaidTotal     prometheus.Counter
	RemindersSentTotal   prometheus.Counter
	BatchJobDuration     *prometheus.HistogramVec
	EventsPublishedTotal *prometheus.CounterVec
}

type ConsumerMetrics struct {
	EventsConsumedTotal *prometheus.CounterVec
}

var (
	HTTP = HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_simulator_http_requests_total",
				Help: "Total number of HTTP requests received.",
			},
			[]string{"method", "path", "code"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loan_simulator_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "code"},
		),
	}

	Calculator = CalculatorMetrics{
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loan_simulator_calculation_duration_seconds",
				Help:    "Histogram of calculation service latencies.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
	}

	Business = BusinessMetrics{
		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "loan_simulator_sessions_active",
				Help: "Number of workflow sessions currently held in memory.",
			},
		),
		SessionsExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loan_simulator_sessions_expired_total",
				Help: "Total number of sessions dropped for inactivity.",
			},
		),
		SubmissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_simulator_submissions_total",
				Help: "Total number of loan request submissions by outcome.",
			},
			[]string{"status"},
		),
		TransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_simulator_state_transitions_total",
				Help: "Total number of workflow state transitions by target state.",
			},
			[]string{"state"},
		),
		PaymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_simulator_payments_total",
				Help: "Total number of installment payment attempts by outcome.",
			},
			[]string{"status"},
		),
		LoansRepaidTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loan_simulator_loans_repaid_total",
				Help: "Total number of schedules paid in full.",
			},
		),
		RemindersSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loan_simulator_payment_reminders_total",
				Help: "Total number of payment due reminders published.",
			},
		),
		BatchJobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loan_simulator_batch_job_duration_seconds",
				Help:    "Histogram of batch job run times.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		EventsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_simulator_events_published_total",
				Help: "Total number of lifecycle events published by routing key and outcome.",
			},
			[]string{"routing_key", "status"},
		),
	}

	Consumer = ConsumerMetrics{
		EventsConsumedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_simulator_events_consumed_total",
				Help: "Total number of lifecycle events consumed by the notifier by routing key and outcome.",
			},
			[]string{"routing_key", "status"},
		),
	}
)

func RecordHTTPRequest(method, path, code string, duration time.Duration) {
	HTTP.RequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTP.RequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

func RecordCalculation(status string, duration time.Duration) {
	Calculator.RequestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordSubmission(status string) {
	Business.SubmissionsTotal.WithLabelValues(status).Inc()
}

func RecordTransition(state string) {
	Business.TransitionsTotal.WithLabelValues(state).Inc()
}

func RecordPayment(status string) {
	Business.PaymentsTotal.WithLabelValues(status).Inc()
}

func RecordLoanRepaid() {
	Business.LoansRepaidTotal.Inc()
}

func SetActiveSessions(n int) {
	Business.SessionsActive.Set(float64(n))
}

func RecordSessionsExpired(n int) {
	Business.SessionsExpiredTotal.Add(float64(n))
}

func RecordReminderSent() {
	Business.RemindersSentTotal.Inc()
}

func RecordBatchJob(job string, duration time.Duration) {
	Business.BatchJobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func RecordEventPublished(routingKey, status string) {
	Business.EventsPublishedTotal.WithLabelValues(routingKey, status).Inc()
}

func RecordEventConsumed(routingKey, status string) {
	Consumer.EventsConsumedTotal.WithLabelValues(routingKey, status).Inc()
}
