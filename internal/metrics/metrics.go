// Package metrics содержит счётчики Prometheus библиотечного сервиса.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "library"

// Metrics хранит собственный реестр и коллекторы сервиса.
// Все методы допускают nil-получатель, чтобы сервис работал без метрик.
type Metrics struct {
	registry *prometheus.Registry

	booksBorrowed     prometheus.Counter
	booksReturned     prometheus.Counter
	receiptChecks     *prometheus.CounterVec
	bestEffortFailure *prometheus.CounterVec
	sessions          *prometheus.CounterVec
	copiesReconciled  prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New создаёт набор метрик в отдельном реестре.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		booksBorrowed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_borrowed_total",
			Help:      "Number of book copies lent out.",
		}),
		booksReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_returned_total",
			Help:      "Number of book copies returned.",
		}),
		receiptChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_verifications_total",
			Help:      "Receipt verification attempts by result.",
		}, []string{"result"}),
		bestEffortFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "best_effort_failures_total",
			Help:      "Failed post-commit steps by step name.",
		}, []string{"step"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Library entries and exits.",
		}, []string{"event"}),
		copiesReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copies_reconciled_total",
			Help:      "Books whose available copy counter was corrected.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.booksBorrowed,
		m.booksReturned,
		m.receiptChecks,
		m.bestEffortFailure,
		m.sessions,
		m.copiesReconciled,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Handler возвращает обработчик /metrics для реестра сервиса.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BooksBorrowed(n int) {
	if m == nil {
		return
	}
	m.booksBorrowed.Add(float64(n))
}

func (m *Metrics) BooksReturned(n int) {
	if m == nil {
		return
	}
	m.booksReturned.Add(float64(n))
}

// ReceiptVerification учитывает попытку проверки квитанции с результатом result.
func (m *Metrics) ReceiptVerification(result string) {
	if m == nil {
		return
	}
	m.receiptChecks.WithLabelValues(result).Inc()
}

// BestEffortFailure учитывает сбой необязательного шага после фиксации основной операции.
func (m *Metrics) BestEffortFailure(step string) {
	if m == nil {
		return
	}
	m.bestEffortFailure.WithLabelValues(step).Inc()
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(event).Inc()
}

func (m *Metrics) CopiesReconciled(n int) {
	if m == nil {
		return
	}
	m.copiesReconciled.Add(float64(n))
}

// ObserveHTTP учитывает обработанный HTTP-запрос.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
