package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	pollCyclesTotal      *prometheus.CounterVec
	messagesTotal        *prometheus.CounterVec
	processDuration      *prometheus.HistogramVec
	processInFlight      prometheus.Gauge
	queueLag             *prometheus.HistogramVec
	extractionRunsTotal  *prometheus.CounterVec
	attachmentsExtracted *prometheus.CounterVec
	reportMergeDuration  *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	pollCyclesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailpipe",
			Subsystem: "worker",
			Name:      "poll_cycles_total",
			Help:      "Total provider poll cycles by provider kind and status.",
		},
		[]string{"service", "provider", "status"},
	)
	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailpipe",
			Subsystem: "worker",
			Name:      "messages_processed_total",
			Help:      "Total processed messages by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailpipe",
			Subsystem: "worker",
			Name:      "message_process_duration_seconds",
			Help:      "Message processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mailpipe",
			Subsystem: "worker",
			Name:      "message_process_in_flight",
			Help:      "Number of in-flight message processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailpipe",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between message receipt at the provider and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	extractionRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailpipe",
			Subsystem: "worker",
			Name:      "extraction_runs_total",
			Help:      "Total attachment extraction runs by status.",
		},
		[]string{"service", "status"},
	)
	attachmentsExtracted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailpipe",
			Subsystem: "worker",
			Name:      "attachments_extracted_total",
			Help:      "Total attachments handled by extraction runs, by document type and status.",
		},
		[]string{"service", "document_type", "status"},
	)
	reportMergeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailpipe",
			Subsystem: "worker",
			Name:      "report_merge_duration_seconds",
			Help:      "Weekly report merge duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(
		pollCyclesTotal,
		messagesTotal,
		processDuration,
		processInFlight,
		queueLag,
		extractionRunsTotal,
		attachmentsExtracted,
		reportMergeDuration,
	)

	return &WorkerMetrics{
		registry:             registry,
		pollCyclesTotal:      pollCyclesTotal,
		messagesTotal:        messagesTotal,
		processDuration:      processDuration,
		processInFlight:      processInFlight,
		queueLag:             queueLag,
		extractionRunsTotal:  extractionRunsTotal,
		attachmentsExtracted: attachmentsExtracted,
		reportMergeDuration:  reportMergeDuration,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) RecordPollCycle(service, provider string, err error) {
	m.pollCyclesTotal.WithLabelValues(service, provider, statusLabel(err)).Inc()
}

func (m *WorkerMetrics) StartMessage() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishMessage(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := statusLabel(err)
	m.messagesTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordExtractionRun(service string, err error) {
	m.extractionRunsTotal.WithLabelValues(service, statusLabel(err)).Inc()
}

func (m *WorkerMetrics) RecordAttachment(service, documentType, status string) {
	if documentType == "" {
		documentType = "unknown"
	}
	m.attachmentsExtracted.WithLabelValues(service, documentType, status).Inc()
}

func (m *WorkerMetrics) ObserveReportMerge(service string, duration time.Duration) {
	m.reportMergeDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
