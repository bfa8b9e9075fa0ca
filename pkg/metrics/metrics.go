// Package metrics exposes Prometheus collectors for the oracle, tool and
// incident layers.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sherlog"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Completion requests, partitioned by model, stop reason and outcome.",
		},
		[]string{"model", "stop_reason", "outcome"},
	)

	llmRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_seconds",
			Help:      "Completion request latency including the full stream.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"model"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the completion service.",
		},
		[]string{"model", "type"},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls dispatched, partitioned by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	toolCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_seconds",
			Help:      "Tool call latency.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90},
		},
		[]string{"tool"},
	)

	incidentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_operations_total",
			Help:      "Incident state machine operations, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

// Register attaches the collectors to reg. Collectors that are already
// registered are skipped.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		llmRequestsTotal,
		llmRequestSeconds,
		llmTokensTotal,
		toolCallsTotal,
		toolCallSeconds,
		incidentOperationsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// ObserveLLMRequest records one completion request.
func ObserveLLMRequest(model, stopReason string, d time.Duration, err error) {
	if stopReason == "" {
		stopReason = "none"
	}
	llmRequestsTotal.WithLabelValues(model, stopReason, outcome(err)).Inc()
	llmRequestSeconds.WithLabelValues(model).Observe(max(d, 0).Seconds())
}

// AddTokens records token usage for one request.
func AddTokens(model string, input, output int) {
	if input > 0 {
		llmTokensTotal.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		llmTokensTotal.WithLabelValues(model, "output").Add(float64(output))
	}
}

// ObserveToolCall records one dispatched tool call.
func ObserveToolCall(tool string, d time.Duration, isError bool) {
	o := OutcomeSuccess
	if isError {
		o = OutcomeError
	}
	toolCallsTotal.WithLabelValues(tool, o).Inc()
	toolCallSeconds.WithLabelValues(tool).Observe(max(d, 0).Seconds())
}

// IncidentOperation records one state machine operation.
func IncidentOperation(op string, err error) {
	incidentOperationsTotal.WithLabelValues(op, outcome(err)).Inc()
}

// Serve exposes reg on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
