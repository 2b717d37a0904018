// Package metrics exports retry-loop counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/chat"
)

const namespace = "cs_chatbot"

// Recorder owns the chatbot's collectors and a private registry.
type Recorder struct {
	registry     *prometheus.Registry
	attempts     *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	trimmedTurns prometheus.Counter
	backoff      prometheus.Histogram
	sends        *prometheus.CounterVec
	sendDuration prometheus.Histogram
	failures     *prometheus.CounterVec
}

// NewRecorder creates and registers all collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_attempts_total",
			Help:      "Completion requests sent to the provider.",
		}, []string{"model"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Attempts rejected with a quota-exceeded status.",
		}, []string{"model"}),
		trimmedTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trimmed_turns_total",
			Help:      "Turns dropped from history before a retry.",
		}),
		backoff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Backoff waited between attempts.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Completed sends by terminal state.",
		}, []string{"model", "state"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Wall time of successful sends including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Sends aborted by a non-quota error, by status code.",
		}, []string{"status"}),
	}
	r.registry.MustRegister(
		r.attempts,
		r.rateLimited,
		r.trimmedTurns,
		r.backoff,
		r.sends,
		r.sendDuration,
		r.failures,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Hooks returns controller hooks that feed the collectors for model.
func (r *Recorder) Hooks(model string) chat.Hooks {
	return chat.Hooks{
		OnAttempt: func(ctx context.Context, st chat.RetryState) {
			r.attempts.WithLabelValues(model).Inc()
		},
		OnRateLimited: func(ctx context.Context, st chat.RetryState) {
			r.rateLimited.WithLabelValues(model).Inc()
		},
		OnTrim: func(ctx context.Context, ev chat.TrimEvent) {
			r.trimmedTurns.Add(float64(ev.Removed))
			r.backoff.Observe(ev.Backoff.Seconds())
		},
		OnSucceeded: func(ctx context.Context, st chat.RetryState, elapsed time.Duration) {
			r.sends.WithLabelValues(model, chat.StateSucceeded.String()).Inc()
			r.sendDuration.Observe(elapsed.Seconds())
		},
		OnExhausted: func(ctx context.Context, st chat.RetryState) {
			r.sends.WithLabelValues(model, chat.StateExhausted.String()).Inc()
		},
		OnFailed: func(ctx context.Context, st chat.RetryState) {
			r.sends.WithLabelValues(model, "failed").Inc()
			r.failures.WithLabelValues(statusLabel(st.LastErr)).Inc()
		},
	}
}

func statusLabel(err error) string {
	switch code := ai.StatusCode(err); {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case code == 0:
		return "transport"
	default:
		return strconv.Itoa(code)
	}
}

// Handler serves /metrics and /healthz.
func (r *Recorder) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics_server_start", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("metrics_server_stop", "addr", addr)
		return nil
	}
}
