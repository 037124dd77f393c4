// Package metrics exposes Prometheus counters for dictation sessions and
// the learning loop.
package metrics

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"murmur/log"
)

// Session outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeCancelled = "cancelled"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
)

// Style outcomes.
const (
	StyleApplied   = "applied"
	StyleCancelled = "cancelled"
	StyleEmpty     = "empty"
	StyleFailed    = "failed"
	StyleStale     = "stale"
)

// Learning results.
const (
	LearningSkipped   = "skipped"
	LearningNoUpdate  = "no_update"
	LearningUpdated   = "updated"
	LearningCompacted = "compacted"
	LearningFailed    = "failed"
)

var (
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_sessions_total",
		Help: "Dictation sessions by outcome",
	}, []string{"outcome"})

	TranscriptionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "murmur_transcription_seconds",
		Help:    "Time from capture stop to the end of the transcription stream",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 10, 20},
	})

	StyleOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_style_operations_total",
		Help: "Voice restyle operations by outcome",
	}, []string{"outcome"})

	LearningUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_learning_updates_total",
		Help: "Learning loop runs by result",
	}, []string{"result"})

	LearningInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_learning_in_progress",
		Help: "1 while the memory store is being updated",
	})
)

func RecordSession(outcome string) {
	Sessions.WithLabelValues(outcome).Inc()
}

func ObserveTranscription(d time.Duration) {
	TranscriptionSeconds.Observe(d.Seconds())
}

func RecordStyle(outcome string) {
	StyleOperations.WithLabelValues(outcome).Inc()
}

func RecordLearning(result string) {
	LearningUpdates.WithLabelValues(result).Inc()
}

func SetLearning(active bool) {
	if active {
		LearningInProgress.Set(1)
		return
	}
	LearningInProgress.Set(0)
}

func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve exposes /metrics on addr in the background. The returned server is
// already listening.
func Serve(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	return srv, nil
}
