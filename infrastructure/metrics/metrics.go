package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"social-publisher/domain/model"
)

var (
	// PublishOutcomes counts per-platform outcomes; kind is empty on success.
	PublishOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_platform_outcomes_total",
		Help: "Total number of platform publish outcomes by status and failure kind",
	}, []string{"platform", "status", "kind"})

	// PublishLatency records adapter call latency per platform.
	PublishLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "publisher_platform_latency_seconds",
		Help:    "Platform publish latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"platform"})

	// PostOutcomes counts finalised posts by aggregate status.
	PostOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_post_outcomes_total",
		Help: "Total number of finalised posts by aggregate status",
	}, []string{"status"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_token_refreshes_total",
		Help: "Total number of credential refresh attempts by platform and result",
	}, []string{"platform", "result"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_jobs_processed_total",
		Help: "Total number of queued jobs handled by kind and result",
	}, []string{"kind", "result"})

	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "publisher_stream_clients",
		Help: "Number of connected result stream clients",
	})
)

// ObservePlatform records one adapter outcome. pe is nil on success.
func ObservePlatform(platform model.Platform, pe *model.PublishError, started time.Time) {
	PublishLatency.WithLabelValues(string(platform)).Observe(time.Since(started).Seconds())
	if pe == nil {
		PublishOutcomes.WithLabelValues(string(platform), string(model.ResultStatusPosted), "").Inc()
		return
	}
	PublishOutcomes.WithLabelValues(string(platform), string(model.ResultStatusFailed), string(pe.Kind)).Inc()
}

func ObservePost(status model.PostStatus) {
	PostOutcomes.WithLabelValues(string(status)).Inc()
}

func ObserveRefresh(platform model.Platform, result string) {
	TokenRefreshes.WithLabelValues(string(platform), result).Inc()
}

func ObserveJob(kind model.JobKind, result string) {
	JobsProcessed.WithLabelValues(string(kind), result).Inc()
}
