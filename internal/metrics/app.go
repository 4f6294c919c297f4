package metrics

import (
	"time"

	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Recommendation pipeline metrics
	RecommendationRunsTotal   = "app_recommendation_runs_total"
	RecommendationRounds      = "app_recommendation_rounds"
	RecommendationDuration    = "app_recommendation_duration_ms"
	RecommendationsReturned   = "app_recommendations_returned"
	RecommendationUnderTarget = "app_recommendation_under_target_total"

	// Provider call metrics
	ProviderCallsTotal    = "app_provider_calls_total"
	ProviderCallDuration  = "app_provider_call_duration_ms"
	ProviderHealthStatus  = "app_provider_health_status"
	RateLimitWaitDuration = "app_rate_limit_wait_duration_ms"

	// Cache metrics
	CacheHitsTotal   = "app_cache_hits_total"
	CacheMissesTotal = "app_cache_misses_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordRecommendationRun records one finished pipeline run with its stop
// reason and loop metadata.
func RecordRecommendationRun(provider string, result *core.RecommendationResult, duration time.Duration) {
	if observability.TelemetrySystem == nil || result == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		RecommendationRunsTotal,
		1,
		map[string]string{
			"provider":    provider,
			"stop_reason": string(result.StopReason),
		},
	)
	_ = observability.TelemetrySystem.Gauge(
		RecommendationRounds,
		float64(result.RoundsUsed),
		map[string]string{"provider": provider},
	)
	_ = observability.TelemetrySystem.Gauge(
		RecommendationsReturned,
		float64(len(result.Recommendations)),
		map[string]string{"provider": provider},
	)
	_ = observability.TelemetrySystem.Histogram(
		RecommendationDuration,
		duration,
		map[string]string{"provider": provider},
	)
	if result.UnderTarget {
		_ = observability.TelemetrySystem.Counter(
			RecommendationUnderTarget,
			1,
			map[string]string{"provider": provider},
		)
	}
}

// RecordProviderCall records one backend round trip.
func RecordProviderCall(provider string, success bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(
		ProviderCallsTotal,
		1,
		map[string]string{
			"provider": provider,
			"status":   status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		ProviderCallDuration,
		duration,
		map[string]string{"provider": provider},
	)
}

// SetProviderHealth exports a provider's current health verdict as a gauge
// (1 healthy, 0.5 degraded, 0 unhealthy).
func SetProviderHealth(provider string, status core.HealthStatus) {
	if observability.TelemetrySystem == nil {
		return
	}

	value := 0.0
	switch status {
	case core.HealthHealthy:
		value = 1.0
	case core.HealthDegraded:
		value = 0.5
	}
	_ = observability.TelemetrySystem.Gauge(
		ProviderHealthStatus,
		value,
		map[string]string{"provider": provider},
	)
}

// RecordCacheLookup records a recommendation cache hit or miss.
func RecordCacheLookup(hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	name := CacheMissesTotal
	if hit {
		name = CacheHitsTotal
	}
	_ = observability.TelemetrySystem.Counter(name, 1, nil)
}

// RecordRateLimitWait records time spent waiting for an admission slot.
func RecordRateLimitWait(resource string, wait time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Histogram(
		RateLimitWaitDuration,
		wait,
		map[string]string{"resource": resource},
	)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(
		HealthCheckTotal,
		1,
		map[string]string{
			"check":  checkName,
			"status": status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		HealthCheckDuration,
		duration,
		map[string]string{"check": checkName},
	)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
