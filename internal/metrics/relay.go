package metrics

import (
	"time"

	"github.com/tgfiles/tgfiles/internal/observability"
)

// Relay metrics following Prometheus conventions
const (
	PollsTotal          = "relay_polls_total"
	PollDuration        = "relay_poll_duration_ms"
	FilesEmittedTotal   = "relay_files_emitted_total"
	ItemsSkippedTotal   = "relay_items_skipped_total"
	QuizQuestionsTotal  = "quiz_questions_parsed_total"
	RateRejectionsTotal = "ratelimit_rejections_total"
	RateStoreErrors     = "ratelimit_store_errors_total"
	RateEvictionsTotal  = "ratelimit_evictions_total"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
)

// RecordPoll records one upstream poll and how long it took.
// Outcome is one of ok, empty, error.
func RecordPoll(outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		PollsTotal,
		1,
		map[string]string{"outcome": outcome},
	)
	_ = observability.TelemetrySystem.Histogram(
		PollDuration,
		duration,
		nil,
	)
}

// RecordFilesEmitted counts normalized records returned to callers.
func RecordFilesEmitted(count int) {
	if count > 0 {
		counter(FilesEmittedTotal, float64(count), nil)
	}
}

// RecordItemSkipped counts an update dropped during normalization.
func RecordItemSkipped(reason string) {
	counter(ItemsSkippedTotal, 1, map[string]string{"reason": reason})
}

// RecordQuizParsed counts parsed questions by input source (remote, text).
func RecordQuizParsed(source string, questions int) {
	counter(QuizQuestionsTotal, float64(questions), map[string]string{"source": source})
}

// RecordRateRejection counts a throttled request.
func RecordRateRejection(route string) {
	counter(RateRejectionsTotal, 1, map[string]string{"route": route})
}

// RecordRateStoreError counts a window store failure (the limiter fails open).
func RecordRateStoreError(backend string) {
	counter(RateStoreErrors, 1, map[string]string{"backend": backend})
}

// RecordEvictions counts expired windows removed by a sweep.
func RecordEvictions(count int) {
	if count > 0 {
		counter(RateEvictionsTotal, float64(count), nil)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
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
			map[string]string{
				"check": checkName,
			},
		)
	}
}
