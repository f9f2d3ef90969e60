package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Library metrics, registered once with the default registry
var (
	// ThumbnailAttempts counts every strategy attempt of the thumbnail chain
	ThumbnailAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelvault_thumbnail_attempts_total",
			Help: "Thumbnail generation attempts by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	// UploadsTotal counts accepted uploads
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelvault_uploads_total",
			Help: "Accepted uploads by kind (movie or episode)",
		},
		[]string{"kind"},
	)

	// UploadBytesTotal counts stored video bytes
	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelvault_upload_bytes_total",
			Help: "Total number of video bytes stored",
		},
	)

	// AccessDecisions counts access gate outcomes
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelvault_access_decisions_total",
			Help: "Access gate decisions (allowed, blocked, exempt, error)",
		},
		[]string{"decision"},
	)

	// JobDurationSeconds observes background job durations
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "reelvault_job_duration_seconds",
			Help: "Duration of background jobs in seconds",
		},
		[]string{"queue", "type", "status"},
	)

	// HealthStatus reports dependency health (1=ok, 0.5=degraded, 0=down)
	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelvault_health_status",
			Help: "Health status of dependencies (1=ok, 0.5=degraded, 0=down)",
		},
		[]string{"dependency"},
	)
)
