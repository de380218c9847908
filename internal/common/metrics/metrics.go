// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	TriggerAuto   = "auto"
	TriggerManual = "manual"

	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultSkipped  = "skipped"
	ResultRejected = "rejected"
)

var (
	ProjectSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_saves_total",
			Help: "Total number of full-record save attempts",
		},
		[]string{"trigger", "result"},
	)

	ProjectSaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "project_save_duration_seconds",
			Help: "Duration of full-record saves in seconds",
		},
		[]string{"trigger"},
	)

	AutosavePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "project_autosave_pending",
			Help: "Number of armed autosave timers",
		},
	)

	NoteOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_note_operations_total",
			Help: "Total number of note add/remove operations",
		},
		[]string{"list", "operation", "result"},
	)

	DraftWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_draft_writes_total",
			Help: "Total number of draft overlay writes",
		},
		[]string{"result"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_status_transitions_total",
			Help: "Total number of status transition requests",
		},
		[]string{"target", "result"},
	)
)
