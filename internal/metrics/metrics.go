// Package metrics provides Prometheus metrics for cfgfs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bind engine metrics
	activationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfgfs_activations_total",
			Help: "Total key edge activations",
		},
		[]string{"edge"},
	)

	handlerFaultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cfgfs_handler_faults_total",
			Help: "Total bind handlers that failed during an activation",
		},
	)

	commandsEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cfgfs_commands_emitted_total",
			Help: "Total commands drained into file content",
		},
	)

	keysDown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfgfs_keys_down",
			Help: "Number of keys currently held down",
		},
	)

	// Filesystem metrics
	fsOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfgfs_fs_ops_total",
			Help: "Total filesystem requests",
		},
		[]string{"op", "result"},
	)

	bytesServedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cfgfs_bytes_served_total",
			Help: "Total bytes returned by reads",
		},
	)

	openSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfgfs_open_sessions",
			Help: "Number of open file handles",
		},
	)

	// Script metrics
	scriptReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfgfs_script_reloads_total",
			Help: "Total bind reloads",
		},
		[]string{"result"},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfgfs_messages_total",
			Help: "Total writes delivered through trigger files",
		},
		[]string{"kind"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordActivation records a key edge activation.
func RecordActivation(down bool) {
	edge := "release"
	if down {
		edge = "press"
	}
	activationsTotal.WithLabelValues(edge).Inc()
}

// RecordHandlerFault records a failed bind handler.
func RecordHandlerFault() {
	handlerFaultsTotal.Inc()
}

// RecordCommands records commands drained into content.
func RecordCommands(n int) {
	commandsEmittedTotal.Add(float64(n))
}

// SetKeysDown sets the number of keys held down.
func SetKeysDown(n int) {
	keysDown.Set(float64(n))
}

// RecordFSOp records a filesystem request and its outcome.
func RecordFSOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fsOpsTotal.WithLabelValues(op, result).Inc()
}

// RecordBytesServed records bytes returned by a read.
func RecordBytesServed(n int) {
	bytesServedTotal.Add(float64(n))
}

// SetOpenSessions sets the number of open file handles.
func SetOpenSessions(n int) {
	openSessions.Set(float64(n))
}

// RecordReload records a bind reload.
func RecordReload(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	scriptReloadsTotal.WithLabelValues(result).Inc()
}

// RecordMessage records a trigger-file write.
func RecordMessage(kind string) {
	messagesTotal.WithLabelValues(kind).Inc()
}
