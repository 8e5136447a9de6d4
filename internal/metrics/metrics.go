// Package metrics provides Prometheus metrics for sftpdeck.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/session"
)

// Metric names use the sftpdeck_ prefix.
const (
	Namespace = "sftpdeck"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	// BuildInfo exposes the running version.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information about sftpdeck.",
	}, []string{"version", "go_version"})

	// OperationsTotal counts remote operations by outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "operations_total",
		Help:      "Total remote operations by operation, protocol and result.",
	}, []string{"operation", "protocol", "result"})

	// OperationDuration tracks wall time of remote operations, connect included.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of remote operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// ErrorsTotal counts failed operations by error kind.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "errors_total",
		Help:      "Total failed remote operations by operation and error kind.",
	}, []string{"operation", "kind"})

	// BytesDownloaded counts bytes written to local files by downloads.
	BytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "bytes_downloaded_total",
		Help:      "Total bytes downloaded to local files.",
	})
)

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// ObserveOperation records one finished operation.
func ObserveOperation(operation, protocol string, started time.Time, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
		ErrorsTotal.WithLabelValues(operation, ErrorKind(err)).Inc()
	}
	OperationsTotal.WithLabelValues(operation, protocol, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ErrorKind maps an error to a low-cardinality label value.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrNotImplemented):
		return "not_implemented"
	case errors.Is(err, session.ErrUnknownProtocol):
		return "unknown_protocol"
	}

	switch session.Kind(err) {
	case session.ErrNetwork:
		return "network"
	case session.ErrHandshake:
		return "handshake"
	case session.ErrAuth:
		return "auth"
	case session.ErrChannel:
		return "channel"
	case session.ErrTransfer:
		return "transfer"
	case session.ErrUnsupportedProtocol:
		return "unsupported_protocol"
	case session.ErrClosed:
		return "closed"
	default:
		return "other"
	}
}
