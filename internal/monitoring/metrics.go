package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the radar's collectors. It is separate from the default
// registry so tests can construct handlers without global side effects.
var Registry = prometheus.NewRegistry()

var (
	bytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ld2415h",
		Name:      "bytes_total",
		Help:      "Raw bytes read from the radar UART.",
	})
	framesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ld2415h",
		Name:      "frames_total",
		Help:      "Completed frames by response kind.",
	}, []string{"kind"})
	decodeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ld2415h",
		Name:      "decode_errors_total",
		Help:      "Non-fatal decode conditions by type.",
	}, []string{"condition"})
	lastSpeed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ld2415h",
		Name:      "last_speed",
		Help:      "Most recent decoded speed in the device's unit.",
	}, []string{"direction", "unit"})
)

func init() {
	Registry.MustRegister(bytesTotal, framesTotal, decodeErrorsTotal, lastSpeed)
}

// AddBytes counts n raw bytes read from the port.
func AddBytes(n int) {
	bytesTotal.Add(float64(n))
}

// RecordFrame counts one completed frame of the given kind.
func RecordFrame(kind string) {
	framesTotal.WithLabelValues(kind).Inc()
}

// RecordDecodeError counts one decode condition.
func RecordDecodeError(condition string) {
	decodeErrorsTotal.WithLabelValues(condition).Inc()
}

// SetLastSpeed publishes the most recent reading.
func SetLastSpeed(direction, unit string, speed float64) {
	lastSpeed.Reset()
	lastSpeed.WithLabelValues(direction, unit).Set(speed)
}

// Handler serves the radar's metrics in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
