package sessionviewer

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/raven-go"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	panicHandler = middleware.Recoverer

	defaultPanicCapture = func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				_, _ = fmt.Fprintf(logMultiWriter, "\n\nrecovered from panic: %v\n\n", r)
				_, _ = fmt.Fprint(logMultiWriter, string(debug.Stack()))
			}
		}()

		fn()
	}

	panicCapture = defaultPanicCapture

	prometheusMonitoringHandler = http.NotFoundHandler

	prometheusMonitoringWrapper = func(next http.Handler) http.Handler {
		return next
	}
)

func InitMonitoring(config MonitoringConfig) {
	if config.SentryDSN != "" {
		logrus.Infof("initialising Raven monitoring")
		err := raven.SetDSN(config.SentryDSN)

		if err != nil {
			logrus.WithError(err).Error("could not initialise raven monitoring")
		} else {
			raven.SetRelease(BuildVersion)

			panicHandler = raven.Recoverer
			panicCapture = func(fn func()) {
				raven.CapturePanic(fn, nil)
			}
		}
	}

	logrus.Infof("initialising Prometheus Monitoring")
	prometheus.MustRegister(
		HTTPInFlightGauge, HTTPCounter, HTTPDuration, HTTPResponseSize,
		viewsActive, remotesConnected, seeksTotal, remoteCommandsTotal, chartRenderDuration,
	)
	prometheusMonitoringHandler = promhttp.Handler
	prometheusMonitoringWrapper = func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerInFlight(HTTPInFlightGauge,
			promhttp.InstrumentHandlerDuration(HTTPDuration.MustCurryWith(prometheus.Labels{"handler": "viewer"}),
				promhttp.InstrumentHandlerCounter(HTTPCounter,
					promhttp.InstrumentHandlerResponseSize(HTTPResponseSize, next),
				),
			),
		)
	}
}

var viewsActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "views_active",
	Help: "The number of session views currently open.",
})

var remotesConnected = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "remotes_connected",
	Help: "The number of remote controllers currently connected.",
})

// seeksTotal is partitioned by what asked for the seek: a chart click or a command.
var seeksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "seeks_total",
		Help: "A counter for seeks across every view.",
	},
	[]string{"source"},
)

var remoteCommandsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "remote_commands_total",
		Help: "A counter for playback commands run, by type.",
	},
	[]string{"type"},
)

var chartRenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "chart_render_duration_seconds",
	Help:    "A histogram of chart render times.",
	Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
})

var HTTPInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "in_flight_requests",
	Help: "A gauge of requests currently being served by the wrapped handler.",
})

var HTTPCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "web_requests_total",
		Help: "A counter for requests to the wrapped handler.",
	},
	[]string{"code", "method"},
)

// HTTPDuration is partitioned by the HTTP method and handler. It uses custom
// buckets based on the expected request duration.
var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "request_duration_seconds",
		Help:    "A histogram of latencies for requests.",
		Buckets: []float64{.25, .5, 1, 2.5, 5, 10},
	},
	[]string{"handler", "method"},
)

// HTTPResponseSize has no labels, making it a zero-dimensional
// ObserverVec.
var HTTPResponseSize = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "response_size_bytes",
		Help:    "A histogram of response sizes for requests.",
		Buckets: []float64{200, 500, 900, 1500},
	},
	[]string{},
)
