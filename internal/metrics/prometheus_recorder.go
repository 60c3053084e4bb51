package metrics

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry        *prom.Registry
	buildsStarted   prom.Counter
	buildOutcome    *prom.CounterVec
	buildConflicts  prom.Counter
	stageDuration   *prom.HistogramVec
	compileProgress prom.Gauge
	httpRequests    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		buildsStarted: prom.NewCounter(prom.CounterOpts{
			Name: "rombuilder_builds_started_total",
			Help: "Builds accepted by the pipeline.",
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Name: "rombuilder_builds_finished_total",
			Help: "Builds finished, by outcome.",
		}, []string{"outcome"}),
		buildConflicts: prom.NewCounter(prom.CounterOpts{
			Name: "rombuilder_build_conflicts_total",
			Help: "Build submissions rejected because a build was active.",
		}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "rombuilder_stage_duration_seconds",
			Help:    "Wall-clock duration per pipeline stage.",
			Buckets: prom.ExponentialBuckets(1, 4, 10),
		}, []string{"stage"}),
		compileProgress: prom.NewGauge(prom.GaugeOpts{
			Name: "rombuilder_compile_progress",
			Help: "Displayed progress during the compilation stage (50-100).",
		}),
		httpRequests: prom.NewCounterVec(prom.CounterOpts{
			Name: "rombuilder_http_requests_total",
			Help: "HTTP requests served, by path and status.",
		}, []string{"path", "status"}),
	}
	reg.MustRegister(pr.buildsStarted, pr.buildOutcome, pr.buildConflicts,
		pr.stageDuration, pr.compileProgress, pr.httpRequests)
	return pr
}

func (pr *PrometheusRecorder) IncBuildsStarted()         { pr.buildsStarted.Inc() }
func (pr *PrometheusRecorder) IncBuildConflict()         { pr.buildConflicts.Inc() }
func (pr *PrometheusRecorder) SetCompileProgress(p int)  { pr.compileProgress.Set(float64(p)) }

func (pr *PrometheusRecorder) IncBuildOutcome(outcome string) {
	pr.buildOutcome.WithLabelValues(outcome).Inc()
}

func (pr *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	pr.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncHTTPRequest(path string, status int) {
	pr.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// HTTPHandler returns an http.Handler serving this recorder's registry.
func (pr *PrometheusRecorder) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(pr.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

var _ Recorder = (*PrometheusRecorder)(nil)
