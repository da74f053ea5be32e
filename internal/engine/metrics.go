package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/internal/program"
	"github.com/rendis/taskchain/internal/scheduler"
)

// Metrics exports engine telemetry to Prometheus. It implements
// actions.Observer and program.IterationObserver so a single value can be
// handed to the program builder.
type Metrics struct {
	runs              *prometheus.CounterVec
	iterations        *prometheus.CounterVec
	iterationDuration *prometheus.HistogramVec
	actionDuration    *prometheus.HistogramVec
	actionFailures    *prometheus.CounterVec
	suppressed        *prometheus.CounterVec
}

var (
	_ actions.Observer          = (*Metrics)(nil)
	_ program.IterationObserver = (*Metrics)(nil)
)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskchain_runs_total",
				Help: "Program runs by outcome",
			},
			[]string{"program", "result"},
		),
		iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskchain_iterations_total",
				Help: "Program iterations by outcome",
			},
			[]string{"program", "result"},
		),
		iterationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskchain_iteration_duration_seconds",
				Help:    "Duration of one pass over a program body",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"program"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskchain_action_duration_seconds",
				Help:    "Duration of action runs by kind",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"kind"},
		),
		actionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskchain_action_failures_total",
				Help: "Failed action runs by kind",
			},
			[]string{"kind"},
		),
		suppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskchain_catch_suppressed_total",
				Help: "Failures absorbed by catch actions",
			},
			[]string{"action"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.runs, m.iterations, m.iterationDuration, m.actionDuration, m.actionFailures, m.suppressed,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterExecutor exports the executor counters as gauges labelled by state.
func RegisterExecutor(reg prometheus.Registerer, ex *scheduler.Executor) error {
	gauges := map[string]func(scheduler.ExecutorMetrics) int64{
		"spawned":   func(m scheduler.ExecutorMetrics) int64 { return m.Spawned },
		"respawned": func(m scheduler.ExecutorMetrics) int64 { return m.Respawned },
		"active":    func(m scheduler.ExecutorMetrics) int64 { return m.Active },
		"completed": func(m scheduler.ExecutorMetrics) int64 { return m.Completed },
		"failed":    func(m scheduler.ExecutorMetrics) int64 { return m.Failed },
		"panics":    func(m scheduler.ExecutorMetrics) int64 { return m.Panics },
	}
	for state, read := range gauges {
		read := read
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "taskchain_scheduler_tasks",
			Help:        "Executor task counters by state",
			ConstLabels: prometheus.Labels{"state": state},
		}, func() float64 { return float64(read(ex.Metrics())) })
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) ActionFinished(_ context.Context, a *actions.Action, elapsed time.Duration, err error) {
	kind := string(a.Kind())
	m.actionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		m.actionFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FailureSuppressed(_ context.Context, a *actions.Action, _ error) {
	m.suppressed.WithLabelValues(a.ID().String()).Inc()
}

func (m *Metrics) IterationFinished(_ context.Context, prog string, _ int, elapsed time.Duration, err error) {
	m.iterations.WithLabelValues(prog, result(err)).Inc()
	m.iterationDuration.WithLabelValues(prog).Observe(elapsed.Seconds())
}

// RunFinished records the outcome of a whole RunN call.
func (m *Metrics) RunFinished(prog string, report *program.RunReport, err error) {
	if err == nil && report != nil {
		err = report.Err()
	}
	m.runs.WithLabelValues(prog, result(err)).Inc()
}
