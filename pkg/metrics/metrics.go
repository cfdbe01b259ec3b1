// Package metrics 流水线步骤指标（私有 registry，可导出为 node-exporter textfile）
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 步骤结果标签
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// Recorder 记录每个编排步骤的次数与耗时
type Recorder struct {
	registry *prometheus.Registry
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder 创建记录器
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medici",
			Subsystem: "vault",
			Name:      "steps_total",
			Help:      "Orchestration steps executed, by step and outcome.",
		}, []string{"step", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medici",
			Subsystem: "vault",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of orchestration steps including confirmation wait.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60, 120},
		}, []string{"step"}),
	}
	r.registry.MustRegister(r.steps, r.duration)
	return r
}

// ObserveStep 记录一次步骤执行
func (r *Recorder) ObserveStep(step, outcome string, elapsed time.Duration) {
	r.steps.WithLabelValues(step, outcome).Inc()
	r.duration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// Registry 底层 registry（测试或自定义导出使用）
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile 以 textfile collector 格式写出当前指标
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
