// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 工作流指标
	phaseExecutionsTotal   *prometheus.CounterVec
	phaseExecutionDuration *prometheus.HistogramVec
	workflowRunsTotal      *prometheus.CounterVec
	workflowIterations     *prometheus.HistogramVec

	// 模型提供商指标
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	providerTokensUsed      *prometheus.CounterVec

	// 检索数据源指标
	sourceAttemptsTotal *prometheus.CounterVec
	sourcePapersFound   *prometheus.HistogramVec

	// 持久化指标
	versionsSavedTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 工作流指标
	c.phaseExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_executions_total",
			Help:      "Total number of workflow phase executions",
		},
		[]string{"phase", "status"},
	)

	c.phaseExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_execution_duration_seconds",
			Help:      "Workflow phase execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	c.workflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"status"}, // completed, error
	)

	c.workflowIterations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_iterations",
			Help:      "Number of supervisor iterations per workflow run",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"status"},
	)

	// 模型提供商指标
	c.providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of model provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Model provider request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.providerTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 检索数据源指标
	c.sourceAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_attempts_total",
			Help:      "Total number of research source attempts",
		},
		[]string{"source", "status"}, // status: ok, empty, error
	)

	c.sourcePapersFound = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_papers_found",
			Help:      "Number of papers returned per successful source query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"source"},
	)

	// 持久化指标
	c.versionsSavedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_saved_total",
			Help:      "Total number of artifact versions saved",
		},
		[]string{"content_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPhaseExecution 记录工作流阶段执行
func (c *Collector) RecordPhaseExecution(phase, status string, duration time.Duration) {
	c.phaseExecutionsTotal.WithLabelValues(phase, status).Inc()
	c.phaseExecutionDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordWorkflowRun 记录一次完整工作流运行
func (c *Collector) RecordWorkflowRun(status string, iterations int) {
	c.workflowRunsTotal.WithLabelValues(status).Inc()
	c.workflowIterations.WithLabelValues(status).Observe(float64(iterations))
}

// RecordProviderRequest 记录模型提供商请求
func (c *Collector) RecordProviderRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.providerRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.providerTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.providerTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordSourceAttempt 记录检索数据源一次尝试
func (c *Collector) RecordSourceAttempt(source, status string, papers int) {
	c.sourceAttemptsTotal.WithLabelValues(source, status).Inc()
	if status == "ok" {
		c.sourcePapersFound.WithLabelValues(source).Observe(float64(papers))
	}
}

// RecordVersionSaved 记录产物版本保存
func (c *Collector) RecordVersionSaved(contentType string) {
	c.versionsSavedTotal.WithLabelValues(contentType).Inc()
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
