package metrics

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 应用指标集合
type Metrics struct {
	// 上传成功次数，按最终落地的存储和上传目标区分
	Uploads *prometheus.CounterVec

	// 回退到本地存储的次数，按原因区分
	Fallbacks *prometheus.CounterVec

	// 认证失败后重建客户端重试的次数
	AuthRetries prometheus.Counter

	// 上传的图片大小
	ImageSize prometheus.Histogram

	// 存储耗时
	StorageDuration *prometheus.HistogramVec

	// 错误计数器
	Errors *prometheus.CounterVec

	// 存储代理请求计数
	ProxyRequests *prometheus.CounterVec

	// 连接检查结果
	ConnectionChecks *prometheus.CounterVec

	// API请求计数
	APIRequests *prometheus.CounterVec

	// API响应时间
	APILatency *prometheus.HistogramVec
}

// NewMetrics 创建新的指标收集器并注册到默认注册表
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith 创建指标收集器并注册到 reg，测试中使用独立的注册表
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "图片上传成功次数",
			},
			[]string{"backend", "target"},
		),

		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "回退到本地存储的次数",
			},
			[]string{"reason"},
		),

		AuthRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_retries_total",
				Help:      "认证失败后重建客户端重试次数",
			},
		),

		ImageSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "image_size_bytes",
				Help:      "上传的图片大小（字节）",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 14), // 从1KB到8MB的指数分布
			},
		),

		StorageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "存储操作耗时（秒）",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "错误次数",
			},
			[]string{"type"},
		),

		ProxyRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_requests_total",
				Help:      "存储代理请求次数",
			},
			[]string{"status"},
		),

		ConnectionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_checks_total",
				Help:      "远程存储连接检查次数",
			},
			[]string{"result"},
		),

		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "API请求次数",
			},
			[]string{"method", "path", "status"},
		),

		APILatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API响应时间（秒）",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	return m
}

// MetricsMiddleware Gin中间件，用于收集API指标
func MetricsMiddleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 继续处理请求
		c.Next()

		// 忽略健康检查端点的指标收集
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}

		// 使用路由模板作为标签，避免静态文件路径导致标签爆炸
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.APIRequests.WithLabelValues(
			c.Request.Method,
			path,
			fmt.Sprintf("%d", c.Writer.Status()),
		).Inc()

		metrics.APILatency.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}
