package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientLimiter 单个客户端的速率限制器
type clientLimiter struct {
	limiter     *rate.Limiter
	windowStart time.Time
	lastSeen    time.Time
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	// 每个窗口允许的请求数
	Limit int
	// 限制窗口，如10分钟
	WindowSize time.Duration
	// 清理过期客户端的间隔
	CleanupInterval time.Duration
	// 客户端视为过期的时间
	ExpiryDuration time.Duration
}

// RateLimiter 按客户端IP固定窗口限流：窗口从该客户端的首个请求开始，窗口内最多 Limit 次，窗口结束后整体重置
type RateLimiter struct {
	cfg    RateLimitConfig
	logger *zap.SugaredLogger
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*clientLimiter
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter 创建速率限制器并启动过期清理
func NewRateLimiter(cfg RateLimitConfig, logger *zap.SugaredLogger) *RateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10 * time.Minute
	}
	// 默认清理间隔：5分钟
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	// 过期时间至少覆盖一个窗口，否则清理会重置计数
	if cfg.ExpiryDuration < cfg.WindowSize {
		cfg.ExpiryDuration = cfg.WindowSize
	}

	rl := &RateLimiter{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*clientLimiter),
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			if n := rl.cleanup(); n > 0 {
				rl.logger.Debugf("已清理 %d 个过期的速率限制器", n)
			}
		}
	}
}

func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	expired := 0
	now := rl.now()
	for ip, client := range rl.limiters {
		if now.Sub(client.lastSeen) > rl.cfg.ExpiryDuration {
			delete(rl.limiters, ip)
			expired++
		}
	}
	return expired
}

// Stop 停止清理协程
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow 记录一次请求，超限时返回距离窗口结束的时间
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.limiters[key]
	if !ok || now.Sub(client.windowStart) > rl.cfg.WindowSize {
		// 新窗口：令牌不补充，只有 Limit 个
		client = &clientLimiter{
			limiter:     rate.NewLimiter(0, rl.cfg.Limit),
			windowStart: now,
		}
		rl.limiters[key] = client
	}
	client.lastSeen = now

	if client.limiter.AllowN(now, 1) {
		return true, 0
	}
	return false, client.windowStart.Add(rl.cfg.WindowSize).Sub(now)
}

// Middleware 返回 gin 中间件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		allowed, retryAfter := rl.Allow(clientIP)
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "请求频率过高，请稍后再试",
				"retry_after": seconds,
			})

			rl.logger.Warnf("客户端 %s 已超过速率限制", clientIP)
			return
		}

		c.Next()
	}
}
