package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ergoapi/util/exgin"
	"github.com/ergoapi/util/exhttp"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ysicing/ProfileBgAPI/config"
	"github.com/ysicing/ProfileBgAPI/internal/api"
	"github.com/ysicing/ProfileBgAPI/internal/cron"
	"github.com/ysicing/ProfileBgAPI/internal/logger"
	"github.com/ysicing/ProfileBgAPI/internal/media"
	"github.com/ysicing/ProfileBgAPI/internal/middleware"
	"github.com/ysicing/ProfileBgAPI/internal/repository"
	"github.com/ysicing/ProfileBgAPI/pkg/dropbox"
	"github.com/ysicing/ProfileBgAPI/pkg/metrics"
	"github.com/ysicing/ProfileBgAPI/pkg/storage"
)

var (
	mediaService *media.Service
	scheduler    *cron.Scheduler
	remotes      *remoteRegistry
	limiter      atomic.Pointer[middleware.RateLimiter]
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000-0700",
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.DebugLevel)
}

// remoteRegistry 按配置构建远程存储，配置变化时重建
type remoteRegistry struct {
	mu      sync.Mutex
	metrics *metrics.Metrics
	object  *storage.ObjectStorage
	timeout time.Duration
	current storage.RemoteBackend
}

func objectConfig(cfg *config.Config) storage.ObjectStorageConfig {
	obj := cfg.Storage.Object
	return storage.ObjectStorageConfig{
		Endpoint:        obj.Endpoint,
		AccessKeyID:     obj.AccessKeyID,
		SecretAccessKey: obj.SecretAccessKey,
		BucketName:      obj.BucketName,
		Region:          obj.Region,
		UseSSL:          obj.UseSSL,
		BaseURL:         obj.BaseURL,
		Timeout:         cfg.Storage.Remote.Timeout,
	}
}

// build 返回当前配置对应的远程存储
func (r *remoteRegistry) build(cfg *config.Config) storage.RemoteBackend {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := cfg.Storage.Remote.Timeout
	switch cfg.Storage.Remote.Provider {
	case config.ProviderObject:
		if r.object != nil {
			r.object.Reconfigure(objectConfig(cfg))
		} else {
			r.object = storage.NewObjectStorage(objectConfig(cfg))
		}
		r.current = r.object
		logrus.Info("已启用对象存储作为远程存储")

	default:
		if _, ok := r.current.(*dropbox.Remote); ok && r.timeout == timeout {
			return r.current
		}
		r.object = nil
		r.current = dropbox.NewRemote(dropbox.RemoteOptions{
			Source:  config.Credentials(),
			Cache:   dropbox.NewClientCache(dropbox.NewSDKFactory(timeout)),
			Timeout: timeout,
			OnAuthRetry: func() {
				r.metrics.AuthRetries.Inc()
			},
		})
		logrus.Infof("已启用 Dropbox 作为远程存储 (超时: %s)", timeout)
	}
	r.timeout = timeout
	return r.current
}

func newLimiter(cfg *config.Config) {
	rl := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Limit:      cfg.API.RateLimit,
		WindowSize: cfg.API.RateLimitWindow,
	}, logger.GetLogger("rate-limit"))
	if old := limiter.Swap(rl); old != nil {
		old.Stop()
	}
}

// backgroundLimiter 始终使用最新的限流器
func backgroundLimiter(c *gin.Context) {
	limiter.Load().Middleware()(c)
}

func applyLogLevel(name string) {
	if lvl, err := logrus.ParseLevel(name); err == nil {
		logrus.SetLevel(lvl)
	} else {
		logrus.Warnf("无效的日志级别: %s", name)
	}
	if logger.SetLevel(name) {
		logrus.Debugf("HTTP 日志级别: %s", logger.Level())
	}
}

func openRepository(cfg *config.Config) repository.Repository {
	if cfg.Database.URL == "" {
		logrus.Warn("未配置 DATABASE_URL，使用内存存储头像和背景地址")
		return repository.NewMemory()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo, err := repository.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logrus.Fatalf("连接数据库失败: %v", err)
	}
	logrus.Info("已连接数据库")
	return repo
}

func main() {
	logrus.Info("正在启动头像与背景上传服务...")

	// 加载配置
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	cfg := &config.AppConfig
	applyLogLevel(cfg.Log.Level)
	defer logger.Sync()

	// 创建指标收集器
	metricsCollector := metrics.NewMetrics("profilebg")

	// 本地回退存储始终启用
	local, err := storage.NewLocalStorage(cfg.Storage.Local.Path)
	if err != nil {
		logrus.Fatalf("初始化本地存储失败: %v", err)
	}
	logrus.Infof("已初始化本地存储: %s", cfg.Storage.Local.Path)

	remotes = &remoteRegistry{metrics: metricsCollector}
	mediaService = media.NewService(media.ServiceOptions{
		AppName:         cfg.App.Name,
		Remote:          remotes.build(cfg),
		Local:           local,
		Metrics:         metricsCollector,
		ProxyReferences: cfg.Storage.Remote.ProxyReferences,
	})

	repo := openRepository(cfg)
	defer repo.Close()

	newLimiter(cfg)

	// 初始化定时任务
	scheduler = cron.NewScheduler()
	if err := scheduler.SetupJobs(cfg.Schedule.ConnectionCheck, mediaService); err != nil {
		logrus.Fatalf("设置定时任务失败: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 配置热重载回调
	config.WatchConfig(func(newCfg *config.Config) {
		logrus.Info("检测到配置变更，正在重新加载服务...")
		applyLogLevel(newCfg.Log.Level)
		mediaService.UpdateConfig(newCfg.App.Name, newCfg.Storage.Remote.ProxyReferences)
		mediaService.SetRemote(remotes.build(newCfg))
		newLimiter(newCfg)
		scheduler.UpdateJobs(newCfg.Schedule.ConnectionCheck, mediaService)
	})

	// 创建Gin路由
	router := exgin.Init(&exgin.Config{
		Debug:   cfg.Log.Level == "debug",
		Metrics: true,
	})
	// Cloudflare 之后按真实客户端IP限流
	router.RemoteIPHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

	// 添加中间件，代理返回的图片已经压缩过
	router.Use(exgin.ExLog("/metrics"), exgin.ExRecovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{storage.ProxyEndpoint, "/uploads"})))
	router.Use(metrics.MetricsMiddleware(metricsCollector))

	// 创建API处理器
	handler := api.NewHandler(api.HandlerOptions{
		Media:       mediaService,
		Repository:  repo,
		Metrics:     metricsCollector,
		Credentials: config.Credentials(),
		Timeout:     cfg.Storage.Remote.Timeout,
	})
	handler.SetupRoutes(router, api.RouteOptions{
		Auth:              middleware.RequireAuth(config.JWTSecret, logger.GetLogger("auth")),
		BackgroundLimiter: backgroundLimiter,
		LocalPath:         local.BasePath(),
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	// 创建HTTP服务器
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}
	go func() {
		exhttp.SetupGracefulStop(srv)
	}()
	logrus.Infof("http listen to %v, pid is %v", addr, os.Getpid())
	logrus.Infof("远程存储命名空间: %s", storage.NamespacePrefix(mediaService.AppName()))
	logrus.Infof("上传文件访问地址: http://localhost:%s/uploads", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("Failed to start http server, error: %s", err)
	}
}
