package api

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/ysicing/ProfileBgAPI/pkg/storage"
)

// RouteOptions 路由依赖的中间件
type RouteOptions struct {
	// Auth 会话认证
	Auth gin.HandlerFunc
	// BackgroundLimiter 背景更新的速率限制
	BackgroundLimiter gin.HandlerFunc
	// LocalPath 本地存储根目录，其下的 uploads 目录以静态文件提供
	LocalPath string
}

// SetupRoutes 设置路由
func (h *Handler) SetupRoutes(router *gin.Engine, opts RouteOptions) {
	if opts.Auth == nil {
		opts.Auth = denyAll
	}
	if opts.BackgroundLimiter == nil {
		opts.BackgroundLimiter = passthrough
	}

	router.GET(storage.ProxyEndpoint, h.ProxyStorage)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/background", h.GetBackground)
		apiGroup.PUT("/background", opts.BackgroundLimiter, h.UpdateBackground)

		authed := apiGroup.Group("", opts.Auth)
		// 旧客户端使用 POST
		authed.POST("/profile/photo", h.UpdateProfilePhoto)
		authed.PUT("/profile/photo", h.UpdateProfilePhoto)
		authed.POST("/destinations/photos", h.UploadDestinationPhoto)
		authed.POST("/dropbox/test", h.TestRemoteConnection)
		authed.GET("/dropbox/exchange", h.ExchangeCode)
	}

	router.GET("/health", h.HealthCheck)

	// 本地回退存储的文件
	router.Static("/uploads", filepath.Join(opts.LocalPath, "uploads"))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "资源不存在"})
	})
}

func passthrough(c *gin.Context) {
	c.Next()
}

func denyAll(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
}
