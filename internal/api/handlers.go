package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ysicing/ProfileBgAPI/internal/logger"
	"github.com/ysicing/ProfileBgAPI/internal/media"
	"github.com/ysicing/ProfileBgAPI/internal/middleware"
	"github.com/ysicing/ProfileBgAPI/internal/repository"
	"github.com/ysicing/ProfileBgAPI/pkg/dropbox"
	"github.com/ysicing/ProfileBgAPI/pkg/metrics"
	"github.com/ysicing/ProfileBgAPI/pkg/storage"
	"go.uber.org/zap"
)

// defaultRedirectURI 授权时未指定回调地址时使用的默认值
const defaultRedirectURI = "http://localhost:3000/api/dropbox/callback"

// Handler API处理器
type Handler struct {
	log         *zap.SugaredLogger
	media       *media.Service
	repo        repository.Repository
	metrics     *metrics.Metrics
	credentials dropbox.Source
	timeout     time.Duration
}

// HandlerOptions 处理器选项
type HandlerOptions struct {
	Media      *media.Service
	Repository repository.Repository
	Metrics    *metrics.Metrics
	// Credentials 授权码换取令牌时读取应用密钥
	Credentials dropbox.Source
	Timeout     time.Duration
}

// NewHandler 创建新的API处理器
func NewHandler(opts HandlerOptions) *Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &Handler{
		log:         logger.GetLogger("api-handler"),
		media:       opts.Media,
		repo:        opts.Repository,
		metrics:     opts.Metrics,
		credentials: opts.Credentials,
		timeout:     opts.Timeout,
	}
}

// ProxyStorage 通过存储代理返回远程文件
func (h *Handler) ProxyStorage(c *gin.Context) {
	token := c.Query("path")
	if token == "" {
		h.proxyError(c, http.StatusBadRequest, "缺少 path 参数")
		return
	}

	obj, err := h.media.Fetch(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrDecode):
			h.proxyError(c, http.StatusBadRequest, "path 参数无效")
		case errors.Is(err, media.ErrOutsideNamespace):
			h.proxyError(c, http.StatusBadRequest, "不允许访问该路径")
		case errors.Is(err, storage.ErrObjectNotFound):
			h.proxyError(c, http.StatusNotFound, "文件不存在")
		default:
			h.log.Errorf("读取远程文件失败: %v", err)
			h.proxyError(c, http.StatusBadGateway, "访问远程存储失败")
		}
		return
	}

	h.countProxy(http.StatusOK)
	c.Header("Content-Length", strconv.Itoa(len(obj.Data)))
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	if obj.Revision != "" {
		c.Header("ETag", obj.Revision)
	}
	c.Data(http.StatusOK, storage.InferContentType(obj.Path), obj.Data)
}

func (h *Handler) proxyError(c *gin.Context, status int, message string) {
	h.countProxy(status)
	c.JSON(status, gin.H{"error": message})
}

func (h *Handler) countProxy(status int) {
	if h.metrics != nil {
		h.metrics.ProxyRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}

// readImage 读取并校验上传的图片，返回规范化扩展名
func readImage(fh *multipart.FileHeader) (string, []byte, error) {
	ext, err := storage.ValidateImage(fh.Header.Get("Content-Type"), fh.Size)
	if err != nil {
		return "", nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, storage.MaxImageSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if int64(len(data)) > storage.MaxImageSize {
		return "", nil, storage.ErrTooLarge
	}
	return ext, data, nil
}

// uploadedImage 从表单字段 file 中取出图片，失败时已写入响应
func (h *Handler) uploadedImage(c *gin.Context) (string, []byte, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未上传文件"})
		return "", nil, false
	}

	ext, data, err := readImage(fh)
	if err != nil {
		if storage.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return "", nil, false
		}
		h.log.Errorf("读取上传文件失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件无效"})
		return "", nil, false
	}
	return ext, data, true
}

// UpdateProfilePhoto 上传头像并写入数据库
func (h *Handler) UpdateProfilePhoto(c *gin.Context) {
	userID := middleware.UserID(c)
	ext, data, ok := h.uploadedImage(c)
	if !ok {
		return
	}

	res, err := h.media.Store(c.Request.Context(), media.ProfilePhoto(userID), ext, data)
	if err != nil {
		h.log.Errorf("保存头像失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传文件失败", "log": res.Log})
		return
	}

	oplog := media.ContinueLog(res.Log, nil)
	oplog.Info("正在更新数据库中的头像...")
	saved, err := h.repo.SetProfileImage(c.Request.Context(), userID, res.ReferenceURL)
	if err != nil {
		h.log.Errorf("更新用户 %s 头像失败: %v", userID, err)
		oplog.Error("更新头像失败，请重试")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传文件失败", "log": oplog.Entries()})
		return
	}
	oplog.Success("头像已更新")

	c.JSON(http.StatusOK, gin.H{"referenceUrl": saved, "log": oplog.Entries()})
}

type backgroundRequest struct {
	URL string `json:"url"`
}

// validHTTPSURL 背景地址必须是绝对的 https 地址
func validHTTPSURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https" && u.Host != ""
}

// UpdateBackground 设置全站背景：JSON 地址直接保存，文件经过存储编排
func (h *Handler) UpdateBackground(c *gin.Context) {
	var (
		backgroundURL string
		log           []media.LogEntry
	)

	switch {
	case c.ContentType() == gin.MIMEJSON:
		var req backgroundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求数据无效"})
			return
		}
		if !validHTTPSURL(strings.TrimSpace(req.URL)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请使用有效的 HTTPS 地址"})
			return
		}
		backgroundURL = strings.TrimSpace(req.URL)

	case c.ContentType() == gin.MIMEMultipartPOSTForm:
		ext, data, ok := h.uploadedImage(c)
		if !ok {
			return
		}
		res, err := h.media.Store(c.Request.Context(), media.GlobalBackground(), ext, data)
		if err != nil {
			h.log.Errorf("保存背景失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新背景失败", "log": res.Log})
			return
		}
		backgroundURL = res.ReferenceURL
		log = res.Log

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的内容类型"})
		return
	}

	if err := h.repo.SetBackground(c.Request.Context(), backgroundURL); err != nil {
		h.log.Errorf("更新背景失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新背景失败", "log": log})
		return
	}

	if log == nil {
		log = []media.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"referenceUrl": backgroundURL, "backgroundUrl": backgroundURL, "log": log})
}

// GetBackground 返回当前全站背景
func (h *Handler) GetBackground(c *gin.Context) {
	bg, err := h.repo.Background(c.Request.Context())
	if err != nil {
		h.log.Errorf("读取背景失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backgroundUrl": bg})
}

// UploadDestinationPhoto 上传目的地照片，返回的地址由目录管理功能保存
func (h *Handler) UploadDestinationPhoto(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未上传文件"})
		return
	}
	ext, data, ok := h.uploadedImage(c)
	if !ok {
		return
	}

	target := media.DestinationPhoto(middleware.UserID(c), fh.Filename)
	res, err := h.media.Store(c.Request.Context(), target, ext, data)
	if err != nil {
		h.log.Errorf("保存目的地照片失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传文件失败", "log": res.Log})
		return
	}
	c.JSON(http.StatusOK, gin.H{"referenceUrl": res.ReferenceURL, "log": res.Log})
}

// TestRemoteConnection 执行远程存储连接测试
func (h *Handler) TestRemoteConnection(c *gin.Context) {
	ok, log := h.media.TestConnection(c.Request.Context())
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "连接测试失败", "log": log})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "log": log})
}

// ExchangeCode 用授权码换取刷新令牌，以纯文本返回便于运维复制
func (h *Handler) ExchangeCode(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "缺少 code 参数")
		return
	}
	redirect := c.DefaultQuery("redirect_uri", defaultRedirectURI)

	appKey := strings.TrimSpace(h.credentials.Get(dropbox.EnvAppKey))
	appSecret := strings.TrimSpace(h.credentials.Get(dropbox.EnvAppSecret))

	tok, err := dropbox.ExchangeCode(c.Request.Context(), appKey, appSecret, code, redirect, h.timeout)
	if err != nil {
		if errors.Is(err, dropbox.ErrNotConfigured) {
			c.String(http.StatusInternalServerError, "请配置 %s 和 %s", dropbox.EnvAppKey, dropbox.EnvAppSecret)
			return
		}
		h.log.Warnf("授权码换取令牌失败: %v", err)
		c.String(http.StatusBadRequest, "授权码换取令牌失败\n\n%v", err)
		return
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = "<未返回>"
	}
	lines := []string{
		"请保存到 .env 或密钥管理服务:",
		"",
		dropbox.EnvRefreshToken + "=" + refresh,
		"",
		"当前访问令牌（约4小时后过期）:",
		tok.AccessToken,
		"",
		"生产环境只需保存刷新令牌，访问令牌会按需获取。",
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(strings.Join(lines, "\n")))
}

// HealthCheck 健康检查端点
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"version":   "1.0.0",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
