package dropbox

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WriteMode 上传写入模式
type WriteMode string

const (
	// WriteOverwrite 覆盖固定路径，不自动重命名
	WriteOverwrite WriteMode = "overwrite"
	// WriteAdd 新增文件，冲突时自动重命名
	WriteAdd WriteMode = "add"
)

// FileInfo 远程文件元数据
type FileInfo struct {
	Path string
	Rev  string
}

// DownloadResult 下载结果，Payload 的具体类型取决于客户端实现
type DownloadResult struct {
	Info    FileInfo
	Payload any
}

// API Dropbox 客户端所需的操作
type API interface {
	Upload(ctx context.Context, path string, data []byte, mode WriteMode) (*FileInfo, error)
	ListSharedLinks(ctx context.Context, path string, directOnly bool) ([]string, error)
	CreateSharedLink(ctx context.Context, path string) (string, error)
	Download(ctx context.Context, path string) (*DownloadResult, error)
}

// Factory 按凭证构建客户端
type Factory func(ctx context.Context, creds Credentials) (API, error)

type clientHandle struct {
	api  API
	mode AuthMode
}

// ClientCache 进程内共享的客户端缓存，按认证方式构建。
// 句柄只会被整体替换，不会原地修改。
type ClientCache struct {
	mu      sync.Mutex
	handle  *clientHandle
	factory Factory
}

// NewClientCache 创建客户端缓存
func NewClientCache(factory Factory) *ClientCache {
	return &ClientCache{factory: factory}
}

// Get 获取缓存的客户端，认证方式变化时重建
func (c *ClientCache) Get(ctx context.Context, creds Credentials) (API, error) {
	h, err := c.acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	return h.api, nil
}

func (c *ClientCache) acquire(ctx context.Context, creds Credentials) (*clientHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil && c.handle.mode == creds.Mode {
		return c.handle, nil
	}
	if c.handle != nil {
		logrus.Infof("Dropbox 认证方式由 %s 变为 %s，重建客户端", c.handle.mode, creds.Mode)
	}

	api, err := c.factory(ctx, creds)
	if err != nil {
		return nil, err
	}
	c.handle = &clientHandle{api: api, mode: creds.Mode}
	return c.handle, nil
}

// Invalidate 丢弃缓存的客户端
func (c *ClientCache) Invalidate() {
	c.mu.Lock()
	c.handle = nil
	c.mu.Unlock()
}

// invalidate 仅当缓存仍是失败的那个句柄时才丢弃，避免覆盖其他请求刚重建的客户端
func (c *ClientCache) invalidate(h *clientHandle) {
	c.mu.Lock()
	if c.handle == h {
		c.handle = nil
	}
	c.mu.Unlock()
}

// Remote Dropbox 远程存储，组合凭证解析与客户端缓存
type Remote struct {
	source      Source
	cache       *ClientCache
	timeout     time.Duration
	onAuthRetry func()
}

// RemoteOptions Remote 选项
type RemoteOptions struct {
	Source  Source
	Cache   *ClientCache
	Timeout time.Duration
	// OnAuthRetry 每次认证失败重试前调用，可为空
	OnAuthRetry func()
}

// NewRemote 创建 Dropbox 远程存储
func NewRemote(opts RemoteOptions) *Remote {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &Remote{
		source:      opts.Source,
		cache:       opts.Cache,
		timeout:     opts.Timeout,
		onAuthRetry: opts.OnAuthRetry,
	}
}

// Resolve 重新解析当前凭证
func (r *Remote) Resolve() Status {
	return Resolve(r.source)
}

func (r *Remote) acquire(ctx context.Context) (*clientHandle, error) {
	st := r.Resolve()
	if !st.Configured {
		return nil, &ConfigError{Missing: st.Missing}
	}
	return r.cache.acquire(ctx, st.Credentials)
}

func (r *Remote) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx)
}

// WithClient 使用缓存的客户端执行 op。
// 认证失败时丢弃客户端，重新解析凭证并重建后重试一次；第二次失败原样返回。
func WithClient[T any](ctx context.Context, r *Remote, op func(ctx context.Context, api API) (T, error)) (T, error) {
	var zero T

	h, err := r.acquire(ctx)
	if err != nil {
		return zero, err
	}

	var res T
	err = r.call(ctx, func(ctx context.Context) error {
		var opErr error
		res, opErr = op(ctx, h.api)
		return opErr
	})
	if err == nil || !IsAuthError(err) {
		return res, err
	}

	logrus.Warnf("Dropbox 认证失败，重建客户端后重试一次: %v", err)
	r.cache.invalidate(h)
	if r.onAuthRetry != nil {
		r.onAuthRetry()
	}

	h, err = r.acquire(ctx)
	if err != nil {
		return zero, err
	}
	err = r.call(ctx, func(ctx context.Context) error {
		var opErr error
		res, opErr = op(ctx, h.api)
		return opErr
	})
	if err != nil {
		return zero, err
	}
	return res, nil
}
