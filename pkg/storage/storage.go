package storage

import (
	"context"
	"errors"
)

// 远程存储的链接告警
const (
	WarningMissingScope = "missing_scope"
	WarningAuth         = "auth"
)

var (
	// ErrObjectNotFound 远程对象不存在
	ErrObjectNotFound = errors.New("对象不存在")
	// ErrNoPayload 下载响应中没有二进制内容
	ErrNoPayload = errors.New("下载响应中没有文件内容")
)

// RemoteStatus 远程存储凭证状态，每次调用重新计算
type RemoteStatus struct {
	Configured bool
	// Mode 已配置时的认证方式
	Mode string
	// Missing 未配置时缺失的配置项名称
	Missing []string
}

// UploadOutcome 远程上传结果。对象已写入，但 SharedURL 为空时 Warning 说明原因
type UploadOutcome struct {
	Path      string
	SharedURL string
	Warning   string
}

// Object 从远程存储下载的文件
type Object struct {
	Data     []byte
	Path     string
	Revision string
}

// RemoteBackend 远程存储后端
type RemoteBackend interface {
	// Name 返回存储提供者名称
	Name() string

	// Status 解析当前凭证状态
	Status() RemoteStatus

	// Prepare 获取或构建客户端
	Prepare(ctx context.Context) error

	// Upload 以覆盖模式写入 path 并尝试获取公开链接
	Upload(ctx context.Context, path string, data []byte, contentType string) (*UploadOutcome, error)

	// Download 按路径下载文件
	Download(ctx context.Context, path string) (*Object, error)

	// Put 以新增模式写入，不获取公开链接（连接测试使用）
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
