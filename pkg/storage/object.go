package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// ErrObjectStorageAccess 对象存储访问错误
var ErrObjectStorageAccess = errors.New("对象存储访问错误")

// ObjectStorageConfig 对象存储配置
type ObjectStorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	BaseURL         string // 可选，用于CDN
	Timeout         time.Duration
}

// missing 返回缺失的必要配置项
func (c ObjectStorageConfig) missing() []string {
	var names []string
	if c.Endpoint == "" {
		names = append(names, "storage.object.endpoint")
	}
	if c.AccessKeyID == "" {
		names = append(names, "storage.object.accessKeyID")
	}
	if c.SecretAccessKey == "" {
		names = append(names, "storage.object.secretAccessKey")
	}
	if c.BucketName == "" {
		names = append(names, "storage.object.bucketName")
	}
	return names
}

// ObjectStorage 实现S3兼容的对象存储，客户端在首次使用时才创建
type ObjectStorage struct {
	mutex       sync.Mutex // 保护配置与客户端，持有期间不做网络请求
	cfg         ObjectStorageConfig
	client      *minio.Client
	bucketReady bool

	bucketMu sync.Mutex // 串行化存储桶检查
}

// NewObjectStorage 创建新的对象存储提供者
func NewObjectStorage(cfg ObjectStorageConfig) *ObjectStorage {
	return &ObjectStorage{cfg: normalizeObjectConfig(cfg)}
}

func normalizeObjectConfig(cfg ObjectStorageConfig) ObjectStorageConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return cfg
}

// Reconfigure 替换配置并丢弃已创建的客户端
func (s *ObjectStorage) Reconfigure(cfg ObjectStorageConfig) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cfg = normalizeObjectConfig(cfg)
	s.client = nil
	s.bucketReady = false
	logrus.Info("对象存储配置已更新，客户端将在下次使用时重建")
}

// Name 返回存储提供者名称
func (s *ObjectStorage) Name() string {
	return "object"
}

// Status 返回对象存储凭证状态
func (s *ObjectStorage) Status() RemoteStatus {
	s.mutex.Lock()
	missing := s.cfg.missing()
	s.mutex.Unlock()

	if len(missing) > 0 {
		return RemoteStatus{Missing: missing}
	}
	return RemoteStatus{Configured: true, Mode: "static-keys"}
}

// Prepare 创建客户端并确保存储桶存在
func (s *ObjectStorage) Prepare(ctx context.Context) error {
	_, _, err := s.obtain(ctx)
	return err
}

func (s *ObjectStorage) obtain(ctx context.Context) (*minio.Client, ObjectStorageConfig, error) {
	client, cfg, ready, err := s.currentClient()
	if err != nil || ready {
		return client, cfg, err
	}

	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()

	// 等待期间其他请求可能已完成检查，或配置已被替换
	client, cfg, ready, err = s.currentClient()
	if err != nil || ready {
		return client, cfg, err
	}

	initCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := s.initBucket(initCtx, client, cfg); err != nil {
		return nil, cfg, err
	}

	s.mutex.Lock()
	if s.client == client {
		s.bucketReady = true
	}
	s.mutex.Unlock()
	return client, cfg, nil
}

// currentClient 返回当前客户端，必要时创建；创建客户端不访问网络
func (s *ObjectStorage) currentClient() (*minio.Client, ObjectStorageConfig, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cfg := s.cfg
	if missing := cfg.missing(); len(missing) > 0 {
		return nil, cfg, false, fmt.Errorf("对象存储未配置，缺少: %s", strings.Join(missing, ", "))
	}

	if s.client == nil {
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, cfg, false, fmt.Errorf("创建对象存储客户端失败: %w", err)
		}
		s.client = client
	}
	return s.client, cfg, s.bucketReady, nil
}

// initBucket 初始化存储桶
func (s *ObjectStorage) initBucket(ctx context.Context, client *minio.Client, cfg ObjectStorageConfig) error {
	// 检查桶是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return fmt.Errorf("检查桶是否存在失败: %w", err)
	}

	if !exists {
		logrus.Infof("桶 %s 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return fmt.Errorf("创建桶失败: %w", err)
		}

		// 设置桶策略为公共读取
		policy := `{
			"Version": "2012-10-17",
			"Statement": [
				{
					"Effect": "Allow",
					"Principal": {"AWS": ["*"]},
					"Action": ["s3:GetObject"],
					"Resource": ["arn:aws:s3:::%s/*"]
				}
			]
		}`

		policy = fmt.Sprintf(policy, cfg.BucketName)
		if err := client.SetBucketPolicy(ctx, cfg.BucketName, policy); err != nil {
			logrus.Warnf("设置桶策略失败: %v", err)
		}
	}

	return nil
}

// objectKey 远程路径去掉开头的斜杠即为对象键
func objectKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

// Upload 以固定键覆盖写入对象并返回公开URL
func (s *ObjectStorage) Upload(ctx context.Context, p string, data []byte, contentType string) (*UploadOutcome, error) {
	if err := s.Put(ctx, p, data, contentType); err != nil {
		return nil, err
	}
	return &UploadOutcome{Path: p, SharedURL: s.GetURL(p)}, nil
}

// Put 上传对象
func (s *ObjectStorage) Put(ctx context.Context, p string, data []byte, contentType string) error {
	client, cfg, err := s.obtain(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	key := objectKey(p)
	info, err := client.PutObject(ctx, cfg.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: 上传 %s 失败: %v", ErrObjectStorageAccess, key, err)
	}

	logrus.Infof("上传文件到对象存储: %s/%s (%d bytes)", cfg.BucketName, key, info.Size)
	return nil
}

// GetURL 获取对象的URL
func (s *ObjectStorage) GetURL(p string) string {
	s.mutex.Lock()
	cfg := s.cfg
	s.mutex.Unlock()

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, cfg.BaseURL, cfg.BucketName, objectKey(p))
}

// Download 下载对象内容
func (s *ObjectStorage) Download(ctx context.Context, p string) (*Object, error) {
	client, cfg, err := s.obtain(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	key := objectKey(p)
	obj, err := client.GetObject(ctx, cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapError(key, err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, s.wrapError(key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrapError(key, err)
	}

	return &Object{Data: data, Path: p, Revision: stat.ETag}, nil
}

func (s *ObjectStorage) wrapError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return fmt.Errorf("%w: %v", ErrObjectStorageAccess, err)
}
