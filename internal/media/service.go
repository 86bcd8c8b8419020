package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ysicing/ProfileBgAPI/pkg/dropbox"
	"github.com/ysicing/ProfileBgAPI/pkg/metrics"
	"github.com/ysicing/ProfileBgAPI/pkg/storage"
)

// 定义服务错误
var (
	// ErrOutsideNamespace 代理路径不在本应用的命名空间内
	ErrOutsideNamespace = errors.New("路径不在应用存储范围内")
	// ErrRemoteUnavailable 未配置远程存储
	ErrRemoteUnavailable = errors.New("远程存储不可用")
)

// DefaultAppName 默认应用名，也是远程存储的命名空间根
const DefaultAppName = "next-profile-bg"

// Result 上传结果
type Result struct {
	ReferenceURL string     `json:"referenceUrl"`
	Log          []LogEntry `json:"log"`
	// Backend 最终落地的存储
	Backend string `json:"-"`
}

// Service 存储编排服务：优先远程存储，失败时回退到本地存储
type Service struct {
	mutex           sync.RWMutex // 保护可热更新的配置
	appName         string
	proxyReferences bool
	remote          storage.RemoteBackend

	local   *storage.LocalStorage
	metrics *metrics.Metrics
	now     func() time.Time
	clock   *versionClock
	locks   stripedLock
}

// ServiceOptions 服务选项
type ServiceOptions struct {
	AppName string
	// Remote 远程存储，为空时只使用本地存储
	Remote          storage.RemoteBackend
	Local           *storage.LocalStorage
	Metrics         *metrics.Metrics
	ProxyReferences bool
	// Now 时间来源，测试中可替换
	Now func() time.Time
}

// NewService 创建存储编排服务
func NewService(opts ServiceOptions) *Service {
	if opts.AppName == "" {
		opts.AppName = DefaultAppName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		appName:         opts.AppName,
		proxyReferences: opts.ProxyReferences,
		remote:          opts.Remote,
		local:           opts.Local,
		metrics:         opts.Metrics,
		now:             opts.Now,
		clock:           &versionClock{now: opts.Now},
	}
}

// UpdateConfig 热更新应用名和引用方式
func (s *Service) UpdateConfig(appName string, proxyReferences bool) {
	if appName == "" {
		appName = DefaultAppName
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if appName != s.appName {
		logrus.Infof("应用名称已更新: %s -> %s", s.appName, appName)
	}
	s.appName = appName
	s.proxyReferences = proxyReferences
}

// SetRemote 替换远程存储
func (s *Service) SetRemote(remote storage.RemoteBackend) {
	s.mutex.Lock()
	s.remote = remote
	s.mutex.Unlock()
}

// AppName 返回当前应用名
func (s *Service) AppName() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.appName
}

func (s *Service) settings() (string, bool, storage.RemoteBackend) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.appName, s.proxyReferences, s.remote
}

// Store 保存已校验的图片。远程存储的任何失败都只记录到日志并回退到本地存储，
// 只有本地写入失败才返回错误，此时 Result 仍包含完整日志。
func (s *Service) Store(ctx context.Context, target Target, ext string, data []byte) (*Result, error) {
	appName, proxyRefs, remote := s.settings()
	oplog := NewOperationLog(s.now)

	if s.metrics != nil {
		s.metrics.ImageSize.Observe(float64(len(data)))
	}

	if ref, ok := s.tryRemote(ctx, oplog, remote, target, appName, ext, data, proxyRefs); ok {
		if s.metrics != nil {
			s.metrics.Uploads.WithLabelValues(remote.Name(), string(target.Kind())).Inc()
		}
		return &Result{ReferenceURL: ref, Log: oplog.Entries(), Backend: remote.Name()}, nil
	}

	ref, err := s.storeLocal(ctx, oplog, target, ext, data)
	if err != nil {
		return &Result{Log: oplog.Entries()}, err
	}
	if s.metrics != nil {
		s.metrics.Uploads.WithLabelValues(s.local.Name(), string(target.Kind())).Inc()
	}
	return &Result{ReferenceURL: ref, Log: oplog.Entries(), Backend: s.local.Name()}, nil
}

// tryRemote 尝试远程上传，返回可用的引用地址；ok 为 false 表示需要回退
func (s *Service) tryRemote(ctx context.Context, oplog *OperationLog, remote storage.RemoteBackend, target Target, appName, ext string, data []byte, proxyRefs bool) (string, bool) {
	oplog.Info("正在检查远程存储凭证...")

	if remote == nil {
		oplog.Warning("未启用远程存储，使用本地存储")
		s.fallback("disabled")
		return "", false
	}

	status := remote.Status()
	if !status.Configured {
		msg := fmt.Sprintf("%s 未配置，缺少: %s。使用本地存储", remote.Name(), strings.Join(status.Missing, ", "))
		logrus.Debug(msg)
		oplog.Warning(msg)
		s.fallback("unconfigured")
		return "", false
	}
	oplog.Success(fmt.Sprintf("已找到 %s 凭证，认证方式: %s", remote.Name(), status.Mode))

	if err := remote.Prepare(ctx); err != nil {
		logrus.Errorf("创建 %s 客户端失败: %v", remote.Name(), err)
		oplog.Error(fmt.Sprintf("创建 %s 客户端失败: %v", remote.Name(), err))
		s.fallback("client")
		return "", false
	}

	remotePath := target.RemotePath(appName, ext)
	oplog.Info(fmt.Sprintf("正在上传到 %s: %s", remote.Name(), remotePath))

	start := time.Now()
	outcome, err := remote.Upload(ctx, remotePath, data, storage.ContentTypeFor(ext))
	if s.metrics != nil {
		s.metrics.StorageDuration.WithLabelValues(remote.Name()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		kind := dropbox.Classify(err)
		logrus.Errorf("上传到 %s 失败: %v", remote.Name(), err)
		oplog.Error(fmt.Sprintf("上传到 %s 失败: %v", remote.Name(), err))
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("remote_upload").Inc()
		}
		s.fallback(kind.String())
		return "", false
	}

	if proxyRefs {
		// 代理地址直接读取已写入的对象，不依赖公开链接
		oplog.Success(fmt.Sprintf("已上传到 %s，通过存储代理访问", remote.Name()))
		stored := outcome.Path
		if stored == "" {
			stored = remotePath
		}
		return storage.BuildProxyURL(stored, s.clock.next()), true
	}

	if outcome.Warning != "" || outcome.SharedURL == "" {
		msg := sharedLinkWarning(outcome.Warning)
		logrus.Warnf("%s: %s", remotePath, msg)
		oplog.Warning(msg)
		s.fallback(outcome.Warning)
		return "", false
	}

	oplog.Success(fmt.Sprintf("已上传到 %s 并获取公开链接", remote.Name()))
	return outcome.SharedURL, true
}

func sharedLinkWarning(warning string) string {
	switch warning {
	case storage.WarningMissingScope:
		return "文件已上传，但应用缺少 sharing.write 权限，无法创建公开链接。使用本地存储"
	case storage.WarningAuth:
		return "文件已上传，但创建公开链接时认证失败。使用本地存储"
	default:
		return "文件已上传，但未获得公开链接。使用本地存储"
	}
}

func (s *Service) fallback(reason string) {
	if reason == "" {
		reason = "no_link"
	}
	if s.metrics != nil {
		s.metrics.Fallbacks.WithLabelValues(reason).Inc()
	}
}

// storeLocal 写入本地存储。单槽目标先清理旧文件，清理失败不影响写入
func (s *Service) storeLocal(ctx context.Context, oplog *OperationLog, target Target, ext string, data []byte) (string, error) {
	segments := target.LocalSegments()
	oplog.Info("正在保存到本地存储...")

	lock := s.locks.forKey(target.Key())
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if target.SingleSlot() {
		removed, err := s.local.CleanupByPrefix(ctx, segments, target.LocalPrefix())
		if err != nil {
			logrus.Warnf("清理旧文件失败: %v", err)
			oplog.Add(LevelWarning, "清理旧文件失败，继续保存新文件", map[string]string{"error": err.Error()})
			if s.metrics != nil {
				s.metrics.Errors.WithLabelValues("local_cleanup").Inc()
			}
		} else if len(removed) > 0 {
			logrus.Debugf("已清理旧文件: %s", strings.Join(removed, ", "))
		}
	}

	version := s.clock.next()
	ref, err := s.local.Write(ctx, segments, target.LocalFileName(version, ext), data, version)
	if err != nil {
		logrus.Errorf("保存到本地存储失败: %v", err)
		oplog.Error(fmt.Sprintf("保存到本地存储失败: %v", err))
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("local_storage").Inc()
		}
		return "", err
	}
	if s.metrics != nil {
		s.metrics.StorageDuration.WithLabelValues(s.local.Name()).Observe(time.Since(start).Seconds())
	}

	oplog.Success("文件已保存到本地存储: " + ref)
	return ref, nil
}

// Fetch 解码代理令牌并从远程存储读取对象。令牌无效或路径越界时返回校验错误
func (s *Service) Fetch(ctx context.Context, token string) (*storage.Object, error) {
	appName, _, remote := s.settings()

	p, err := storage.DecodePath(token)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(p, storage.NamespacePrefix(appName)) || path.Clean(p) != p {
		return nil, fmt.Errorf("%w: %s", ErrOutsideNamespace, p)
	}
	if remote == nil {
		return nil, ErrRemoteUnavailable
	}
	return remote.Download(ctx, p)
}
