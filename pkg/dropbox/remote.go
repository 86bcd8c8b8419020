package dropbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ysicing/ProfileBgAPI/pkg/storage"
)

// Name 返回存储提供者名称
func (r *Remote) Name() string {
	return "dropbox"
}

// Status 返回凭证状态
func (r *Remote) Status() storage.RemoteStatus {
	st := r.Resolve()
	return storage.RemoteStatus{
		Configured: st.Configured,
		Mode:       string(st.Mode),
		Missing:    st.Missing,
	}
}

// Prepare 获取或构建客户端
func (r *Remote) Prepare(ctx context.Context) error {
	_, err := r.acquire(ctx)
	return err
}

// Upload 以覆盖模式写入固定路径，然后获取公开链接。
// 链接因缺少权限或认证失败无法创建时，对象已写入，返回带 Warning 的结果而不是错误。
func (r *Remote) Upload(ctx context.Context, path string, data []byte, contentType string) (*storage.UploadOutcome, error) {
	info, err := WithClient(ctx, r, func(ctx context.Context, api API) (*FileInfo, error) {
		return api.Upload(ctx, path, data, WriteOverwrite)
	})
	if err != nil {
		return nil, err
	}
	if info != nil && info.Path != "" {
		logrus.Infof("上传文件到 Dropbox: %s (rev %s, %d bytes)", info.Path, info.Rev, len(data))
	}

	shared, err := WithClient(ctx, r, func(ctx context.Context, api API) (string, error) {
		return ensureSharedLink(ctx, api, path)
	})
	if err != nil {
		switch Classify(err) {
		case KindMissingScope:
			logrus.Warnf("Dropbox 缺少共享链接权限: %v", err)
			return &storage.UploadOutcome{Path: path, Warning: storage.WarningMissingScope}, nil
		case KindAuth:
			logrus.Warnf("创建 Dropbox 共享链接时认证失败: %v", err)
			return &storage.UploadOutcome{Path: path, Warning: storage.WarningAuth}, nil
		}
		return nil, fmt.Errorf("获取共享链接失败: %w", err)
	}

	return &storage.UploadOutcome{Path: path, SharedURL: NormalizeSharedURL(shared)}, nil
}

// Put 以新增模式写入文件，不创建共享链接
func (r *Remote) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := WithClient(ctx, r, func(ctx context.Context, api API) (*FileInfo, error) {
		return api.Upload(ctx, path, data, WriteAdd)
	})
	return err
}

// Download 按路径下载文件
func (r *Remote) Download(ctx context.Context, path string) (*storage.Object, error) {
	res, err := WithClient(ctx, r, func(ctx context.Context, api API) (*DownloadResult, error) {
		return api.Download(ctx, path)
	})
	if err != nil {
		if Classify(err) == KindNotFound {
			return nil, fmt.Errorf("%w: %v", storage.ErrObjectNotFound, err)
		}
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrNoPayload, path)
	}

	data, err := extractPayload(res.Payload)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 内容失败: %w", path, err)
	}

	obj := &storage.Object{Data: data, Path: res.Info.Path, Revision: res.Info.Rev}
	if obj.Path == "" {
		obj.Path = path
	}
	return obj, nil
}

// ensureSharedLink 复用已有的直接共享链接，没有则创建
func ensureSharedLink(ctx context.Context, api API, path string) (string, error) {
	links, err := api.ListSharedLinks(ctx, path, true)
	if err != nil {
		return "", err
	}
	if len(links) > 0 {
		return links[0], nil
	}
	return api.CreateSharedLink(ctx, path)
}

// NormalizeSharedURL 去掉 dl 参数并强制 raw=1，使链接在浏览器内直接显示
func NormalizeSharedURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" {
		base, _, _ := strings.Cut(raw, "?")
		return base + "?raw=1"
	}
	q := parsed.Query()
	q.Del("dl")
	q.Set("raw", "1")
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

// payloadExtractor 尝试从下载结果中取出字节，ok 表示识别了该类型
type payloadExtractor func(payload any) (data []byte, ok bool, err error)

// payloadExtractors 按顺序尝试：原始字节、带 Bytes() 的缓冲区、可读流
var payloadExtractors = []payloadExtractor{
	rawBytesPayload,
	bufferPayload,
	readerPayload,
}

func rawBytesPayload(payload any) ([]byte, bool, error) {
	data, ok := payload.([]byte)
	if !ok || data == nil {
		return nil, false, nil
	}
	return data, true, nil
}

func bufferPayload(payload any) ([]byte, bool, error) {
	buf, ok := payload.(interface{ Bytes() []byte })
	if !ok {
		return nil, false, nil
	}
	return buf.Bytes(), true, nil
}

func readerPayload(payload any) ([]byte, bool, error) {
	reader, ok := payload.(io.Reader)
	if !ok {
		return nil, false, nil
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}
	data, err := io.ReadAll(reader)
	return data, true, err
}

func extractPayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, storage.ErrNoPayload
	}
	for _, extract := range payloadExtractors {
		data, ok, err := extract(payload)
		if err != nil {
			return nil, err
		}
		if ok {
			return data, nil
		}
	}
	return nil, errors.Join(storage.ErrNoPayload, fmt.Errorf("无法识别的内容类型 %T", payload))
}
