package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ysicing/ProfileBgAPI/pkg/utils"
)

// ErrLocalIO 本地文件写入失败，没有更下层的兜底
var ErrLocalIO = errors.New("本地存储写入失败")

// LocalStorage 实现本地文件系统存储
type LocalStorage struct {
	basePath string
}

// NewLocalStorage 创建新的本地存储提供者
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// 确保存储目录存在
	if err := utils.EnsureDirExists(basePath); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// BasePath 返回本地存储根目录
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// Dir 返回目录片段对应的绝对目录
func (s *LocalStorage) Dir(segments ...string) string {
	return filepath.Join(append([]string{s.basePath}, segments...)...)
}

// Write 写入文件并返回带版本参数的根相对 URL
func (s *LocalStorage) Write(ctx context.Context, segments []string, fileName string, data []byte, version int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLocalIO, err)
	}

	fullPath := filepath.Join(s.Dir(segments...), fileName)
	if err := utils.SaveFile(data, fullPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLocalIO, err)
	}

	logrus.Infof("保存文件到本地: %s (%d bytes)", fullPath, len(data))

	urlPath := "/" + strings.Join(append(append([]string{}, segments...), fileName), "/")
	return urlPath + "?v=" + strconv.FormatInt(version, 10), nil
}

// CleanupByPrefix 删除目录中名为 <prefix><版本>.<扩展名> 的文件，返回已删除的文件名。
// 前缀之后还带 "-" 的文件属于其他标识（例如用户 a 与 a-b），不会被删除。
// 目录不存在视为无需清理；单个文件删除失败不会中断其余文件的清理，错误汇总后返回。
func (s *LocalStorage) CleanupByPrefix(ctx context.Context, segments []string, prefix string) ([]string, error) {
	dir := s.Dir(segments...)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	var removed []string
	var errs []error
	for _, entry := range entries {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if entry.IsDir() || !ownedByPrefix(entry.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("删除 %s 失败: %w", entry.Name(), err))
			continue
		}
		removed = append(removed, entry.Name())
	}

	return removed, errors.Join(errs...)
}

func ownedByPrefix(name, prefix string) bool {
	rest, ok := strings.CutPrefix(name, prefix)
	return ok && rest != "" && !strings.Contains(rest, "-")
}

// Name 返回存储提供者名称
func (s *LocalStorage) Name() string {
	return "local"
}
