package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ysicing/ProfileBgAPI/pkg/dropbox"
	"github.com/ysicing/ProfileBgAPI/pkg/storage"
)

// 连接测试阶段
const (
	stageCredentials = "credentials"
	stageClient      = "client"
	stageUpload      = "upload"
	stageDone        = "done"
)

// TestConnection 检查远程存储凭证，创建客户端并以新增模式写入一个测试文件
func (s *Service) TestConnection(ctx context.Context) (bool, []LogEntry) {
	appName, _, remote := s.settings()
	oplog := NewOperationLog(s.now)

	ok := s.testConnection(ctx, oplog, remote, appName)
	if s.metrics != nil {
		result := "failure"
		if ok {
			result = "success"
		}
		s.metrics.ConnectionChecks.WithLabelValues(result).Inc()
	}
	return ok, oplog.Entries()
}

func (s *Service) testConnection(ctx context.Context, oplog *OperationLog, remote storage.RemoteBackend, appName string) bool {
	oplog.Add(LevelInfo, "正在检查远程存储凭证...", map[string]string{"stage": stageCredentials})

	if remote == nil {
		oplog.Add(LevelError, "未启用远程存储", map[string]string{"stage": stageCredentials})
		return false
	}

	status := remote.Status()
	if !status.Configured {
		missing := strings.Join(status.Missing, ", ")
		oplog.Add(LevelError, fmt.Sprintf("%s 未配置，缺少: %s", remote.Name(), missing), map[string]string{
			"stage":   stageCredentials,
			"missing": missing,
		})
		return false
	}
	oplog.Add(LevelSuccess, fmt.Sprintf("凭证有效，认证方式: %s", status.Mode), map[string]string{
		"stage": stageCredentials,
		"mode":  status.Mode,
	})

	if err := remote.Prepare(ctx); err != nil {
		logrus.Errorf("连接测试: 创建 %s 客户端失败: %v", remote.Name(), err)
		oplog.Add(LevelError, fmt.Sprintf("创建客户端失败: %v", err), map[string]string{"stage": stageClient})
		return false
	}
	oplog.Add(LevelSuccess, "客户端已就绪", map[string]string{"stage": stageClient})

	testPath := fmt.Sprintf("%sconnection-tests/test-%s-%s.txt",
		storage.NamespacePrefix(appName), strconv.FormatInt(s.clock.next(), 10), uuid.NewString())
	details := map[string]string{"stage": stageUpload, "path": testPath}
	oplog.Add(LevelInfo, "正在写入测试文件...", details)

	content := fmt.Sprintf("connection test %s\n", s.now().UTC().Format(timestampFormat))
	if err := remote.Put(ctx, testPath, []byte(content), "text/plain"); err != nil {
		logrus.Errorf("连接测试: 写入 %s 失败: %v", testPath, err)
		oplog.Add(LevelError, connectionFailureMessage(err), map[string]string{
			"stage": stageUpload,
			"path":  testPath,
			"error": err.Error(),
		})
		return false
	}
	oplog.Add(LevelSuccess, "测试文件写入成功", map[string]string{"stage": stageUpload, "path": testPath})

	oplog.Add(LevelSuccess, "连接测试完成", map[string]string{"stage": stageDone})
	return true
}

func connectionFailureMessage(err error) string {
	switch dropbox.Classify(err) {
	case dropbox.KindMissingScope:
		return "应用缺少 files.content.write 权限"
	case dropbox.KindAuth:
		return "认证失败，请检查访问令牌或刷新令牌"
	default:
		return fmt.Sprintf("写入测试文件失败: %v", err)
	}
}
