package cron

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/ysicing/ProfileBgAPI/internal/media"
)

// checkTimeout 单次连接检查的最长时间
const checkTimeout = time.Minute

// ConnectionChecker 远程存储连接检查
type ConnectionChecker interface {
	TestConnection(ctx context.Context) (bool, []media.LogEntry)
}

// Scheduler 定时任务调度器
type Scheduler struct {
	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler 创建新的定时任务调度器
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
	}
}

// Start 启动定时任务
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
	logrus.Info("已启动定时任务")
}

// Stop 停止定时任务，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	<-c.Stop().Done()
	logrus.Info("已停止定时任务")
}

// SetupJobs 设置定时任务，spec 为空时不做连接检查
func (s *Scheduler) SetupJobs(spec string, checker ConnectionChecker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setup(spec, checker)
}

func (s *Scheduler) setup(spec string, checker ConnectionChecker) error {
	if spec == "" || checker == nil {
		logrus.Info("未配置远程存储连接检查")
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		logrus.Info("执行定时远程存储连接检查")
		runCheck(checker)
	})
	return err
}

// runCheck 执行一次连接检查并把结果写入日志
func runCheck(checker ConnectionChecker) bool {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	ok, entries := checker.TestConnection(ctx)
	if ok {
		logrus.Info("远程存储连接正常")
		return true
	}

	for _, e := range entries {
		if e.Level == media.LevelError || e.Level == media.LevelWarning {
			logrus.WithField("stage", e.Details["stage"]).Warnf("远程存储连接检查: %s", e.Message)
		}
	}
	logrus.Error("远程存储连接检查失败")
	return false
}

// UpdateJobs 更新定时任务
func (s *Scheduler) UpdateJobs(spec string, checker ConnectionChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 停止当前任务
	s.cron.Stop()

	// 清空所有任务
	s.cron = cron.New()

	// 重新设置任务
	if err := s.setup(spec, checker); err != nil {
		logrus.Errorf("更新定时任务失败: %v", err)
	}

	// 重新启动
	s.cron.Start()
	logrus.Info("已更新并重启定时任务")
}

// Entries 当前已注册的任务数
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cron.Entries())
}
