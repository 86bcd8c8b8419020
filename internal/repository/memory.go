package repository

import (
	"context"
	"sync"
)

// Memory 未配置数据库时使用的内存实现，进程重启后数据丢失
type Memory struct {
	mu         sync.RWMutex
	images     map[string]string
	background string
}

// NewMemory 创建内存仓储
func NewMemory() *Memory {
	return &Memory{images: make(map[string]string)}
}

func (m *Memory) SetProfileImage(ctx context.Context, userID, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[userID] = url
	return url, nil
}

// ProfileImage 返回用户头像地址
func (m *Memory) ProfileImage(userID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	url, ok := m.images[userID]
	return url, ok
}

func (m *Memory) SetBackground(ctx context.Context, url string) error {
	m.mu.Lock()
	m.background = url
	m.mu.Unlock()
	return nil
}

func (m *Memory) Background(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.background, nil
}

func (m *Memory) Close() {}
