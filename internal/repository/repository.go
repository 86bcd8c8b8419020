package repository

import (
	"context"
	"errors"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// Repository 头像和全站背景的持久化
type Repository interface {
	// SetProfileImage 更新用户头像地址，返回保存后的地址
	SetProfileImage(ctx context.Context, userID, url string) (string, error)

	// SetBackground 写入全站背景地址
	SetBackground(ctx context.Context, url string) error

	// Background 返回当前全站背景地址，未设置时返回空字符串
	Background(ctx context.Context) (string, error)

	// Close 释放连接
	Close()
}
