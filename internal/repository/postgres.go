package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DBTX pgxpool.Pool、pgx.Conn 和 pgx.Tx 共有的方法
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// globalSettingsID 全站设置只有一行
const globalSettingsID = 1

// Postgres 基于 pgx 的实现，表结构由主应用维护
type Postgres struct {
	db    DBTX
	close func()
}

// Connect 创建连接池并检查连通性
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("创建数据库连接池失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	logrus.Info("已连接数据库")
	return &Postgres{db: pool, close: pool.Close}, nil
}

// NewPostgres 使用已有连接创建仓储
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// SetProfileImage 更新用户头像地址
func (r *Postgres) SetProfileImage(ctx context.Context, userID, url string) (string, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("无效的用户ID %q: %w", userID, err)
	}

	query := `UPDATE "User" SET "imageUrl" = $1 WHERE id = $2 RETURNING "imageUrl"`

	var saved string
	if err := r.db.QueryRow(ctx, query, url, id).Scan(&saved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("用户 %d: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("更新头像失败: %w", err)
	}
	return saved, nil
}

// SetBackground 写入全站背景地址
func (r *Postgres) SetBackground(ctx context.Context, url string) error {
	query := `INSERT INTO "GlobalSetting" (id, "backgroundUrl") VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET "backgroundUrl" = EXCLUDED."backgroundUrl"`

	if _, err := r.db.Exec(ctx, query, globalSettingsID, url); err != nil {
		return fmt.Errorf("更新背景失败: %w", err)
	}
	return nil
}

// Background 返回当前全站背景地址
func (r *Postgres) Background(ctx context.Context) (string, error) {
	query := `SELECT "backgroundUrl" FROM "GlobalSetting" WHERE id = $1`

	var url *string
	if err := r.db.QueryRow(ctx, query, globalSettingsID).Scan(&url); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("读取背景失败: %w", err)
	}
	if url == nil {
		return "", nil
	}
	return *url, nil
}

// Close 关闭连接池
func (r *Postgres) Close() {
	if r.close != nil {
		r.close()
	}
}
