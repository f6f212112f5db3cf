package service

import (
	"context"

	"github.com/swappnet/swapp/internal/model"
)

// Store 队列、日志与快照的外部存储
type Store interface {
	ListPending(ctx context.Context, deviceKey string) ([]model.RawQueueItem, error)
	// Delete 删除不存在的条目不报错
	Delete(ctx context.Context, deviceKey, id string) error
	AppendLog(ctx context.Context, deviceKey string, entry model.QueueLogEntry) error
	PutSnapshot(ctx context.Context, deviceKey string, snap model.Snapshot) error
}

// Enqueuer 支持写入队列的存储（HTTP /queue 与 portctl enqueue 使用）
type Enqueuer interface {
	Enqueue(ctx context.Context, deviceKey, port, command string) (string, error)
}

// ChangeRecorder 支持持久化端口变化历史的存储
type ChangeRecorder interface {
	RecordChanges(ctx context.Context, deviceKey string, changes []Change) error
}

// LogReader 支持读取最近队列日志的存储，新的在前
type LogReader interface {
	RecentLogs(ctx context.Context, deviceKey string, limit int) ([]model.QueueLogEntry, error)
}

// HealthChecker 支持健康检查的存储
type HealthChecker interface {
	Health(ctx context.Context) error
}

// 队列条目字段名
const (
	fieldPort        = "port"
	fieldCommand     = "command"
	fieldTimestamp   = "timestamp"
	fieldSubmittedAt = "submitted_at"
)
