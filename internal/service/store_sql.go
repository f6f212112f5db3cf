package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/swappnet/swapp/internal/database"
	"github.com/swappnet/swapp/internal/model"
)

const sqlRetryAttempts = 5

// SQLStore 基于 gorm/sqlite 的存储
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ListPending(ctx context.Context, deviceKey string) ([]model.RawQueueItem, error) {
	var rows []model.QueueRecord
	if err := s.db.WithContext(ctx).Where("device_key = ?", deviceKey).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	items := make([]model.RawQueueItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, model.RawQueueItem{
			ID: strconv.FormatUint(uint64(r.ID), 10),
			Fields: map[string]interface{}{
				fieldPort:        r.Port,
				fieldCommand:     r.Command,
				fieldSubmittedAt: r.SubmittedAt,
			},
		})
	}
	return items, nil
}

func (s *SQLStore) Delete(ctx context.Context, deviceKey, id string) error {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid queue item id %q: %w", id, err)
	}
	return database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Where("id = ? AND device_key = ?", n, deviceKey).Delete(&model.QueueRecord{}).Error
	}, sqlRetryAttempts, 0)
}

func (s *SQLStore) AppendLog(ctx context.Context, deviceKey string, entry model.QueueLogEntry) error {
	row := &model.QueueLog{
		DeviceKey: deviceKey,
		ItemID:    entry.ItemID,
		Port:      entry.Port,
		Verb:      string(entry.Verb),
		Result:    entry.Result,
		Attempts:  entry.Attempts,
		Message:   entry.Message,
		CreatedAt: entry.Timestamp,
	}
	return database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(row).Error
	}, sqlRetryAttempts, 0)
}

func (s *SQLStore) PutSnapshot(ctx context.Context, deviceKey string, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	row := &model.SnapshotRecord{DeviceKey: deviceKey, PortCount: snap.Len(), Payload: string(payload)}
	return database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(row).Error
	}, sqlRetryAttempts, 0)
}

// LatestSnapshot 最近一次写入的快照；无记录时返回 gorm.ErrRecordNotFound
func (s *SQLStore) LatestSnapshot(ctx context.Context, deviceKey string) (model.Snapshot, error) {
	var row model.SnapshotRecord
	if err := s.db.WithContext(ctx).Where("device_key = ?", deviceKey).Order("id desc").First(&row).Error; err != nil {
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(row.Payload), &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot %d: %w", row.ID, err)
	}
	return snap, nil
}

func (s *SQLStore) RecordChanges(ctx context.Context, deviceKey string, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	rows := make([]model.PortChangeRecord, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, model.PortChangeRecord{
			DeviceKey: deviceKey,
			Port:      c.Identifier,
			Kind:      string(c.Kind),
			Detail:    c.String(),
			CreatedAt: c.DetectedAt,
		})
	}
	return database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	}, sqlRetryAttempts, 0)
}

func (s *SQLStore) Enqueue(ctx context.Context, deviceKey, port, command string) (string, error) {
	row := &model.QueueRecord{DeviceKey: deviceKey, Port: port, Command: command, SubmittedAt: time.Now()}
	err := database.WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(row).Error
	}, sqlRetryAttempts, 0)
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return strconv.FormatUint(uint64(row.ID), 10), nil
}

// RecentLogs 最近的队列日志，新的在前
func (s *SQLStore) RecentLogs(ctx context.Context, deviceKey string, limit int) ([]model.QueueLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.QueueLog
	if err := s.db.WithContext(ctx).Where("device_key = ?", deviceKey).Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list queue logs: %w", err)
	}
	out := make([]model.QueueLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.QueueLogEntry{
			ItemID:    r.ItemID,
			Port:      r.Port,
			Verb:      model.Verb(r.Verb),
			Result:    r.Result,
			Attempts:  r.Attempts,
			Message:   r.Message,
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}

func (s *SQLStore) Health(ctx context.Context) error {
	return database.Health(s.db.WithContext(ctx))
}
