package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/xid"

	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/pkg/cache"
)

// RedisStore 队列存于哈希 <prefix>:queue:<device>（id -> JSON 字段），
// 日志为定长列表，快照为单键 JSON
type RedisStore struct {
	client   *cache.Client
	logLimit int64
}

func NewRedisStore(client *cache.Client, logLimit int64) *RedisStore {
	if logLimit <= 0 {
		logLimit = 500
	}
	return &RedisStore{client: client, logLimit: logLimit}
}

func (s *RedisStore) queueKey(device string) string { return s.client.Key("queue", device) }

func (s *RedisStore) ListPending(ctx context.Context, deviceKey string) ([]model.RawQueueItem, error) {
	raw, err := s.client.Raw().HGetAll(ctx, s.queueKey(deviceKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]model.RawQueueItem, 0, len(ids))
	for _, id := range ids {
		item := model.RawQueueItem{ID: id}
		// 无法解码的条目带上原因，由消费者按格式错误丢弃
		if err := json.Unmarshal([]byte(raw[id]), &item.Fields); err != nil {
			item.Fields = nil
			item.DecodeError = err.Error()
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *RedisStore) Delete(ctx context.Context, deviceKey, id string) error {
	return s.client.Raw().HDel(ctx, s.queueKey(deviceKey), id).Err()
}

func (s *RedisStore) AppendLog(ctx context.Context, deviceKey string, entry model.QueueLogEntry) error {
	return s.client.PushCapped(ctx, s.client.Key("queue_log", deviceKey), s.logLimit, entry)
}

func (s *RedisStore) PutSnapshot(ctx context.Context, deviceKey string, snap model.Snapshot) error {
	return s.client.SetJSON(ctx, s.client.Key("snapshot", deviceKey), snap, 0)
}

func (s *RedisStore) Enqueue(ctx context.Context, deviceKey, port, command string) (string, error) {
	id := xid.New().String()
	data, err := json.Marshal(map[string]interface{}{
		fieldPort:      port,
		fieldCommand:   command,
		fieldTimestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	if err := s.client.Raw().HSet(ctx, s.queueKey(deviceKey), id, data).Err(); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// RecentLogs 最近的队列日志，新的在前
func (s *RedisStore) RecentLogs(ctx context.Context, deviceKey string, limit int) ([]model.QueueLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := s.client.Raw().LRange(ctx, s.client.Key("queue_log", deviceKey), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list queue logs: %w", err)
	}
	out := make([]model.QueueLogEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var entry model.QueueLogEntry
		if err := json.Unmarshal([]byte(raw[i]), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}
