package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/swappnet/swapp/internal/model"
)

// MemoryStore 进程内存储，用于测试与 store.backend=memory
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string][]model.RawQueueItem
	logs      map[string][]model.QueueLogEntry
	snapshots map[string]model.Snapshot
	puts      map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string][]model.RawQueueItem),
		logs:      make(map[string][]model.QueueLogEntry),
		snapshots: make(map[string]model.Snapshot),
		puts:      make(map[string]int),
	}
}

// Put 直接放入原始条目
func (m *MemoryStore) Put(deviceKey string, item model.RawQueueItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[deviceKey] = append(m.items[deviceKey], item)
}

func (m *MemoryStore) Enqueue(_ context.Context, deviceKey, port, command string) (string, error) {
	id := xid.New().String()
	m.Put(deviceKey, model.RawQueueItem{ID: id, Fields: map[string]interface{}{
		fieldPort:      port,
		fieldCommand:   command,
		fieldTimestamp: time.Now().UTC().Format(time.RFC3339),
	}})
	return id, nil
}

func (m *MemoryStore) ListPending(_ context.Context, deviceKey string) ([]model.RawQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RawQueueItem(nil), m.items[deviceKey]...), nil
}

func (m *MemoryStore) Delete(_ context.Context, deviceKey, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items[deviceKey]
	for i, it := range items {
		if it.ID == id {
			m.items[deviceKey] = append(items[:i:i], items[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) AppendLog(_ context.Context, deviceKey string, entry model.QueueLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[deviceKey] = append(m.logs[deviceKey], entry)
	return nil
}

func (m *MemoryStore) PutSnapshot(_ context.Context, deviceKey string, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[deviceKey] = snap
	m.puts[deviceKey]++
	return nil
}

// Logs 已写入的队列日志
func (m *MemoryStore) Logs(deviceKey string) []model.QueueLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.QueueLogEntry(nil), m.logs[deviceKey]...)
}

// Snapshot 最近写入的快照与写入次数
func (m *MemoryStore) Snapshot(deviceKey string) (model.Snapshot, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[deviceKey], m.puts[deviceKey]
}

// RecentLogs 最近的队列日志，新的在前
func (m *MemoryStore) RecentLogs(_ context.Context, deviceKey string, limit int) ([]model.QueueLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	logs := m.logs[deviceKey]
	if limit <= 0 || limit > len(logs) {
		limit = len(logs)
	}
	out := make([]model.QueueLogEntry, 0, limit)
	for i := len(logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, logs[i])
	}
	return out, nil
}
