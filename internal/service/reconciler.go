package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/swappnet/swapp/internal/model"
)

// ChangeKind 变化类型
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeChanged ChangeKind = "changed"
	ChangeRemoved ChangeKind = "removed"
)

// FieldChange 单字段变化
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Change 单个端口的变化
type Change struct {
	Identifier string        `json:"identifier"`
	Kind       ChangeKind    `json:"kind"`
	Fields     []FieldChange `json:"fields,omitempty"`
	DetectedAt time.Time     `json:"detected_at"`
}

// String 形如 "Gi1/0/5: notconnect -> connected"
func (c Change) String() string {
	switch c.Kind {
	case ChangeAdded:
		return c.Identifier + ": added"
	case ChangeRemoved:
		return c.Identifier + ": removed"
	}
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Field == "status" {
			parts = append(parts, fmt.Sprintf("%s -> %s", f.Old, f.New))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s -> %s", f.Field, f.Old, f.New))
	}
	return c.Identifier + ": " + strings.Join(parts, ", ")
}

func compareRecords(cur, prev model.PortRecord) []FieldChange {
	var fields []FieldChange
	if cur.Status != prev.Status {
		fields = append(fields, FieldChange{Field: "status", Old: prev.Status, New: cur.Status})
	}
	if cur.Admin != prev.Admin {
		fields = append(fields, FieldChange{Field: "admin", Old: string(prev.Admin), New: string(cur.Admin)})
	}
	return fields
}

// Diff 比较两份快照的 status/admin 字段，按接口自然顺序返回变化
// 新增与消失的端口同样报告
func Diff(current, previous model.Snapshot) []Change {
	now := time.Now()
	var changes []Change
	for _, id := range current.IDs() {
		cur, _ := current.Get(id)
		prev, ok := previous.Get(id)
		if !ok {
			changes = append(changes, Change{Identifier: id, Kind: ChangeAdded, DetectedAt: now})
			continue
		}
		if fields := compareRecords(cur, prev); len(fields) > 0 {
			changes = append(changes, Change{Identifier: id, Kind: ChangeChanged, Fields: fields, DetectedAt: now})
		}
	}
	for _, id := range previous.IDs() {
		if _, ok := current.Get(id); !ok {
			changes = append(changes, Change{Identifier: id, Kind: ChangeRemoved, DetectedAt: now})
		}
	}
	return changes
}

// HasChanged 发现第一个差异即返回
func HasChanged(current, previous model.Snapshot) bool {
	if current.Len() != previous.Len() {
		return true
	}
	for _, cur := range current.Records() {
		prev, ok := previous.Get(cur.Identifier)
		if !ok || len(compareRecords(cur, prev)) > 0 {
			return true
		}
	}
	return false
}

// Reconciler 缓存上一份快照并保留有限的变化历史
type Reconciler struct {
	mu       sync.RWMutex
	previous model.Snapshot
	primed   bool
	history  []Change
	limit    int
}

// NewReconciler historyLimit<=0 时取 100
func NewReconciler(historyLimit int) *Reconciler {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Reconciler{limit: historyLimit}
}

// Reconcile 与缓存快照比较并替换缓存
// 首次调用没有基线：返回 changed=true，但不生成逐端口的 added 事件
func (r *Reconciler) Reconcile(current model.Snapshot) ([]Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.primed {
		r.previous = current
		r.primed = true
		return nil, true
	}
	changes := Diff(current, r.previous)
	r.previous = current
	if len(changes) == 0 {
		return nil, false
	}
	r.history = append(r.history, changes...)
	if over := len(r.history) - r.limit; over > 0 {
		r.history = append([]Change(nil), r.history[over:]...)
	}
	return changes, true
}

// Previous 最近一次缓存的快照
func (r *Reconciler) Previous() model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.previous
}

// History 最近 limit 条变化，最新的在最后；limit<=0 返回全部
func (r *Reconciler) History(limit int) []Change {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := r.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append(make([]Change, 0, len(h)), h...)
}
