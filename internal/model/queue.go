package model

import "time"

// Verb 队列命令动作
type Verb string

const (
	VerbEnable  Verb = "enable"
	VerbDisable Verb = "disable"
)

// RawQueueItem 外部队列中的原始条目，字段未经校验
// DecodeError 非空表示存储中的条目无法解码，Fields 为空
type RawQueueItem struct {
	ID          string                 `json:"id"`
	Fields      map[string]interface{} `json:"fields"`
	DecodeError string                 `json:"decode_error,omitempty"`
}

// QueueItem 经校验后的队列条目
type QueueItem struct {
	ExternalID  string    `json:"external_id"`
	PortToken   string    `json:"port_token"`
	Verb        Verb      `json:"verb"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// 队列日志结果
const (
	QueueResultSuccess = "success"
	QueueResultFailed  = "failed"
)

// QueueLogEntry 应用结果日志
type QueueLogEntry struct {
	ItemID    string    `json:"item_id"`
	Port      string    `json:"port"`
	Verb      Verb      `json:"verb"`
	Result    string    `json:"result"`
	Attempts  int       `json:"attempts"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// QueueRecord 队列条目（SQL 存储）
type QueueRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DeviceKey   string    `gorm:"index;not null" json:"device_key"`
	Port        string    `gorm:"not null" json:"port"`
	Command     string    `gorm:"not null" json:"command"`
	SubmittedAt time.Time `json:"submitted_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (QueueRecord) TableName() string { return "queue_items" }

// QueueLog 队列应用日志（SQL 存储）
type QueueLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DeviceKey string    `gorm:"index;not null" json:"device_key"`
	ItemID    string    `gorm:"index" json:"item_id"`
	Port      string    `json:"port"`
	Verb      string    `json:"verb"`
	Result    string    `gorm:"index" json:"result"`
	Attempts  int       `json:"attempts"`
	Message   string    `gorm:"type:text" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (QueueLog) TableName() string { return "queue_logs" }

// SnapshotRecord 端口快照（仅在发生变化时写入）
type SnapshotRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DeviceKey string    `gorm:"index;not null" json:"device_key"`
	PortCount int       `json:"port_count"`
	Payload   string    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SnapshotRecord) TableName() string { return "port_snapshots" }

// PortChangeRecord 端口变化历史
type PortChangeRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DeviceKey string    `gorm:"index;not null" json:"device_key"`
	Port      string    `gorm:"index" json:"port"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (PortChangeRecord) TableName() string { return "port_changes" }
