package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/swappnet/swapp/internal/config"
	"github.com/swappnet/swapp/pkg/logger"
)

// ErrNotFound 键不存在
var ErrNotFound = errors.New("cache: key not found")

// Client 带键前缀的 Redis 客户端
type Client struct {
	rdb    redis.UniversalClient
	prefix string
}

// InitRedis 建立 Redis 连接并探活
func InitRedis(cfg config.RedisConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("redis host not configured")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis cache initialized successfully")
	return NewClient(rdb, cfg.KeyPrefix), nil
}

// NewClient 包装已有连接
func NewClient(rdb redis.UniversalClient, prefix string) *Client {
	return &Client{rdb: rdb, prefix: strings.Trim(prefix, ":")}
}

// Raw 底层客户端
func (c *Client) Raw() redis.UniversalClient {
	return c.rdb
}

// Key 拼接带前缀的键：prefix:part1:part2
func (c *Client) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}

// SetJSON 以 JSON 写入
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.rdb.Set(ctx, key, data, expiration).Err()
}

// GetJSON 读取 JSON 并解码到 dest
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to get value: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// PushCapped 追加到列表尾部并只保留最近 limit 条
func (c *Client) PushCapped(ctx context.Context, key string, limit int64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	if limit > 0 {
		pipe.LTrim(ctx, key, -limit, -1)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Health 检查Redis健康状态
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
