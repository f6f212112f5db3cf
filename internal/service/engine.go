package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swappnet/swapp/addone/interact"
	"github.com/swappnet/swapp/internal/config"
	"github.com/swappnet/swapp/internal/database"
	"github.com/swappnet/swapp/pkg/cache"
	"github.com/swappnet/swapp/pkg/logger"
	"github.com/swappnet/swapp/pkg/ssh"
)

// Engine 单台设备的完整运行单元
type Engine struct {
	DeviceKey  string
	Supervisor *Supervisor
	Poller     *Poller
	Queue      *QueueConsumer
	Ports      *PortService
	Reconciler *Reconciler
	Store      Store
	Metrics    *Metrics

	refreshEnabled bool
	queueEnabled   bool
}

// OpenStore 按 store.backend 打开存储，返回关闭函数
func OpenStore(cfg *config.Config) (Store, func() error, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	case "redis":
		client, err := cache.InitRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(client, cfg.Redis.LogLimit), client.Close, nil
	case "", "sqlite":
		db, err := database.Open(cfg.Database.SQLite)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLStore(db), func() error { return database.Close(db) }, nil
	}
	return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
}

// ExecOptionsFor 由会话配置与平台默认值生成执行参数
func ExecOptionsFor(cfg config.SessionConfig, plugin interact.InteractPlugin) (ssh.ExecOptions, error) {
	vocab := plugin.Vocabulary()
	defaults := plugin.Defaults()
	opts := ssh.ExecOptions{
		PerCommandTimeout: cfg.CommandTimeout,
		QuietWindow:       cfg.QuietWindow,
		PollInterval:      cfg.PollInterval,
		ErrorTokens:       vocab.ErrorTokens,
		LineEnding:        cfg.LineEnding,
	}
	if opts.PerCommandTimeout <= 0 {
		opts.PerCommandTimeout = time.Duration(defaults.CommandTimeoutSec) * time.Second
	}
	if opts.QuietWindow <= 0 {
		opts.QuietWindow = time.Duration(defaults.QuietAfterMS) * time.Millisecond
	}
	if vocab.PromptPattern != "" {
		re, err := regexp.Compile(vocab.PromptPattern)
		if err != nil {
			return opts, fmt.Errorf("prompt pattern: %w", err)
		}
		opts.PromptPattern = re
	}
	return opts, nil
}

// NewEngine 组装监管者、刷新、队列与端口服务；transport 由调用方提供（便于注入）
func NewEngine(cfg *config.Config, transport ssh.Transport, store Store) (*Engine, error) {
	plugin := interact.Get(cfg.Device.Platform)
	vocab := plugin.Vocabulary()
	if cfg.Session.ProbeCommand != "" {
		vocab.Probe = cfg.Session.ProbeCommand
	}
	exec, err := ExecOptionsFor(cfg.Session, plugin)
	if err != nil {
		return nil, err
	}

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = NewMetrics()
	}
	key := cfg.Device.Key

	sup := NewSupervisor(transport, SupervisorOptions{
		DeviceKey:  key,
		Vocabulary: vocab,
		Exec:       exec,
		Info: &ssh.ConnectionInfo{
			Host:           cfg.Device.Host,
			Port:           cfg.Device.Port,
			Username:       cfg.Device.Username,
			Password:       cfg.Device.Password,
			EnablePassword: cfg.Device.EnablePassword,
		},
		ConnectTimeout:    cfg.Session.ConnectTimeout,
		ReconnectAttempts: cfg.Session.ReconnectAttempts,
		ReconnectDelay:    cfg.Session.ReconnectDelay,
		KeepAliveInterval: cfg.Session.KeepAliveInterval,
		Metrics:           metrics,
	})
	reconciler := NewReconciler(cfg.Refresh.HistoryLimit)
	poller := NewPoller(sup, store, reconciler, PollerOptions{
		DeviceKey:  key,
		Interval:   cfg.Refresh.Interval,
		Vocabulary: vocab,
		Archiver:   NewArchiver(cfg.Archive),
		Metrics:    metrics,
	})
	queue := NewQueueConsumer(store, sup, QueueOptions{
		DeviceKey:     key,
		Interval:      cfg.Queue.Interval,
		Attempts:      cfg.Queue.Attempts,
		RetryDelay:    cfg.Queue.RetryDelay,
		PortSeparator: cfg.Queue.PortSeparator,
		Vocabulary:    vocab,
		Metrics:       metrics,
		OnApplied:     poller.Trigger,
	})
	ports := NewPortService(sup, PortOptions{
		DeviceKey:      key,
		Vocabulary:     vocab,
		BatchSize:      cfg.Device.BulkBatchSize,
		SaveAfterApply: cfg.Device.SaveAfterApply,
		PortSeparator:  cfg.Queue.PortSeparator,
		OnChanged:      poller.Trigger,
	})
	metrics.RegisterState(sup, poller)

	return &Engine{
		DeviceKey:      key,
		Supervisor:     sup,
		Poller:         poller,
		Queue:          queue,
		Ports:          ports,
		Reconciler:     reconciler,
		Store:          store,
		Metrics:        metrics,
		refreshEnabled: cfg.Refresh.Enabled,
		queueEnabled:   cfg.Queue.Enabled,
	}, nil
}

// Run 运行心跳、刷新与队列三个定时任务，ctx 取消后断开会话
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Supervisor.RunKeepAlive(gctx) })
	if e.refreshEnabled {
		g.Go(func() error { return e.Poller.Run(gctx) })
	}
	if e.queueEnabled {
		g.Go(func() error { return e.Queue.Run(gctx) })
	}
	logger.WithComponent("engine", e.DeviceKey).Info("Engine started")
	err := g.Wait()
	if cerr := e.Supervisor.Close(); cerr != nil && err == nil {
		err = cerr
	}
	logger.WithComponent("engine", e.DeviceKey).Info("Engine stopped")
	return err
}
