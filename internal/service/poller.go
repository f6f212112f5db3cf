package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swappnet/swapp/addone/interact"
	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/internal/parser"
	"github.com/swappnet/swapp/pkg/logger"
)

// PollerOptions 状态刷新参数
type PollerOptions struct {
	DeviceKey  string
	Interval   time.Duration
	Vocabulary interact.Vocabulary
	Archiver   Archiver
	Metrics    *Metrics
}

// Poller 定时刷新端口状态
type Poller struct {
	sup        *Supervisor
	store      Store
	reconciler *Reconciler
	opts       PollerOptions
	log        *logrus.Entry

	trigger chan struct{}

	mu          sync.RWMutex
	current     model.Snapshot
	lastRefresh time.Time
	lastErr     error
}

func NewPoller(sup *Supervisor, store Store, reconciler *Reconciler, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	return &Poller{
		sup:        sup,
		store:      store,
		reconciler: reconciler,
		opts:       opts,
		log:        logger.WithComponent("poller", opts.DeviceKey),
		trigger:    make(chan struct{}, 1),
		current:    model.NewSnapshot(),
	}
}

// Current 最近一次成功解析的快照
func (p *Poller) Current() model.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// LastRefresh 最近一次刷新的时间与结果
func (p *Poller) LastRefresh() (time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRefresh, p.lastErr
}

// History 最近的端口变化
func (p *Poller) History(limit int) []Change {
	return p.reconciler.History(limit)
}

// Trigger 请求尽快刷新一次；已有待处理请求时合并
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// RefreshOnce 在一次闸门持有内查询状态、switchport 与 VLAN，解析并比对
// 解析失败或会话不可用时保留上一份快照
func (p *Poller) RefreshOnce(ctx context.Context) ([]Change, error) {
	changes, err := p.collect(ctx)
	p.mu.Lock()
	p.lastRefresh, p.lastErr = time.Now(), err
	p.mu.Unlock()
	if err != nil {
		switch {
		case errors.Is(err, ErrConnectionUnavailable):
			p.opts.Metrics.observeRefresh("unavailable")
		case errors.Is(err, ErrParseIncomplete):
			p.opts.Metrics.observeRefresh("parse_incomplete")
		default:
			p.opts.Metrics.observeRefresh("error")
		}
		return nil, err
	}
	p.opts.Metrics.observeRefresh("ok")
	return changes, nil
}

func (p *Poller) collect(ctx context.Context) ([]Change, error) {
	vocab := p.opts.Vocabulary
	h, err := p.sup.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	res, err := h.Execute(ctx, []string{vocab.QueryStatus})
	if err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	snap := parser.ParsePortTable(res.StepOutput(0))
	if snap.Len() == 0 && vocab.QueryStatusFallback != "" {
		res, err = h.Execute(ctx, []string{vocab.QueryStatusFallback})
		if err != nil {
			return nil, fmt.Errorf("query status fallback: %w", err)
		}
		snap = parser.ParsePortTable(res.StepOutput(0))
	}
	if snap.Len() == 0 {
		return nil, fmt.Errorf("port table: %w", ErrParseIncomplete)
	}

	var rawSwitchport, rawVlans string
	if vocab.QuerySwitchport != "" {
		res, err := h.Execute(ctx, []string{vocab.QuerySwitchport})
		if err != nil {
			return nil, fmt.Errorf("query switchport: %w", err)
		}
		rawSwitchport = res.StepOutput(0)
	}
	if vocab.QueryVlanNames != "" {
		res, err := h.Execute(ctx, []string{vocab.QueryVlanNames})
		if err != nil {
			return nil, fmt.Errorf("query vlan: %w", err)
		}
		rawVlans = res.StepOutput(0)
	}
	snap = parser.ParseVlanAssignments(rawSwitchport, rawVlans, snap)

	// 比对在闸门内完成，Reconciler 只有一个写入者
	changes, changed := p.reconciler.Reconcile(snap)
	p.mu.Lock()
	p.current = snap
	p.mu.Unlock()
	h.Release()

	if changed {
		p.publish(ctx, snap, changes)
	}
	return changes, nil
}

// publish 持久化快照、记录变化并归档；失败只记录日志
func (p *Poller) publish(ctx context.Context, snap model.Snapshot, changes []Change) {
	for _, c := range changes {
		p.log.WithField("kind", c.Kind).Info(c.String())
	}
	p.opts.Metrics.observeChanges(changes)

	if err := p.store.PutSnapshot(ctx, p.opts.DeviceKey, snap); err != nil {
		p.log.WithError(err).Warn("Failed to persist snapshot")
	}
	if rec, ok := p.store.(ChangeRecorder); ok && len(changes) > 0 {
		if err := rec.RecordChanges(ctx, p.opts.DeviceKey, changes); err != nil {
			p.log.WithError(err).Warn("Failed to record port changes")
		}
	}
	if p.opts.Archiver != nil {
		obj, err := p.opts.Archiver.Archive(ctx, p.opts.DeviceKey, snap, changes)
		if err != nil {
			p.log.WithError(err).Warn("Failed to archive snapshot")
		} else {
			p.log.WithField("uri", obj.URI).Debug("Snapshot archived")
		}
	}
}

// Run 启动后立即刷新一次，之后按间隔或 Trigger 刷新
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	p.refreshAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.trigger:
		}
		p.refreshAndLog(ctx)
	}
}

func (p *Poller) refreshAndLog(ctx context.Context) {
	if _, err := p.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
		p.log.WithError(err).Warn("Refresh cycle skipped")
	}
}
