package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swappnet/swapp/addone/interact"
	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/pkg/logger"
	"github.com/swappnet/swapp/pkg/ssh"
)

// CommandRunner 执行命令序列（通常为 Supervisor）
type CommandRunner interface {
	Execute(ctx context.Context, commands []string) (*ssh.CommandResult, error)
}

var _ CommandRunner = (*Supervisor)(nil)

// QueueOptions 队列消费参数
type QueueOptions struct {
	DeviceKey     string
	Interval      time.Duration
	Attempts      int
	RetryDelay    time.Duration
	PortSeparator string
	Vocabulary    interact.Vocabulary
	Metrics       *Metrics
	// OnApplied 条目成功应用后回调（用于触发刷新）
	OnApplied func()
}

// QueueConsumer 远程命令队列消费者
type QueueConsumer struct {
	store  Store
	runner CommandRunner
	opts   QueueOptions
	log    *logrus.Entry
}

func NewQueueConsumer(store Store, runner CommandRunner, opts QueueOptions) *QueueConsumer {
	if opts.Attempts < 1 {
		opts.Attempts = 5
	}
	if opts.PortSeparator == "" {
		opts.PortSeparator = "_"
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	return &QueueConsumer{
		store:  store,
		runner: runner,
		opts:   opts,
		log:    logger.WithComponent("queue", opts.DeviceKey),
	}
}

// ParseVerb open/enable/no shutdown 为开启，close/disable/shutdown 为关闭；大小写不敏感
func ParseVerb(s string) (model.Verb, error) {
	switch strings.Join(strings.Fields(strings.ToLower(s)), " ") {
	case "open", "enable", "no shutdown":
		return model.VerbEnable, nil
	case "close", "disable", "shutdown":
		return model.VerbDisable, nil
	}
	return "", fmt.Errorf("%w: unknown command %q", ErrQueueItemMalformed, s)
}

// TranslatePortToken 将 Gi1_0_5 形式的端口令牌还原为规范接口名
func TranslatePortToken(token, sep string) (string, error) {
	token = strings.TrimSpace(token)
	if sep != "" && sep != "/" {
		token = strings.ReplaceAll(token, sep, "/")
	}
	id := model.CanonicalPortID(token)
	if !model.IsPortID(id) {
		return "", fmt.Errorf("%w: port %q is not an interface", ErrQueueItemMalformed, token)
	}
	return id, nil
}

// ValidateQueueItem 校验原始条目字段
func ValidateQueueItem(raw model.RawQueueItem, sep string) (model.QueueItem, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return model.QueueItem{}, fmt.Errorf("%w: empty id", ErrQueueItemMalformed)
	}
	if raw.DecodeError != "" {
		return model.QueueItem{}, fmt.Errorf("%w: undecodable payload: %s", ErrQueueItemMalformed, raw.DecodeError)
	}
	portToken, ok := raw.Fields[fieldPort].(string)
	if !ok || strings.TrimSpace(portToken) == "" {
		return model.QueueItem{}, fmt.Errorf("%w: missing port", ErrQueueItemMalformed)
	}
	if _, err := TranslatePortToken(portToken, sep); err != nil {
		return model.QueueItem{}, err
	}
	command, ok := raw.Fields[fieldCommand].(string)
	if !ok {
		return model.QueueItem{}, fmt.Errorf("%w: command is %T", ErrQueueItemMalformed, raw.Fields[fieldCommand])
	}
	verb, err := ParseVerb(command)
	if err != nil {
		return model.QueueItem{}, err
	}
	submitted := parseSubmittedAt(raw.Fields[fieldSubmittedAt])
	if submitted.IsZero() {
		submitted = parseSubmittedAt(raw.Fields[fieldTimestamp])
	}
	return model.QueueItem{ExternalID: raw.ID, PortToken: portToken, Verb: verb, SubmittedAt: submitted}, nil
}

func parseSubmittedAt(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
	case float64:
		return time.Unix(int64(t), 0)
	case int64:
		return time.Unix(t, 0)
	}
	return time.Time{}
}

// PollAndApply 读取待处理条目并逐个应用，返回已确认（应用成功或丢弃）的条目数
// 连接不可用时本轮剩余条目留待下一轮
func (c *QueueConsumer) PollAndApply(ctx context.Context) (int, error) {
	items, err := c.store.ListPending(ctx, c.opts.DeviceKey)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	acked := 0
	var errs []error
	for _, raw := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		item, err := ValidateQueueItem(raw, c.opts.PortSeparator)
		if err != nil {
			c.log.WithError(err).WithField("item", raw.ID).Warn("Discarding malformed queue item")
			if derr := c.store.Delete(ctx, c.opts.DeviceKey, raw.ID); derr != nil {
				errs = append(errs, fmt.Errorf("discard %s: %w", raw.ID, derr))
				continue
			}
			c.opts.Metrics.observeQueueItem("malformed")
			acked++
			continue
		}

		if err := c.apply(ctx, item); err != nil {
			errs = append(errs, err)
			if errors.Is(err, ErrConnectionUnavailable) || ctx.Err() != nil {
				break
			}
			continue
		}
		acked++
	}
	return acked, errors.Join(errs...)
}

// apply 在重试预算内应用单个条目
func (c *QueueConsumer) apply(ctx context.Context, item model.QueueItem) error {
	id, err := TranslatePortToken(item.PortToken, c.opts.PortSeparator)
	if err != nil {
		return err
	}
	seq, err := c.opts.Vocabulary.AdminSequence([]string{id}, item.Verb == model.VerbEnable)
	if err != nil {
		return err
	}
	log := c.log.WithFields(logrus.Fields{"item": item.ExternalID, "port": id, "verb": item.Verb})

	var lastErr error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if attempt > 1 && c.opts.RetryDelay > 0 {
			select {
			case <-time.After(c.opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		res, err := c.runner.Execute(ctx, seq)
		if err == nil {
			err = rejected(seq, res)
		}
		if err == nil {
			return c.acknowledge(ctx, item, id, attempt, log)
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Queue item attempt failed")
	}

	c.opts.Metrics.observeQueueItem("failed")
	if err := c.store.AppendLog(ctx, c.opts.DeviceKey, model.QueueLogEntry{
		ItemID:    item.ExternalID,
		Port:      id,
		Verb:      item.Verb,
		Result:    model.QueueResultFailed,
		Attempts:  c.opts.Attempts,
		Message:   lastErr.Error(),
		Timestamp: time.Now(),
	}); err != nil {
		log.WithError(err).Warn("Failed to append queue failure log")
	}
	return fmt.Errorf("%w: %s %s after %d attempts: %w", ErrQueueItemFailed, item.Verb, id, c.opts.Attempts, lastErr)
}

func (c *QueueConsumer) acknowledge(ctx context.Context, item model.QueueItem, id string, attempts int, log *logrus.Entry) error {
	if err := c.store.Delete(ctx, c.opts.DeviceKey, item.ExternalID); err != nil {
		// 条目保留，下一轮重复应用（开关端口幂等）
		return fmt.Errorf("acknowledge %s: %w", item.ExternalID, err)
	}
	c.opts.Metrics.observeQueueItem("applied")
	if err := c.store.AppendLog(ctx, c.opts.DeviceKey, model.QueueLogEntry{
		ItemID:    item.ExternalID,
		Port:      id,
		Verb:      item.Verb,
		Result:    model.QueueResultSuccess,
		Attempts:  attempts,
		Timestamp: time.Now(),
	}); err != nil {
		log.WithError(err).Warn("Failed to append queue success log")
	}
	log.WithField("attempts", attempts).Info("Queue item applied")
	if c.opts.OnApplied != nil {
		c.opts.OnApplied()
	}
	return nil
}

// Run 按固定间隔消费队列，直到 ctx 取消
func (c *QueueConsumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := c.PollAndApply(ctx)
			if err != nil && ctx.Err() == nil {
				c.log.WithError(err).WithField("acknowledged", n).Warn("Queue cycle finished with errors")
			} else if n > 0 {
				c.log.WithField("acknowledged", n).Info("Queue cycle finished")
			}
		}
	}
}
