package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/swappnet/swapp/addone/interact"
	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/internal/parser"
	"github.com/swappnet/swapp/pkg/logger"
	"github.com/swappnet/swapp/pkg/portrange"
	"github.com/swappnet/swapp/pkg/ssh"
)

// PortOptions 端口操作参数
type PortOptions struct {
	DeviceKey      string
	Vocabulary     interact.Vocabulary
	BatchSize      int
	SaveAfterApply bool
	PortSeparator  string
	// OnChanged 变更成功后回调（触发刷新）
	OnChanged func()
}

// ActionResult 端口操作结果
type ActionResult struct {
	Ports   []string             `json:"ports"`
	Batches int                  `json:"batches"`
	Saved   bool                 `json:"saved"`
	Results []*ssh.CommandResult `json:"results,omitempty"`
}

// PortService 用户发起的端口操作
type PortService struct {
	runner CommandRunner
	opts   PortOptions
	log    *logrus.Entry
}

func NewPortService(runner CommandRunner, opts PortOptions) *PortService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = portrange.MaxBatchSize
	}
	if opts.PortSeparator == "" {
		opts.PortSeparator = "_"
	}
	return &PortService{runner: runner, opts: opts, log: logger.WithComponent("ports", opts.DeviceKey)}
}

// NormalizePorts 规范化接口名（接受 Gi1_0_5 形式）
func (s *PortService) NormalizePorts(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, invalidArg("no port given")
	}
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := TranslatePortToken(raw, s.opts.PortSeparator)
		if err != nil {
			return nil, invalidArg("port %q is not an interface", raw)
		}
		out = append(out, id)
	}
	return out, nil
}

// SetAdminState 开启或关闭一个或多个端口；多个端口按批次使用 interface range
func (s *PortService) SetAdminState(ctx context.Context, ids []string, verb model.Verb) (*ActionResult, error) {
	if verb != model.VerbEnable && verb != model.VerbDisable {
		return nil, invalidArg("unknown action %q", verb)
	}
	ports, err := s.NormalizePorts(ids)
	if err != nil {
		return nil, err
	}
	batches := portrange.Batches(ports, s.opts.BatchSize)
	out := &ActionResult{Batches: len(batches)}
	for _, batch := range batches {
		seq, err := s.opts.Vocabulary.AdminSequence(batch, verb == model.VerbEnable)
		if err != nil {
			return out, invalidArg("%v", err)
		}
		res, err := s.apply(ctx, seq)
		if res != nil {
			out.Results = append(out.Results, res)
		}
		if err != nil {
			return out, err
		}
		out.Ports = append(out.Ports, batch...)
	}
	s.log.WithFields(logrus.Fields{"verb": verb, "ports": strings.Join(out.Ports, ",")}).Info("Port admin state applied")
	return s.finish(ctx, out)
}

// SetAccessVlan 设置 access VLAN
func (s *PortService) SetAccessVlan(ctx context.Context, id string, vlan int) (*ActionResult, error) {
	ports, err := s.NormalizePorts([]string{id})
	if err != nil {
		return nil, err
	}
	seq, err := s.opts.Vocabulary.AccessVlanSequence(ports, vlan)
	if err != nil {
		return nil, invalidArg("%v", err)
	}
	out := &ActionResult{Batches: 1}
	res, err := s.apply(ctx, seq)
	if res != nil {
		out.Results = append(out.Results, res)
	}
	if err != nil {
		return out, err
	}
	out.Ports = ports
	s.log.WithFields(logrus.Fields{"port": ports[0], "vlan": vlan}).Info("Access VLAN applied")
	return s.finish(ctx, out)
}

// SetDescription 设置端口描述；空文本删除描述
func (s *PortService) SetDescription(ctx context.Context, id, text string) (*ActionResult, error) {
	ports, err := s.NormalizePorts([]string{id})
	if err != nil {
		return nil, err
	}
	seq, err := s.opts.Vocabulary.DescriptionSequence(ports[0], text)
	if err != nil {
		return nil, invalidArg("%v", err)
	}
	out := &ActionResult{Batches: 1}
	res, err := s.apply(ctx, seq)
	if res != nil {
		out.Results = append(out.Results, res)
	}
	if err != nil {
		return out, err
	}
	out.Ports = ports
	return s.finish(ctx, out)
}

// MacTable 查询 MAC 地址表；port 非空时只返回该端口学到的条目
func (s *PortService) MacTable(ctx context.Context, port string) ([]model.MacEntry, error) {
	var filter string
	if strings.TrimSpace(port) != "" {
		ports, err := s.NormalizePorts([]string{port})
		if err != nil {
			return nil, err
		}
		filter = ports[0]
	}
	out, err := s.query(ctx, s.opts.Vocabulary.QueryMacTable)
	if err != nil {
		return nil, err
	}
	entries := parser.ParseMacTable(out)
	if filter == "" {
		return entries, nil
	}
	matched := make([]model.MacEntry, 0, len(entries))
	for _, e := range entries {
		if e.Port == filter {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// ArpTable 查询 ARP 表
func (s *PortService) ArpTable(ctx context.Context) ([]model.ArpEntry, error) {
	out, err := s.query(ctx, s.opts.Vocabulary.QueryArp)
	if err != nil {
		return nil, err
	}
	return parser.ParseArpTable(out), nil
}

// query 在闸门内执行单条只读命令，返回其输出
func (s *PortService) query(ctx context.Context, command string) (string, error) {
	if command == "" {
		return "", invalidArg("query not supported on this platform")
	}
	res, err := s.apply(ctx, []string{command})
	if err != nil {
		return "", err
	}
	return res.StepOutput(0), nil
}

func (s *PortService) apply(ctx context.Context, seq []string) (*ssh.CommandResult, error) {
	res, err := s.runner.Execute(ctx, seq)
	if err != nil {
		return res, err
	}
	return res, rejected(seq, res)
}

// finish 按配置保存并触发刷新
func (s *PortService) finish(ctx context.Context, out *ActionResult) (*ActionResult, error) {
	if s.opts.OnChanged != nil {
		defer s.opts.OnChanged()
	}
	if !s.opts.SaveAfterApply || s.opts.Vocabulary.Save == "" {
		return out, nil
	}
	res, err := s.apply(ctx, []string{s.opts.Vocabulary.Save})
	if res != nil {
		out.Results = append(out.Results, res)
	}
	if err != nil {
		return out, fmt.Errorf("save configuration: %w", err)
	}
	out.Saved = true
	return out, nil
}
