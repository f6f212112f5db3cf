package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swappnet/swapp/addone/interact"
	"github.com/swappnet/swapp/internal/parser"
	"github.com/swappnet/swapp/pkg/logger"
	"github.com/swappnet/swapp/pkg/ssh"
)

// SessionState 会话状态
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	}
	return "disconnected"
}

// SupervisorOptions 会话监管参数
type SupervisorOptions struct {
	DeviceKey  string
	Info       *ssh.ConnectionInfo
	Vocabulary interact.Vocabulary
	Exec       ssh.ExecOptions

	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	KeepAliveInterval time.Duration

	Metrics *Metrics
}

// Supervisor 独占交互式会话，通过单一闸门串行化所有命令序列
type Supervisor struct {
	transport ssh.Transport
	opts      SupervisorOptions
	log       *logrus.Entry

	configPrompt *regexp.Regexp

	// gate 容量为 1 的信号量；持有者独占 stream
	gate   chan struct{}
	stream ssh.Stream

	mu           sync.RWMutex
	state        SessionState
	lastVerified time.Time
	// generation 每次成功建连递增，防止过期心跳结果降级新会话
	generation uint64
}

// NewSupervisor 创建会话监管者；transport 在整个生命周期内复用
func NewSupervisor(transport ssh.Transport, opts SupervisorOptions) *Supervisor {
	if opts.ReconnectAttempts < 1 {
		opts.ReconnectAttempts = 3
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = 30 * time.Second
	}
	if opts.Info == nil {
		opts.Info = &ssh.ConnectionInfo{}
	}
	if opts.Exec.PromptPattern == nil && opts.Vocabulary.PromptPattern != "" {
		opts.Exec.PromptPattern = regexp.MustCompile(opts.Vocabulary.PromptPattern)
	}
	if opts.Exec.ErrorTokens == nil {
		opts.Exec.ErrorTokens = opts.Vocabulary.ErrorTokens
	}
	s := &Supervisor{
		transport: transport,
		opts:      opts,
		log:       logger.WithComponent("supervisor", opts.DeviceKey),
		gate:      make(chan struct{}, 1),
	}
	if opts.Vocabulary.ConfigPromptPattern != "" {
		s.configPrompt = regexp.MustCompile(opts.Vocabulary.ConfigPromptPattern)
	}
	return s
}

// State 当前会话状态
func (s *Supervisor) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastVerified 最近一次确认会话健康的时间
func (s *Supervisor) LastVerified() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastVerified
}

func (s *Supervisor) setState(st SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	if st == StateConnected {
		s.lastVerified = time.Now()
	}
	s.mu.Unlock()
	if prev != st {
		s.log.WithFields(logrus.Fields{"from": prev.String(), "to": st.String()}).Info("Session state changed")
	}
}

func (s *Supervisor) markVerified() {
	s.mu.Lock()
	s.lastVerified = time.Now()
	s.mu.Unlock()
}

// SessionHandle 闸门持有凭证；Release 前调用方独占会话
type SessionHandle struct {
	s        *Supervisor
	released int32
}

// Acquire 等待闸门并确保会话可用
// 已有会话先执行探测命令；探测失败则拆除并按 ReconnectAttempts 重连
// 重连耗尽时释放闸门并返回 ErrConnectionUnavailable
func (s *Supervisor) Acquire(ctx context.Context) (*SessionHandle, error) {
	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := s.ensureSession(ctx); err != nil {
		<-s.gate
		return nil, err
	}
	return &SessionHandle{s: s}, nil
}

// Execute 在持有的会话上执行命令序列
func (h *SessionHandle) Execute(ctx context.Context, commands []string) (*ssh.CommandResult, error) {
	if atomic.LoadInt32(&h.released) == 1 {
		return nil, fmt.Errorf("%w: session handle already released", ErrConnectionUnavailable)
	}
	return h.s.run(ctx, commands)
}

// Release 归还闸门，可重复调用
func (h *SessionHandle) Release() {
	if atomic.CompareAndSwapInt32(&h.released, 0, 1) {
		<-h.s.gate
	}
}

// Execute Acquire + Execute + Release
func (s *Supervisor) Execute(ctx context.Context, commands []string) (*ssh.CommandResult, error) {
	h, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.Execute(ctx, commands)
}

// run 仅在持有闸门时调用
func (s *Supervisor) run(ctx context.Context, commands []string) (*ssh.CommandResult, error) {
	res, err := ssh.RunSequence(ctx, s.stream, commands, s.opts.Exec)
	switch {
	case err != nil:
		s.opts.Metrics.observeCommand("error", durationOf(res))
	case !res.Succeeded:
		s.opts.Metrics.observeCommand("rejected", durationOf(res))
	default:
		s.opts.Metrics.observeCommand("ok", durationOf(res))
		s.markVerified()
	}
	if res != nil {
		for _, step := range res.Steps {
			logger.DebugCommandOutput(s.log, step.Command, step.Output, 3)
		}
	}

	if errors.Is(err, ErrConnectionUnavailable) {
		s.setState(StateDegraded)
		return res, err
	}
	s.restoreExecMode(ctx, commands, res)
	return res, err
}

// restoreExecMode 序列停留在配置模式时退回特权模式
func (s *Supervisor) restoreExecMode(ctx context.Context, commands []string, res *ssh.CommandResult) {
	exit := s.opts.Vocabulary.ExitContext
	if exit == "" || s.stream == nil || !s.stream.Writable() {
		return
	}
	prompt := res.LastPrompt()
	inConfig := s.configPrompt != nil && s.configPrompt.MatchString(prompt)
	if !inConfig && prompt == "" && s.opts.Vocabulary.EnterConfig != "" {
		// 超时等情况下无法得知提示符，凡进入过配置模式都退出
		for _, c := range commands {
			if strings.EqualFold(strings.TrimSpace(c), s.opts.Vocabulary.EnterConfig) {
				inConfig = true
				break
			}
		}
	}
	if !inConfig {
		return
	}
	if _, err := ssh.RunSequence(ctx, s.stream, []string{exit}, s.opts.Exec); err != nil {
		s.log.WithError(err).Warn("Failed to leave configuration mode")
		if errors.Is(err, ErrConnectionUnavailable) {
			s.setState(StateDegraded)
		}
	}
}

// ensureSession 仅在持有闸门时调用
func (s *Supervisor) ensureSession(ctx context.Context) error {
	if s.stream != nil && s.State() == StateConnected {
		err := s.probe(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithError(err).Warn("Session probe failed")
		s.setState(StateDegraded)
	}
	if s.stream != nil {
		s.teardown()
	}
	return s.reconnect(ctx)
}

func (s *Supervisor) probe(ctx context.Context) error {
	cmd := s.opts.Vocabulary.Probe
	if cmd == "" {
		if !s.stream.Writable() || !s.transport.IsConnected() {
			return fmt.Errorf("%w: stream closed", ErrConnectionUnavailable)
		}
		return nil
	}
	res, err := ssh.RunSequence(ctx, s.stream, []string{cmd}, s.opts.Exec)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return rejected([]string{cmd}, res)
	}
	if _, ok := parser.ParseClock(res.StepOutput(0)); !ok {
		s.log.WithField("output", res.StepOutput(0)).Debug("Probe output does not look like a clock line")
	}
	s.markVerified()
	return nil
}

func (s *Supervisor) reconnect(ctx context.Context) error {
	attempts := s.opts.ReconnectAttempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && s.opts.ReconnectDelay > 0 {
			select {
			case <-time.After(s.opts.ReconnectDelay):
			case <-ctx.Done():
				s.setState(StateDisconnected)
				return ctx.Err()
			}
		}
		s.setState(StateConnecting)
		err := s.connectOnce(ctx)
		s.opts.Metrics.observeConnect(err == nil)
		if err == nil {
			s.mu.Lock()
			s.generation++
			s.mu.Unlock()
			s.setState(StateConnected)
			s.log.WithField("attempt", attempt).Info("Session established")
			return nil
		}
		lastErr = err
		s.teardown()
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return ctx.Err()
		}
		s.log.WithError(err).WithField("attempt", attempt).Warn("Session connect failed")
	}
	s.setState(StateDisconnected)
	return fmt.Errorf("%w: %d connect attempts failed: %v", ErrConnectionUnavailable, attempts, lastErr)
}

// connectOnce 建连、打开交互流并完成初始化（等待提示符、enable、关闭分页）
func (s *Supervisor) connectOnce(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	if err := s.transport.Connect(cctx, s.opts.Info); err != nil {
		return err
	}
	stream, err := s.transport.OpenInteractiveStream(cctx)
	if err != nil {
		return err
	}
	s.stream = stream

	// 先读完登录横幅，避免横幅中的提示符被当作后续命令的结束
	if _, err := ssh.WaitForPrompt(cctx, stream, s.opts.Exec); err != nil {
		if !errors.Is(err, ssh.ErrCommandTimeout) {
			return fmt.Errorf("wait banner: %w", err)
		}
		s.log.WithError(err).Debug("No prompt in login banner")
	}

	vocab := s.opts.Vocabulary
	res, err := ssh.RunSequence(cctx, stream, []string{""}, s.opts.Exec)
	if err != nil {
		return fmt.Errorf("wait initial prompt: %w", err)
	}

	if s.opts.Info.EnablePassword != "" && vocab.EnableCLI != "" && !strings.HasSuffix(res.LastPrompt(), "#") {
		opts := s.opts.Exec
		opts.AutoInteractions = append([]ssh.AutoInteraction{{ExpectOutput: vocab.EnablePrompt, AutoSend: s.opts.Info.EnablePassword}}, opts.AutoInteractions...)
		res, err := ssh.RunSequence(cctx, stream, []string{vocab.EnableCLI}, opts)
		if err != nil {
			return fmt.Errorf("enable: %w", err)
		}
		if !res.Succeeded || (res.LastPrompt() != "" && !strings.HasSuffix(res.LastPrompt(), "#")) {
			return fmt.Errorf("enable rejected: %v", res.ErrorSignatures)
		}
	}

	if len(vocab.SessionSetup) > 0 {
		res, err := ssh.RunSequence(cctx, stream, vocab.SessionSetup, s.opts.Exec)
		if err != nil {
			return fmt.Errorf("session setup: %w", err)
		}
		if !res.Succeeded {
			// 部分固件不支持 terminal width，不影响会话
			s.log.WithField("signatures", res.ErrorSignatures).Warn("Session setup reported errors")
		}
	}
	return nil
}

// teardown 仅在持有闸门时调用
func (s *Supervisor) teardown() {
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	if err := s.transport.Close(); err != nil {
		s.log.WithError(err).Debug("Transport close returned error")
	}
}

// RunKeepAlive 按 KeepAliveInterval 发送 SSH 层心跳，不触碰交互流
// 心跳失败时将会话标记为 Degraded，下次 Acquire 直接重连
func (s *Supervisor) RunKeepAlive(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Supervisor) heartbeat() {
	s.mu.RLock()
	state, gen := s.state, s.generation
	s.mu.RUnlock()
	if state != StateConnected {
		return
	}
	err := s.transport.KeepAlive()
	if err == nil && s.transport.IsConnected() {
		return
	}
	s.mu.Lock()
	stale := s.generation != gen || s.state != StateConnected
	if !stale {
		s.state = StateDegraded
	}
	s.mu.Unlock()
	if !stale {
		s.log.WithError(err).Warn("Keepalive failed, session marked degraded")
	}
}

// Close 等待当前持有者结束后断开会话
func (s *Supervisor) Close() error {
	s.gate <- struct{}{}
	defer func() { <-s.gate }()
	s.teardown()
	s.setState(StateDisconnected)
	return nil
}

func durationOf(res *ssh.CommandResult) time.Duration {
	if res == nil {
		return 0
	}
	return res.Duration
}
