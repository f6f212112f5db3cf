package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swappnet/swapp/pkg/ssh"
)

const mockStatusTable = "Port      Name               Status       Vlan       Duplex  Speed Type\r\n" +
	"Gi1/0/1                      connected    10         a-full a-1000 10/100/1000BaseTX\r\n" +
	"Gi1/0/2                      notconnect   10           auto   auto 10/100/1000BaseTX\r\n"

// mockStream 简化的 IOS 会话：按行应答，应答在短延迟后异步到达
type mockStream struct {
	mu       sync.Mutex
	buf      []byte
	closed   bool
	mode     string // exec | config | config-if | user | password
	enablePw string
	written  []string
	delay    time.Duration

	pending    int32
	violations int32
}

func newMockStream(startMode, enablePw string) *mockStream {
	s := &mockStream{mode: startMode, enablePw: enablePw, delay: time.Millisecond}
	s.buf = []byte("\r\nWelcome\r\n" + s.prompt())
	return s
}

func (s *mockStream) prompt() string {
	switch s.mode {
	case "user":
		return "SW1>"
	case "config":
		return "SW1(config)#"
	case "config-if":
		return "SW1(config-if)#"
	}
	return "SW1#"
}

func (s *mockStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ssh.ErrConnectionUnavailable
	}
	s.mu.Unlock()
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		if !atomic.CompareAndSwapInt32(&s.pending, 0, 1) {
			atomic.AddInt32(&s.violations, 1)
		}
		s.mu.Lock()
		s.written = append(s.written, line)
		s.mu.Unlock()
		go s.respond(line)
	}
	return len(p), nil
}

func (s *mockStream) respond(line string) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	atomic.StoreInt32(&s.pending, 0)
	if s.closed {
		return
	}
	cmd := strings.TrimSpace(line)
	var body string
	switch {
	case s.mode == "password":
		if cmd == s.enablePw {
			s.mode = "exec"
		} else {
			s.mode = "user"
			body = "% Access denied\r\n"
		}
		s.buf = append(s.buf, []byte("\r\n"+body+s.prompt())...)
		return
	case cmd == "":
	case cmd == "enable" && s.mode == "user":
		s.mode = "password"
		s.buf = append(s.buf, []byte(line+"\r\nPassword: ")...)
		return
	case cmd == "show clock":
		body = "*10:01:02.123 UTC Mon Oct 19 2026\r\n"
	case cmd == "show interfaces status":
		body = mockStatusTable
	case strings.HasPrefix(cmd, "show vlan id "):
		id := strings.TrimPrefix(cmd, "show vlan id ")
		body = "VLAN Name                             Status    Ports\r\n" +
			fmt.Sprintf("%-4s %-32s active\r\n", id, "VLAN"+id)
	case strings.HasPrefix(cmd, "terminal "):
	case cmd == "configure terminal":
		s.mode = "config"
		body = "Enter configuration commands, one per line.  End with CNTL/Z.\r\n"
	case strings.HasPrefix(cmd, "interface ") && s.mode != "exec":
		s.mode = "config-if"
	case (cmd == "shutdown" || cmd == "no shutdown") && s.mode == "config-if":
	case cmd == "end":
		s.mode = "exec"
	case cmd == "stall":
		// 不返回任何输出
		return
	default:
		body = "                ^\r\n% Invalid input detected at '^' marker.\r\n"
	}
	s.buf = append(s.buf, []byte(line+"\r\n"+body+s.prompt())...)
}

func (s *mockStream) ReadAvailable() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.buf
	s.buf = nil
	return out
}

func (s *mockStream) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockStream) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

// mockTransport 按次序返回连接错误；成功时创建新的 mockStream
type mockTransport struct {
	mu           sync.Mutex
	connectErrs  []error
	connects     int
	connected    bool
	keepAliveErr error
	startMode    string
	enablePw     string
	streams      []*mockStream
}

func (t *mockTransport) Connect(_ context.Context, _ *ssh.ConnectionInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if len(t.connectErrs) > 0 {
		err := t.connectErrs[0]
		t.connectErrs = t.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	t.connected = true
	return nil
}

func (t *mockTransport) OpenInteractiveStream(_ context.Context) (ssh.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, errors.New("not connected")
	}
	mode := t.startMode
	if mode == "" {
		mode = "exec"
	}
	s := newMockStream(mode, t.enablePw)
	t.streams = append(t.streams, s)
	return s, nil
}

func (t *mockTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *mockTransport) KeepAlive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.keepAliveErr
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *mockTransport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// FailNextConnects 之后的 Connect 依次返回 errs
func (t *mockTransport) FailNextConnects(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErrs = append(t.connectErrs, errs...)
}

func (t *mockTransport) Streams() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

func (t *mockTransport) LastStream() *mockStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.streams) == 0 {
		return nil
	}
	return t.streams[len(t.streams)-1]
}
