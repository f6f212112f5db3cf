package ssh

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config SSH配置
type Config struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	EnablePassword string `json:"-"`
}

// Address 返回 host:port
func (i *ConnectionInfo) Address() string {
	return net.JoinHostPort(i.Host, fmt.Sprintf("%d", i.Port))
}

// Transport 会话传输层：建立连接并创建交互式流
type Transport interface {
	Connect(ctx context.Context, info *ConnectionInfo) error
	OpenInteractiveStream(ctx context.Context) (Stream, error)
	IsConnected() bool
	KeepAlive() error
	Close() error
}

// Client SSH客户端
type Client struct {
	config     *Config
	connection *ssh.Client
	stream     *shellStream
	mutex      sync.RWMutex
}

var _ Transport = (*Client)(nil)

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{Timeout: 30 * time.Second}
	}
	return &Client{config: config}
}

// clientConfig 构建兼容网络设备的 SSH 配置
func (c *Client) clientConfig(info *ConnectionInfo) *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            info.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.Timeout,
		Config: ssh.Config{
			// 旧版本交换机常见的密钥交换算法
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group-exchange-sha1",
				"diffie-hellman-group1-sha1",
			},
			Ciphers: []string{
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"chacha20-poly1305@openssh.com",
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"aes192-cbc",
				"aes256-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"rsa-sha2-256",
			"rsa-sha2-512",
			"ssh-rsa",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
			"ssh-ed25519",
		},
	}

	// 同时尝试 password 与 keyboard-interactive，Cisco 设备常用后者
	cfg.Auth = []ssh.AuthMethod{
		ssh.Password(info.Password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = info.Password
			}
			return answers, nil
		}),
	}
	return cfg
}

// Connect 连接SSH服务器；已有连接会先关闭
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	if info == nil {
		return fmt.Errorf("connection info is required")
	}
	_ = c.Close()

	address := info.Address()
	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, c.clientConfig(info))
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SSH connection: %w", err)
	}
	// 握手完成后取消握手期的截止时间
	_ = conn.SetDeadline(time.Time{})

	c.mutex.Lock()
	c.connection = ssh.NewClient(sshConn, chans, reqs)
	c.mutex.Unlock()
	return nil
}

// newSessionWithRetry 创建会话（带退避重试）
// 部分设备在登录后立即打开通道会返回 "administratively prohibited"
func (c *Client) newSessionWithRetry(ctx context.Context) (*ssh.Session, error) {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("SSH connection not established")
	}

	backoffs := []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond, time.Second}
	var lastErr error
	for _, d := range backoffs {
		if d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		sess, err := conn.NewSession()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			// 底层连接已断开，重试无意义
			break
		}
	}
	return nil, lastErr
}

// OpenInteractiveStream 打开 PTY 交互式 Shell 并返回可读写的流
func (c *Client) OpenInteractiveStream(ctx context.Context) (Stream, error) {
	session, err := c.newSessionWithRetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// 启用回显，终端类型按 vt100/xterm/ansi/dumb 回退
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 200, 512, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stderr: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	stream := newShellStream(session, stdin, stdout, stderr)
	c.mutex.Lock()
	if c.stream != nil {
		_ = c.stream.Close()
	}
	c.stream = stream
	c.mutex.Unlock()
	return stream, nil
}

// IsConnected 轻量健康检查：发送 keepalive 请求而不创建会话
func (c *Client) IsConnected() bool {
	return c.KeepAlive() == nil
}

// KeepAlive 发送一次 SSH 层保活请求，不触碰交互式流
func (c *Client) KeepAlive() error {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return fmt.Errorf("SSH connection not established")
	}
	_, _, err := conn.SendRequest("keepalive@openssh.com", false, nil)
	if err != nil {
		return fmt.Errorf("keepalive failed: %w", err)
	}
	return nil
}

// Close 关闭流与连接
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	if c.connection != nil {
		err := c.connection.Close()
		c.connection = nil
		return err
	}
	return nil
}
