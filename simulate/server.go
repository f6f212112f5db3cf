package simulate

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh"

	"github.com/swappnet/swapp/pkg/logger"
)

// Config 模拟交换机配置
type Config struct {
	Listen         string         `mapstructure:"listen"`
	Hostname       string         `mapstructure:"hostname"`
	Username       string         `mapstructure:"username"`
	Password       string         `mapstructure:"password"`
	EnablePassword string         `mapstructure:"enable_password"`
	AccessPorts    int            `mapstructure:"access_ports"`
	UplinkPorts    int            `mapstructure:"uplink_ports"`
	DefaultVlan    int            `mapstructure:"default_vlan"`
	Vlans          map[int]string `mapstructure:"vlans"`
	Connected      []string       `mapstructure:"connected"`
	Shutdown       []string       `mapstructure:"shutdown"`
	MaxConn        int            `mapstructure:"max_conn"`
	// HostKeyPath 为空时每次启动生成临时密钥
	HostKeyPath string `mapstructure:"host_key_path"`
}

// DefaultConfig 24 口接入交换机，前 4 个接入口有链路
func DefaultConfig() Config {
	return Config{
		Listen:      "127.0.0.1:10022",
		Hostname:    "SW1",
		Username:    "admin",
		Password:    "admin",
		AccessPorts: 24,
		UplinkPorts: 2,
		DefaultVlan: 10,
		Vlans:       map[int]string{10: "USERS", 20: "VOICE", 99: "MGMT"},
		Connected:   []string{"Gi1/0/1", "Gi1/0/2", "Gi1/0/3", "Gi1/0/4", "Te1/1/1"},
		MaxConn:     4,
	}
}

// LoadConfig 读取 YAML 配置，未出现的键使用 DefaultConfig
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	def := DefaultConfig()
	v.SetDefault("listen", def.Listen)
	v.SetDefault("hostname", def.Hostname)
	v.SetDefault("username", def.Username)
	v.SetDefault("password", def.Password)
	v.SetDefault("access_ports", def.AccessPorts)
	v.SetDefault("uplink_ports", def.UplinkPorts)
	v.SetDefault("default_vlan", def.DefaultVlan)
	v.SetDefault("connected", def.Connected)
	v.SetDefault("max_conn", def.MaxConn)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	if cfg.Vlans == nil {
		cfg.Vlans = def.Vlans
	}
	return &cfg, nil
}

// Server 在单个端口上提供模拟交换机的 SSH 服务
type Server struct {
	cfg     Config
	device  *Device
	hostKey ssh.Signer
	log     *logrus.Entry

	mu         sync.Mutex
	listener   net.Listener
	conns      map[*ssh.ServerConn]struct{}
	failLogins int
	logins     int
	wg         sync.WaitGroup
}

// NewServer 创建模拟服务（尚未监听）
func NewServer(cfg Config) (*Server, error) {
	if cfg.Hostname == "" {
		cfg.Hostname = "SW1"
	}
	signer, err := loadOrCreateHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init host key: %w", err)
	}
	return &Server{
		cfg:     cfg,
		device:  NewDevice(cfg),
		hostKey: signer,
		log:     logger.WithComponent("simulate", cfg.Hostname),
		conns:   make(map[*ssh.ServerConn]struct{}),
	}, nil
}

// Device 共享的端口状态，供测试检查或注入链路变化
func (s *Server) Device() *Device { return s.device }

// Addr 实际监听地址（Listen 使用 :0 时有用）
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// FailNextLogins 让接下来 n 次认证失败
func (s *Server) FailNextLogins(n int) {
	s.mu.Lock()
	s.failLogins = n
	s.mu.Unlock()
}

// Logins 成功认证的次数
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Server) sshConfig() *ssh.ServerConfig {
	check := func(user, pass string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failLogins > 0 {
			s.failLogins--
			return fmt.Errorf("login rejected")
		}
		if user != s.cfg.Username || pass != s.cfg.Password {
			return fmt.Errorf("invalid credentials")
		}
		s.logins++
		return nil
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			return nil, check(c.User(), string(pass))
		},
		KeyboardInteractiveCallback: func(c ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := client(c.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) != 1 {
				return nil, fmt.Errorf("unexpected answers")
			}
			return nil, check(c.User(), answers[0])
		},
		ServerVersion: "SSH-2.0-Cisco-1.25",
	}
	cfg.AddHostKey(s.hostKey)
	return cfg
}

// Start 开始监听并在后台接受连接
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.WithField("addr", ln.Addr().String()).Info("Simulated switch listening")

	sshCfg := s.sshConfig()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serveConn(conn, sshCfg)
			}()
		}
	}()
	return nil
}

func (s *Server) serveConn(conn net.Conn, sshCfg *ssh.ServerConfig) {
	s.mu.Lock()
	full := s.cfg.MaxConn > 0 && len(s.conns) >= s.cfg.MaxConn
	s.mu.Unlock()
	if full {
		s.log.WithField("remote", conn.RemoteAddr().String()).Warn("Max connections reached, rejecting")
		conn.Close()
		return
	}

	sconn, chans, reqs, err := ssh.NewServerConn(conn, sshCfg)
	if err != nil {
		s.log.WithError(err).Debug("SSH handshake failed")
		conn.Close()
		return
	}
	s.mu.Lock()
	s.conns[sconn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sconn)
		s.mu.Unlock()
		sconn.Close()
	}()

	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, creqs)
	}
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	for req := range reqs {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go func() {
				for r := range reqs {
					_ = r.Reply(r.Type == "window-change", nil)
				}
			}()
			s.runInteractiveShell(ch)
			return
		case "exec":
			_ = req.Reply(true, nil)
			var payload struct{ Command string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			c := newCLI(s.device, "")
			_, _ = io.WriteString(ch, ensureCRLF(c.handle(payload.Command)))
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// runInteractiveShell 行模式交互：回显输入，输出命令结果与提示符
func (s *Server) runInteractiveShell(ch ssh.Channel) {
	c := newCLI(s.device, s.cfg.EnablePassword)
	write := func(text string) bool {
		_, err := io.WriteString(ch, text)
		return err == nil
	}
	if !write("\r\n" + c.prompt()) {
		return
	}
	reader := bufio.NewReader(ch)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		secret := c.awaitingPw

		var out strings.Builder
		if !secret {
			out.WriteString(line)
		}
		out.WriteString("\r\n")
		out.WriteString(ensureCRLF(c.handle(line)))
		if c.closed {
			_ = write(out.String())
			return
		}
		if c.awaitingPw {
			out.WriteString("Password: ")
		} else {
			out.WriteString(c.prompt())
		}
		if !write(out.String()) {
			return
		}
	}
}

// Drop 断开所有已建立的连接，模拟设备重启或链路中断
func (s *Server) Drop() int {
	s.mu.Lock()
	conns := make([]*ssh.ServerConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	if len(conns) > 0 {
		s.log.WithField("count", len(conns)).Info("Dropped client connections")
	}
	return len(conns)
}

// Close 停止监听并断开所有连接
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.Drop()
	s.wg.Wait()
	return err
}

// loadOrCreateHostKey path 为空时生成临时 ed25519 密钥；否则加载或生成持久化的 RSA 2048 密钥
func loadOrCreateHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return ssh.NewSignerFromKey(priv)
	}
	if bs, err := os.ReadFile(path); err == nil {
		signer, err := ssh.ParsePrivateKey(bs)
		if err == nil {
			return signer, nil
		}
		logger.WithField("file", path).WithError(err).Warn("Host key parse failed, regenerating")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure host key dir: %w", err)
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write host key: %w", err)
	}
	return ssh.ParsePrivateKey(pemBytes)
}

// ensureCRLF 统一为 CRLF 换行
func ensureCRLF(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
