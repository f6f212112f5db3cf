package ssh

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Stream 交互式字节流
// ReadAvailable 非阻塞返回自上次读取以来收到的全部字节
type Stream interface {
	Write(p []byte) (int, error)
	ReadAvailable() []byte
	Writable() bool
	Close() error
}

// shellStream 基于 PTY Shell 的流实现，后台协程持续读取 stdout/stderr
type shellStream struct {
	session *ssh.Session
	stdin   io.WriteCloser

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	err    error
	once   sync.Once
}

func newShellStream(session *ssh.Session, stdin io.WriteCloser, stdout, stderr io.Reader) *shellStream {
	s := &shellStream{session: session, stdin: stdin}
	go s.pump(stdout)
	go s.pump(stderr)
	go func() {
		err := session.Wait()
		s.markClosed(err)
	}()
	return s
}

func (s *shellStream) pump(r io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			s.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				s.markClosed(err)
			} else {
				s.markClosed(nil)
			}
			return
		}
	}
}

func (s *shellStream) markClosed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.err = err
	}
}

func (s *shellStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, fmt.Errorf("%w: stream closed", ErrConnectionUnavailable)
	}
	n, err := s.stdin.Write(p)
	if err != nil {
		s.markClosed(err)
		return n, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	return n, nil
}

func (s *shellStream) ReadAvailable() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out
}

func (s *shellStream) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *shellStream) Close() error {
	var err error
	s.once.Do(func() {
		s.markClosed(nil)
		_ = s.stdin.Close()
		err = s.session.Close()
		if err == io.EOF {
			err = nil
		}
	})
	return err
}
