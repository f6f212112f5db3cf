package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/swappnet/swapp/internal/parser"
	"github.com/swappnet/swapp/pkg/ssh"
)

var (
	// ErrConnectionUnavailable 会话无法建立或已断开（重连已耗尽）
	ErrConnectionUnavailable = ssh.ErrConnectionUnavailable
	// ErrCommandTimeout 单条命令超时
	ErrCommandTimeout = ssh.ErrCommandTimeout
	// ErrCommandRejected 设备输出中命中错误特征
	ErrCommandRejected = errors.New("command rejected by device")
	// ErrParseIncomplete 状态输出无法识别
	ErrParseIncomplete = parser.ErrParseIncomplete
	// ErrQueueItemMalformed 队列条目字段无法识别，直接丢弃
	ErrQueueItemMalformed = errors.New("queue item malformed")
	// ErrQueueItemFailed 队列条目重试耗尽
	ErrQueueItemFailed = errors.New("queue item failed")
	// ErrInvalidArgument 调用参数非法（HTTP 400）
	ErrInvalidArgument = errors.New("invalid argument")
)

// CommandRejectedError 携带设备原始输出的拒绝错误
type CommandRejectedError struct {
	Commands   []string
	Signatures []string
	Output     string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrCommandRejected, strings.Join(e.Signatures, "; "), strings.Join(e.Commands, " | "))
}

func (e *CommandRejectedError) Unwrap() error { return ErrCommandRejected }

// rejected 由执行结果构造拒绝错误；结果成功时返回 nil
func rejected(commands []string, res *ssh.CommandResult) error {
	if res == nil || res.Succeeded {
		return nil
	}
	return &CommandRejectedError{Commands: commands, Signatures: res.ErrorSignatures, Output: res.RawOutput}
}

func invalidArg(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
