package ssh

import "errors"

var (
	// ErrConnectionUnavailable 流不可写或连接未建立
	ErrConnectionUnavailable = errors.New("connection unavailable")
	// ErrCommandTimeout 单条命令在超时时间内既无提示符也未静默完成
	ErrCommandTimeout = errors.New("command timed out")
)
