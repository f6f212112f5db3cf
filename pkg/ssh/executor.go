package ssh

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/swappnet/swapp/internal/util"
)

// DefaultPromptPattern 匹配 Cisco 风格提示符：Switch>、Switch#、Switch(config-if)#
const DefaultPromptPattern = `^[\w.\-/\[\]]+(?:\([\w.\-/ ]+\))?[#>]\s*$`

// 步骤完成方式
const (
	CompletionPrompt = "prompt"
	CompletionQuiet  = "quiet"
)

// AutoInteraction 自动交互对
// 当输出包含 ExpectOutput（大小写不敏感）时，自动发送 AutoSend
type AutoInteraction struct {
	ExpectOutput string
	AutoSend     string
}

// ExecOptions 命令序列执行参数
type ExecOptions struct {
	PerCommandTimeout time.Duration
	PromptPattern     *regexp.Regexp
	// QuietWindow 已收到数据后持续无新数据的时长，视为隐式完成
	QuietWindow      time.Duration
	PollInterval     time.Duration
	ErrorTokens      []string
	AutoInteractions []AutoInteraction
	LineEnding       string
}

// DefaultExecOptions 默认执行参数
func DefaultExecOptions() ExecOptions {
	return ExecOptions{
		PerCommandTimeout: 10 * time.Second,
		PromptPattern:     regexp.MustCompile(DefaultPromptPattern),
		QuietWindow:       2 * time.Second,
		PollInterval:      25 * time.Millisecond,
		ErrorTokens: []string{
			"% Invalid input",
			"% Incomplete command",
			"% Ambiguous command",
			"% Unknown command",
			"% Bad mask",
			"% Error",
		},
		LineEnding: "\n",
	}
}

func (o ExecOptions) withDefaults() ExecOptions {
	d := DefaultExecOptions()
	if o.PerCommandTimeout <= 0 {
		o.PerCommandTimeout = d.PerCommandTimeout
	}
	if o.PromptPattern == nil {
		o.PromptPattern = d.PromptPattern
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.LineEnding == "" {
		o.LineEnding = d.LineEnding
	}
	return o
}

// StepResult 单条命令的执行结果
type StepResult struct {
	Command    string        `json:"command"`
	Output     string        `json:"output"`
	Raw        string        `json:"-"`
	Completion string        `json:"completion"`
	Prompt     string        `json:"prompt,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// CommandResult 命令序列执行结果
type CommandResult struct {
	RawOutput       string        `json:"raw_output"`
	Succeeded       bool          `json:"succeeded"`
	ErrorSignatures []string      `json:"error_signatures,omitempty"`
	Steps           []*StepResult `json:"steps"`
	Duration        time.Duration `json:"duration"`
}

// StepOutput 返回第 i 条命令的清洗后输出，越界返回空串
func (r *CommandResult) StepOutput(i int) string {
	if r == nil || i < 0 || i >= len(r.Steps) {
		return ""
	}
	return r.Steps[i].Output
}

// LastPrompt 返回最后一条命令结束时的提示符
func (r *CommandResult) LastPrompt() string {
	if r == nil || len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[len(r.Steps)-1].Prompt
}

// RunSequence 在交互式流上顺序执行命令
// 每条命令以提示符、静默窗口或超时三者之一结束；全部执行后扫描错误特征
// 中途失败不回滚已执行的步骤
func RunSequence(ctx context.Context, stream Stream, commands []string, opts ExecOptions) (*CommandResult, error) {
	opts = opts.withDefaults()
	start := time.Now()
	result := &CommandResult{Succeeded: true}
	if len(commands) == 0 {
		return result, nil
	}

	var raw []string
	var runErr error
	for _, cmd := range commands {
		step, err := runStep(ctx, stream, cmd, opts)
		if step != nil {
			result.Steps = append(result.Steps, step)
			raw = append(raw, step.Raw)
		}
		if err != nil {
			runErr = err
			break
		}
	}

	result.RawOutput = strings.Join(raw, "\n")
	result.ErrorSignatures = ScanErrors(result.RawOutput, opts.ErrorTokens)
	result.Succeeded = runErr == nil && len(result.ErrorSignatures) == 0
	result.Duration = time.Since(start)
	return result, runErr
}

func runStep(ctx context.Context, stream Stream, cmd string, opts ExecOptions) (*StepResult, error) {
	start := time.Now()
	if stream == nil || !stream.Writable() {
		return nil, fmt.Errorf("%w: stream not writable", ErrConnectionUnavailable)
	}
	// 丢弃上一步残留的字节，保证输出与命令对齐
	_ = stream.ReadAvailable()
	if _, err := stream.Write([]byte(cmd + opts.LineEnding)); err != nil {
		if errors.Is(err, ErrConnectionUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}

	var acc []byte
	var text string
	var lastData time.Time
	answered := make([]bool, len(opts.AutoInteractions))
	deadline := start.Add(opts.PerCommandTimeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	finish := func(completion, prompt string) *StepResult {
		return &StepResult{
			Command:    cmd,
			Output:     cleanOutput(text, cmd, prompt),
			Raw:        text,
			Completion: completion,
			Prompt:     prompt,
			Duration:   time.Since(start),
		}
	}

	for {
		chunk := stream.ReadAvailable()
		if len(chunk) > 0 {
			acc = append(acc, chunk...)
			lastData = time.Now()
			text = Sanitize(util.EnsureUTF8Bytes(acc))

			if prompt, ok := matchPrompt(text, opts.PromptPattern); ok {
				return finish(CompletionPrompt, prompt), nil
			}
			if sent, err := autoRespond(stream, text, opts, answered); err != nil {
				return finish("", ""), err
			} else if sent {
				lastData = time.Now()
			}
		} else {
			if !lastData.IsZero() && opts.QuietWindow > 0 && time.Since(lastData) >= opts.QuietWindow {
				return finish(CompletionQuiet, ""), nil
			}
			if !stream.Writable() {
				return finish("", ""), fmt.Errorf("%w: stream closed while waiting for %q", ErrConnectionUnavailable, cmd)
			}
		}

		if time.Now().After(deadline) {
			return finish("", ""), fmt.Errorf("%w: %q after %s", ErrCommandTimeout, cmd, opts.PerCommandTimeout)
		}

		select {
		case <-ctx.Done():
			return finish("", ""), ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForPrompt 不写入任何内容，读取登录横幅直到出现提示符或静默
// 流关闭返回 ErrConnectionUnavailable，超时返回 ErrCommandTimeout
func WaitForPrompt(ctx context.Context, stream Stream, opts ExecOptions) (string, error) {
	opts = opts.withDefaults()
	if stream == nil {
		return "", fmt.Errorf("%w: no stream", ErrConnectionUnavailable)
	}
	var acc []byte
	var lastData time.Time
	deadline := time.Now().Add(opts.PerCommandTimeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		if chunk := stream.ReadAvailable(); len(chunk) > 0 {
			acc = append(acc, chunk...)
			lastData = time.Now()
			if prompt, ok := matchPrompt(Sanitize(util.EnsureUTF8Bytes(acc)), opts.PromptPattern); ok {
				return prompt, nil
			}
		} else {
			if !lastData.IsZero() && opts.QuietWindow > 0 && time.Since(lastData) >= opts.QuietWindow {
				return "", nil
			}
			if !stream.Writable() {
				return "", fmt.Errorf("%w: stream closed before prompt", ErrConnectionUnavailable)
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: no prompt after %s", ErrCommandTimeout, opts.PerCommandTimeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// autoRespond 对尚未应答的交互提示写入自动回复
func autoRespond(stream Stream, text string, opts ExecOptions, answered []bool) (bool, error) {
	lower := strings.ToLower(text)
	sent := false
	for i, ai := range opts.AutoInteractions {
		if answered[i] || ai.ExpectOutput == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(ai.ExpectOutput)) {
			continue
		}
		answered[i] = true
		if _, err := stream.Write([]byte(ai.AutoSend + opts.LineEnding)); err != nil {
			if errors.Is(err, ErrConnectionUnavailable) {
				return sent, err
			}
			return sent, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
		}
		sent = true
	}
	return sent, nil
}

// matchPrompt 仅当输出中已出现换行且最后一行匹配提示符时视为完成
func matchPrompt(text string, re *regexp.Regexp) (string, bool) {
	idx := strings.LastIndex(text, "\n")
	if idx < 0 {
		return "", false
	}
	last := strings.TrimSpace(text[idx+1:])
	if last == "" || !re.MatchString(last) {
		return "", false
	}
	return last, true
}

// cleanOutput 去除命令回显与结尾提示符
func cleanOutput(text, cmd, prompt string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && strings.TrimSpace(cmd) != "" &&
		strings.HasSuffix(strings.TrimSpace(lines[0]), strings.TrimSpace(cmd)) {
		lines = lines[1:]
	}
	if prompt != "" && len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == prompt {
		lines = lines[:len(lines)-1]
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// ScanErrors 大小写不敏感地扫描错误特征，按 tokens 顺序返回命中项
func ScanErrors(output string, tokens []string) []string {
	if output == "" {
		return nil
	}
	lower := strings.ToLower(output)
	var hits []string
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(tok)) {
			hits = append(hits, tok)
		}
	}
	return hits
}

// Sanitize 移除 ANSI 转义序列与不可见控制符，统一换行为 \n
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var b strings.Builder
	b.Grow(len(s))
	skip := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if skip {
			// CSI 序列以字母结尾
			if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
				skip = false
			}
			continue
		}
		if ch == 0x1b {
			skip = true
			continue
		}
		if ch < 0x20 && ch != '\n' && ch != '\t' {
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
