package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 命令回显的首尾若干行
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
}

// ParseOutputLines 提取首尾各 maxLines 行；总行数不超过 maxLines 时只填 HeadLines
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.Trim(output, "\n")
	if output == "" {
		return OutputLines{}
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return OutputLines{HeadLines: lines}
	}
	head := append([]string(nil), lines[:maxLines]...)
	tailStart := len(lines) - maxLines
	if tailStart < maxLines {
		tailStart = maxLines
	}
	return OutputLines{HeadLines: head, TailLines: append([]string(nil), lines[tailStart:]...)}
}

// String 单行形式，用于日志
func (o OutputLines) String() string {
	var parts []string
	if len(o.HeadLines) > 0 {
		parts = append(parts, "head-lines: ["+strings.Join(o.HeadLines, " ⟩ ")+"]")
	}
	if len(o.TailLines) > 0 {
		parts = append(parts, "tail-lines: ["+strings.Join(o.TailLines, " ⟩ ")+"]")
	}
	return strings.Join(parts, ", ")
}

// DebugCommandOutput 在 debug 级别记录命令回显的首尾行
func DebugCommandOutput(entry *logrus.Entry, command string, output string, maxLines int) {
	if entry == nil {
		entry = logrus.NewEntry(GetLogger())
	}
	if !entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	lines := ParseOutputLines(output, maxLines)
	if len(lines.HeadLines) == 0 {
		return
	}
	entry.Debugf("Command echo [%s]: %s", command, lines.String())
}
