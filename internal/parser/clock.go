package parser

import "regexp"

// *10:01:02.123 UTC Mon Oct 19 2026
var clockRe = regexp.MustCompile(`[*.]?\d{1,2}:\d{2}:\d{2}(?:\.\d+)?\s+\S+.*\d{4}`)

// ParseClock 从 show clock 输出中提取时间行
func ParseClock(raw string) (string, bool) {
	for _, line := range splitLines(raw) {
		if m := clockRe.FindString(line); m != "" {
			return m, true
		}
	}
	return "", false
}
