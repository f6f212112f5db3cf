package handler

import (
	"bufio"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// LogsHandler 运行日志查询（仅 log.output 包含 file 时可用）
type LogsHandler struct {
	path string
}

func NewLogsHandler(path string) *LogsHandler { return &LogsHandler{path: strings.TrimSpace(path)} }

// TailLogs 返回日志文件末尾 N 行，可按关键字 q、级别 level、接口 port 过滤
// @Router /api/v1/logs [get]
func (h *LogsHandler) TailLogs(c *gin.Context) {
	if h.path == "" {
		badRequest(c, "LOG_PATH_EMPTY", "日志路径未配置")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var filters []string
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filters = append(filters, strings.ToLower(q))
	}
	if port := strings.TrimSpace(c.Query("port")); port != "" {
		filters = append(filters, strings.ToLower(port))
	}
	level := strings.ToLower(strings.TrimSpace(c.Query("level")))

	lines, err := tailLines(h.path, limit, func(ln string) bool {
		lc := strings.ToLower(ln)
		for _, f := range filters {
			if !strings.Contains(lc, f) {
				return false
			}
		}
		// 同时适配 text 与 json 两种格式
		if level != "" && !strings.Contains(lc, "level="+level) && !strings.Contains(lc, `"level":"`+level+`"`) {
			return false
		}
		return true
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "READ_FAILED", Message: "读取日志失败: " + err.Error()})
		return
	}
	success(c, "获取日志成功", gin.H{"path": h.path, "count": len(lines), "lines": lines})
}

// tailLines 单次扫描，环形缓冲保留最后 limit 条匹配行
func tailLines(path string, limit int, keep func(string) bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, limit)
	n := 0
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for s.Scan() {
		ln := s.Text()
		if !keep(ln) {
			continue
		}
		ring[n%limit] = ln
		n++
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if n <= limit {
		return ring[:n], nil
	}
	start := n % limit
	return append(ring[start:], ring[:start]...), nil
}
