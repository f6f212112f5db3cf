package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swappnet/swapp/internal/service"
	"github.com/swappnet/swapp/pkg/logger"
)

// QueueHandler 外部命令队列的写入与查询
type QueueHandler struct {
	store     service.Store
	deviceKey string
	separator string
}

func NewQueueHandler(store service.Store, deviceKey, separator string) *QueueHandler {
	if separator == "" {
		separator = "_"
	}
	return &QueueHandler{store: store, deviceKey: deviceKey, separator: separator}
}

// EnqueueRequest 入队请求：port 使用 "_" 代替 "/"（如 Gi1_0_5），command 为 enable/disable
type EnqueueRequest struct {
	Port    string `json:"port" binding:"required"`
	Command string `json:"command" binding:"required"`
}

// Enqueue 写入一条队列命令
// @Router /api/v1/queue [post]
func (h *QueueHandler) Enqueue(c *gin.Context) {
	enq, ok := h.store.(service.Enqueuer)
	if !ok {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Code: "ENQUEUE_UNSUPPORTED", Message: "当前存储不支持写入队列"})
		return
	}
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_PARAMS", "请求参数无效: "+err.Error())
		return
	}
	if _, err := service.ParseVerb(req.Command); err != nil {
		badRequest(c, "INVALID_ACTION", "不支持的命令: "+req.Command)
		return
	}
	if _, err := service.TranslatePortToken(req.Port, h.separator); err != nil {
		badRequest(c, "INVALID_PORT", err.Error())
		return
	}
	id, err := enq.Enqueue(c.Request.Context(), h.deviceKey, req.Port, req.Command)
	if err != nil {
		fail(c, err)
		return
	}
	logger.WithFields(logrus.Fields{"id": id, "port": req.Port, "command": req.Command}).Info("Queue item accepted")
	success(c, "入队成功", gin.H{"id": id})
}

// ListPending 待处理的队列条目
// @Router /api/v1/queue [get]
func (h *QueueHandler) ListPending(c *gin.Context) {
	items, err := h.store.ListPending(c.Request.Context(), h.deviceKey)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "获取队列成功", gin.H{"count": len(items), "items": items})
}

// Logs 最近的队列应用日志
// @Router /api/v1/queue/logs [get]
func (h *QueueHandler) Logs(c *gin.Context) {
	reader, ok := h.store.(service.LogReader)
	if !ok {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Code: "LOGS_UNSUPPORTED", Message: "当前存储不支持查询日志"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	logs, err := reader.RecentLogs(c.Request.Context(), h.deviceKey, limit)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "获取队列日志成功", gin.H{"count": len(logs), "logs": logs})
}
