package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swappnet/swapp/internal/service"
)

// SessionInfo 会话状态视图
type SessionInfo interface {
	State() service.SessionState
	LastVerified() time.Time
}

// HealthHandler 健康检查
type HealthHandler struct {
	deviceKey string
	session   SessionInfo
	status    StatusSource
	store     service.Store
}

func NewHealthHandler(deviceKey string, session SessionInfo, status StatusSource, store service.Store) *HealthHandler {
	return &HealthHandler{deviceKey: deviceKey, session: session, status: status, store: store}
}

// Health 服务进程始终返回 200；会话断开时 status 为 degraded
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	state := h.session.State()
	refreshedAt, refreshErr := h.status.LastRefresh()

	storeStatus := "ok"
	if hc, ok := h.store.(service.HealthChecker); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := hc.Health(ctx); err != nil {
			storeStatus = err.Error()
		}
	}

	overall := "healthy"
	if state != service.StateConnected || storeStatus != "ok" {
		overall = "degraded"
	}
	data := gin.H{
		"status":        overall,
		"device":        h.deviceKey,
		"session":       state.String(),
		"last_verified": h.session.LastVerified(),
		"refreshed_at":  refreshedAt,
		"ports":         h.status.Current().Len(),
		"store":         storeStatus,
		"timestamp":     time.Now(),
	}
	if refreshErr != nil {
		data["refresh_error"] = refreshErr.Error()
	}
	c.JSON(http.StatusOK, data)
}
