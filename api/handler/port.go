package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/internal/service"
	"github.com/swappnet/swapp/pkg/logger"
	"github.com/swappnet/swapp/pkg/portrange"
)

// PortController 端口写操作
type PortController interface {
	SetAdminState(ctx context.Context, ids []string, verb model.Verb) (*service.ActionResult, error)
	SetAccessVlan(ctx context.Context, id string, vlan int) (*service.ActionResult, error)
	SetDescription(ctx context.Context, id, text string) (*service.ActionResult, error)
	NormalizePorts(ids []string) ([]string, error)
	MacTable(ctx context.Context, port string) ([]model.MacEntry, error)
	ArpTable(ctx context.Context) ([]model.ArpEntry, error)
}

// StatusSource 端口状态视图
type StatusSource interface {
	Current() model.Snapshot
	LastRefresh() (time.Time, error)
	History(limit int) []service.Change
	RefreshOnce(ctx context.Context) ([]service.Change, error)
}

// PortHandler 端口查询与操作
type PortHandler struct {
	ports  PortController
	status StatusSource
}

func NewPortHandler(ports PortController, status StatusSource) *PortHandler {
	return &PortHandler{ports: ports, status: status}
}

// BulkRequest 批量开关请求；Ports 与 Range 二选一
// Range 形如 "1-4,7"，配合 Prefix（默认 Gi1/0/）展开
type BulkRequest struct {
	Ports  []string `json:"ports"`
	Range  string   `json:"range"`
	Prefix string   `json:"prefix"`
	Action string   `json:"action" binding:"required"`
}

// VlanRequest access VLAN 设置请求
type VlanRequest struct {
	Vlan int `json:"vlan" binding:"required"`
}

// DescriptionRequest 描述设置请求；空串删除描述
type DescriptionRequest struct {
	Description string `json:"description"`
}

// ListPorts 返回当前快照，可按 oper/admin/vlan 过滤
// @Router /api/v1/ports [get]
func (h *PortHandler) ListPorts(c *gin.Context) {
	snap := h.status.Current()
	at, lastErr := h.status.LastRefresh()

	oper := strings.ToLower(c.Query("oper"))
	admin := strings.ToLower(c.Query("admin"))
	vlan, _ := strconv.Atoi(c.Query("vlan"))
	records := make([]model.PortRecord, 0, snap.Len())
	for _, rec := range snap.Records() {
		if oper != "" && string(rec.Oper) != oper {
			continue
		}
		if admin != "" && string(rec.Admin) != admin {
			continue
		}
		if vlan > 0 && rec.VlanID != vlan {
			continue
		}
		records = append(records, rec)
	}

	data := gin.H{
		"count":        len(records),
		"ports":        records,
		"refreshed_at": at,
	}
	if lastErr != nil {
		data["last_error"] = lastErr.Error()
	}
	success(c, "获取端口状态成功", data)
}

// GetPort 单个端口；路径中接口名的 "/" 以 "_" 代替
// @Router /api/v1/ports/{port} [get]
func (h *PortHandler) GetPort(c *gin.Context) {
	ids, err := h.ports.NormalizePorts([]string{c.Param("port")})
	if err != nil {
		fail(c, err)
		return
	}
	rec, ok := h.status.Current().Get(ids[0])
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "PORT_NOT_FOUND", Message: "端口不存在: " + ids[0]})
		return
	}
	success(c, "获取端口成功", rec)
}

// MacTable 端口学到的 MAC 地址，实时查询设备
// @Router /api/v1/ports/{port}/macs [get]
func (h *PortHandler) MacTable(c *gin.Context) {
	entries, err := h.ports.MacTable(c.Request.Context(), c.Param("port"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "获取 MAC 地址表成功", gin.H{"count": len(entries), "entries": entries})
}

// ArpTable 设备 ARP 表
// @Router /api/v1/arp [get]
func (h *PortHandler) ArpTable(c *gin.Context) {
	entries, err := h.ports.ArpTable(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "获取 ARP 表成功", gin.H{"count": len(entries), "entries": entries})
}

// Changes 最近的端口变化
// @Router /api/v1/ports/changes [get]
func (h *PortHandler) Changes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	changes := h.status.History(limit)
	success(c, "获取端口变化成功", gin.H{"count": len(changes), "changes": changes})
}

// Refresh 立即刷新一次并返回变化
// @Router /api/v1/ports/refresh [post]
func (h *PortHandler) Refresh(c *gin.Context) {
	changes, err := h.status.RefreshOnce(c.Request.Context())
	if err != nil {
		logger.WithField("error", err).Warn("Manual refresh failed")
		fail(c, err)
		return
	}
	if changes == nil {
		changes = []service.Change{}
	}
	success(c, "刷新成功", gin.H{"changes": changes, "count": h.status.Current().Len()})
}

// SetState 开启/关闭单个端口
// @Router /api/v1/ports/{port}/{action} [post]
func (h *PortHandler) SetState(c *gin.Context) {
	verb, err := service.ParseVerb(c.Param("action"))
	if err != nil {
		badRequest(c, "INVALID_ACTION", "不支持的操作: "+c.Param("action"))
		return
	}
	res, err := h.ports.SetAdminState(c.Request.Context(), []string{c.Param("port")}, verb)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "端口操作成功", res)
}

// Bulk 批量开启/关闭端口
// @Router /api/v1/ports/bulk [post]
func (h *PortHandler) Bulk(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_PARAMS", "请求参数无效: "+err.Error())
		return
	}
	verb, err := service.ParseVerb(req.Action)
	if err != nil {
		badRequest(c, "INVALID_ACTION", "不支持的操作: "+req.Action)
		return
	}
	ids := req.Ports
	if strings.TrimSpace(req.Range) != "" {
		nums, err := portrange.Expand(req.Range)
		if err != nil {
			badRequest(c, "INVALID_RANGE", err.Error())
			return
		}
		prefix := req.Prefix
		if prefix == "" {
			prefix = "Gi1/0/"
		}
		for _, n := range nums {
			ids = append(ids, prefix+strconv.Itoa(n))
		}
	}
	if len(ids) == 0 {
		badRequest(c, "INVALID_PARAMS", "ports 与 range 不能同时为空")
		return
	}
	res, err := h.ports.SetAdminState(c.Request.Context(), ids, verb)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "批量操作成功", res)
}

// SetVlan 设置 access VLAN
// @Router /api/v1/ports/{port}/vlan [put]
func (h *PortHandler) SetVlan(c *gin.Context) {
	var req VlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_PARAMS", "请求参数无效: "+err.Error())
		return
	}
	res, err := h.ports.SetAccessVlan(c.Request.Context(), c.Param("port"), req.Vlan)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "VLAN 设置成功", res)
}

// SetDescription 设置端口描述
// @Router /api/v1/ports/{port}/description [put]
func (h *PortHandler) SetDescription(c *gin.Context) {
	var req DescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_PARAMS", "请求参数无效: "+err.Error())
		return
	}
	res, err := h.ports.SetDescription(c.Request.Context(), c.Param("port"), req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "描述设置成功", res)
}
