package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/swappnet/swapp/api/handler"
	"github.com/swappnet/swapp/internal/config"
	"github.com/swappnet/swapp/internal/service"
	"github.com/swappnet/swapp/pkg/logger"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, engine *service.Engine) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	portHandler := handler.NewPortHandler(engine.Ports, engine.Poller)
	queueHandler := handler.NewQueueHandler(engine.Store, engine.DeviceKey, cfg.Queue.PortSeparator)
	healthHandler := handler.NewHealthHandler(engine.DeviceKey, engine.Supervisor, engine.Poller, engine.Store)
	logsHandler := handler.NewLogsHandler(cfg.Log.FilePath)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "swapp",
			"version": "1.0.0",
			"device":  engine.DeviceKey,
		})
	})

	if engine.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(engine.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)
		v1.GET("/logs", logsHandler.TailLogs)
		v1.GET("/arp", portHandler.ArpTable)

		ports := v1.Group("/ports")
		{
			ports.GET("", portHandler.ListPorts)
			ports.GET("/changes", portHandler.Changes)
			ports.POST("/refresh", portHandler.Refresh)
			ports.POST("/bulk", portHandler.Bulk)
			ports.GET("/:port", portHandler.GetPort)
			ports.GET("/:port/macs", portHandler.MacTable)
			ports.POST("/:port/:action", portHandler.SetState)
			ports.PUT("/:port/vlan", portHandler.SetVlan)
			ports.PUT("/:port/description", portHandler.SetDescription)
		}

		queue := v1.Group("/queue")
		{
			queue.POST("", queueHandler.Enqueue)
			queue.GET("", queueHandler.ListPending)
			queue.GET("/logs", queueHandler.Logs)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = xid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件；4xx/5xx 使用 Warn/Error 级别
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"duration":   time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		switch {
		case status >= 500:
			entry.Error("HTTP Request")
		case status >= 400:
			entry.Warn("HTTP Request")
		default:
			entry.Debug("HTTP Request")
		}
	}
}
