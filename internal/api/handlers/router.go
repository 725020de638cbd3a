package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/internal/ingest"
	"github.com/langchou/fleetgazer/internal/prediction"
	"github.com/langchou/fleetgazer/internal/service"
	"github.com/langchou/fleetgazer/internal/state"
	"github.com/langchou/fleetgazer/pkg/metrics"
	"github.com/langchou/fleetgazer/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger      *zap.Logger
	fleet       *service.FleetService
	predictions *prediction.Service
	wsHub       *ws.Hub
	upgrader    websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	fleet *service.FleetService,
	predictions *prediction.Service,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:      logger,
		fleet:       fleet,
		predictions: predictions,
		wsHub:       wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(metricsMiddleware())

	// API 路由
	api := r.Group("/api")
	{
		// 车辆
		api.GET("/vehicles", h.ListVehicles)
		api.POST("/vehicles/load", h.LoadFleet)
		api.GET("/vehicles/selected", h.GetSelectedVehicle)
		api.GET("/vehicles/:id", h.GetVehicle)
		api.PUT("/vehicles/:id", h.UpdateVehicle)
		api.DELETE("/vehicles/:id", h.RemoveVehicle)
		api.GET("/vehicles/:id/locations", h.GetVehicleLocations)

		// 预测
		api.POST("/vehicles/:id/predictions/:kind", h.RequestPrediction)
		api.GET("/vehicles/:id/predictions/:kind", h.GetPrediction)
		api.DELETE("/vehicles/:id/predictions/:kind", h.CancelPrediction)

		// 统计
		api.GET("/stats", h.GetStats)

		// 车载遥测
		api.POST("/telemetry", h.IngestTelemetry)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)

	// Prometheus
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	if !client.Register() {
		conn.Close()
		return
	}

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"vehicles":   h.fleet.Summary().Total,
		"ws_clients": h.wsHub.ClientCount(),
	})
}

// metricsMiddleware 记录请求数和耗时，路由取注册时的模板
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// statusFor 把业务错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrDecode),
		errors.Is(err, state.ErrValidation),
		errors.Is(err, prediction.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrNotFound),
		errors.Is(err, prediction.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, prediction.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, ingest.ErrBackpressure):
		return http.StatusTooManyRequests
	case errors.Is(err, ingest.ErrStopped),
		errors.Is(err, prediction.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// abortWithError 输出错误，5xx 记录日志
func (h *Handler) abortWithError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
