package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/internal/seed"
)

// ListVehicles 获取车辆列表
// GET /api/vehicles?q=truck
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles := h.fleet.Vehicles(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// GetVehicle 获取车辆详情
func (h *Handler) GetVehicle(c *gin.Context) {
	vehicle, err := h.fleet.Vehicle(c.Param("id"))
	if err != nil {
		h.abortWithError(c, "Failed to get vehicle", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// GetVehicleLocations 车辆历史轨迹，按时间先后排列
// GET /api/vehicles/:id/locations?limit=20
func (h *Handler) GetVehicleLocations(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	locations, err := h.fleet.Locations(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.abortWithError(c, "Failed to get vehicle locations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": locations})
}

// GetSelectedVehicle 默认选中的车辆，车队为空时返回 null
func (h *Handler) GetSelectedVehicle(c *gin.Context) {
	vehicle, ok := h.fleet.Selected()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// UpdateVehicle 增量更新车辆
// PUT /api/vehicles/:id
// 请求体只需包含要修改的字段，路径中的 ID 优先于请求体中的 id
func (h *Handler) UpdateVehicle(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	vehicle, err := h.fleet.Update(c.Request.Context(), c.Param("id"), raw)
	if err != nil {
		h.abortWithError(c, "Failed to update vehicle", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// RemoveVehicle 删除车辆
func (h *Handler) RemoveVehicle(c *gin.Context) {
	id := c.Param("id")
	if err := h.fleet.Remove(c.Request.Context(), id); err != nil {
		h.abortWithError(c, "Failed to remove vehicle", err)
		return
	}

	h.logger.Info("Vehicle removed via API", zap.String("vehicle_id", id))
	c.JSON(http.StatusOK, gin.H{
		"message":    "Vehicle removed",
		"vehicle_id": id,
	})
}

// LoadFleet 整体替换车队
// POST /api/vehicles/load
// 请求体为车辆数组，或 {"vehicles": [...]}
func (h *Handler) LoadFleet(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fleet payload"})
		return
	}

	vehicles, err := seed.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.fleet.Load(c.Request.Context(), vehicles); err != nil {
		h.abortWithError(c, "Failed to load fleet", err)
		return
	}

	h.logger.Info("Fleet loaded via API", zap.Int("vehicles", len(vehicles)))
	c.JSON(http.StatusOK, gin.H{"data": h.fleet.Vehicles("")})
}

// GetStats 仪表盘汇总
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.fleet.Summary()})
}

// IngestTelemetry 接收车载遥测数据
// POST /api/telemetry
func (h *Handler) IngestTelemetry(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	vehicle, err := h.fleet.IngestTelemetry(c.Request.Context(), raw)
	if err != nil {
		h.abortWithError(c, "Failed to ingest telemetry", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}
