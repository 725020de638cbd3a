package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/langchou/fleetgazer/internal/prediction"
)

// RequestPrediction 发起预测，已结束的预测会重新开始一轮
// POST /api/vehicles/:id/predictions/:kind?wait=true
func (h *Handler) RequestPrediction(c *gin.Context) {
	kind, err := prediction.ParseKind(c.Param("kind"))
	if err != nil {
		h.abortWithError(c, "Invalid prediction kind", err)
		return
	}

	job, err := h.predictions.Request(c.Param("id"), kind)
	if err != nil {
		h.abortWithError(c, "Failed to request prediction", err)
		return
	}

	h.respondJob(c, job)
}

// GetPrediction 查询预测结果
func (h *Handler) GetPrediction(c *gin.Context) {
	kind, err := prediction.ParseKind(c.Param("kind"))
	if err != nil {
		h.abortWithError(c, "Invalid prediction kind", err)
		return
	}

	job, err := h.predictions.Get(c.Param("id"), kind)
	if err != nil {
		h.abortWithError(c, "Failed to get prediction", err)
		return
	}

	h.respondJob(c, job)
}

// CancelPrediction 取消进行中的预测
func (h *Handler) CancelPrediction(c *gin.Context) {
	kind, err := prediction.ParseKind(c.Param("kind"))
	if err != nil {
		h.abortWithError(c, "Invalid prediction kind", err)
		return
	}

	job, err := h.predictions.Cancel(c.Param("id"), kind)
	if err != nil {
		h.abortWithError(c, "Failed to cancel prediction", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job.Status()})
}

// respondJob 输出任务快照；wait=true 时等待本轮结束或请求结束
// 未结束的任务返回 202
func (h *Handler) respondJob(c *gin.Context, job *prediction.Job) {
	status := job.Status()
	if c.Query("wait") == "true" {
		status, _ = h.predictions.Await(c.Request.Context(), job)
	}

	code := http.StatusOK
	if !status.Done() {
		code = http.StatusAccepted
	}
	c.JSON(code, gin.H{"data": status})
}
