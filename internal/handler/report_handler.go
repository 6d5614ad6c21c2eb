package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"talklens-go/internal/middleware"
	"talklens-go/internal/service"
)

// ReportHandler 负责处理分析报告相关的 API 请求。
type ReportHandler struct {
	reportService service.ReportService
}

// NewReportHandler 创建一个新的 ReportHandler 实例。
func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// ListReports 返回当前用户的报告标题列表。
func (h *ReportHandler) ListReports(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	titles, err := h.reportService.GetUserReportTitles(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, titles)
}

// GetReport 返回一份完整报告，仅报告双方可见。
func (h *ReportHandler) GetReport(c *gin.Context) {
	reportID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "无效的报告 ID")
		return
	}
	userID := middleware.CurrentUserID(c)

	report, err := h.reportService.GetReportByID(uint(reportID), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// UpdateUserNameRequest 定义了说话人定稿 API 的请求体结构。
type UpdateUserNameRequest struct {
	SelectedSpeaker string `json:"selectedSpeaker" binding:"required"`
	OtherUserName   string `json:"otherUserName" binding:"required"`
}

// UpdateUserName 处理语音报告的说话人姓名定稿请求。
func (h *ReportHandler) UpdateUserName(c *gin.Context) {
	reportID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "无效的报告 ID")
		return
	}

	var req UpdateUserNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "无效的请求负载：说话人与对方姓名不能为空")
		return
	}
	userID := middleware.CurrentUserID(c)

	report, err := h.reportService.UpdateUserName(c.Request.Context(), uint(reportID), userID, req.SelectedSpeaker, req.OtherUserName)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}
