package handler

import (
	"github.com/gin-gonic/gin"

	"talklens-go/internal/middleware"
	"talklens-go/internal/model"
	"talklens-go/internal/service"
	"talklens-go/pkg/log"
)

// VoiceHandler 负责处理语音上传与转写回调的 API 请求。
type VoiceHandler struct {
	voiceService service.VoiceService
}

// NewVoiceHandler 创建一个新的 VoiceHandler 实例。
func NewVoiceHandler(voiceService service.VoiceService) *VoiceHandler {
	return &VoiceHandler{voiceService: voiceService}
}

// Transcribe 处理音频上传：存储音频并提交异步转写作业。
func (h *VoiceHandler) Transcribe(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		respondBadRequest(c, "缺少音频文件")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondBadRequest(c, "无法读取音频文件")
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	transcript, err := h.voiceService.Transcribe(
		c.Request.Context(), userID, fileHeader.Filename, contentType, file, fileHeader.Size)
	if err != nil {
		log.Errorf("提交语音转写失败: user=%s, err=%v", userID, err)
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"transcriptId": transcript.ID,
		"reportId":     transcript.ReportID,
	})
}

// CallbackRequest 定义了转写服务回调的请求体结构。
type CallbackRequest struct {
	JobID    string `json:"jobId" binding:"required"`
	Segments []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	} `json:"segments"`
}

// Callback 接收转写结果回调。该接口由转写服务调用，不做用户鉴权。
func (h *VoiceHandler) Callback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "无效的回调负载")
		return
	}

	segments := make(model.ChatTurnList, 0, len(req.Segments))
	for _, seg := range req.Segments {
		segments = append(segments, model.ChatTurn{
			Name:    seg.Speaker,
			Message: seg.Text,
		})
	}

	if err := h.voiceService.HandleCallback(c.Request.Context(), req.JobID, segments); err != nil {
		log.Errorf("处理转写回调失败: jobID=%s, err=%v", req.JobID, err)
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
