package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"talklens-go/internal/middleware"
	"talklens-go/internal/service"
	"talklens-go/pkg/log"
)

// RoomHandler 负责处理聊天室相关的 API 请求。
type RoomHandler struct {
	chatService service.ChatService
}

// NewRoomHandler 创建一个新的 RoomHandler 实例。
func NewRoomHandler(chatService service.ChatService) *RoomHandler {
	return &RoomHandler{chatService: chatService}
}

// CreateRoomRequest 定义了创建聊天室 API 的请求体结构。
type CreateRoomRequest struct {
	MemberIDs []string `json:"memberIds"`
	GroupChat bool     `json:"groupChat"`
}

// CreateRoom 处理创建聊天室请求。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "无效的请求负载")
		return
	}
	userID := middleware.CurrentUserID(c)

	room, err := h.chatService.CreateRoom(c.Request.Context(), userID, req.MemberIDs, req.GroupChat)
	if err != nil {
		log.Errorf("创建聊天室失败: user=%s, err=%v", userID, err)
		respondError(c, err)
		return
	}
	respondOK(c, room)
}

// ListRooms 返回当前用户的聊天室摘要列表。
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	summaries, err := h.chatService.GetChatRooms(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, summaries)
}

// JoinRoom 处理按 UUID 加入聊天室请求。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomUUID := c.Param("uuid")
	userID := middleware.CurrentUserID(c)

	room, err := h.chatService.JoinRoomByUUID(c.Request.Context(), roomUUID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, room)
}

// LeaveRoom 处理退出聊天室请求。
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomUUID := c.Param("uuid")
	userID := middleware.CurrentUserID(c)

	if err := h.chatService.LeaveRoom(roomUUID, userID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// History 返回分页的历史消息，beforeId=0 表示最新一页。
func (h *RoomHandler) History(c *gin.Context) {
	roomUUID := c.Param("uuid")
	userID := middleware.CurrentUserID(c)

	beforeID, _ := strconv.ParseUint(c.DefaultQuery("beforeId", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.chatService.GetHistory(roomUUID, userID, uint(beforeID), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, messages)
}

// AllMessages 返回房间全量消息，仅参与者可见。
func (h *RoomHandler) AllMessages(c *gin.Context) {
	roomUUID := c.Param("uuid")
	userID := middleware.CurrentUserID(c)

	messages, err := h.chatService.GetAllMessagesByRoomUUID(roomUUID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, messages)
}

// SendMessageRequest 定义了发送消息 API 的请求体结构。
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage 处理 HTTP 形式的消息发送（WebSocket 的兜底通道）。
func (h *RoomHandler) SendMessage(c *gin.Context) {
	roomUUID := c.Param("uuid")
	userID := middleware.CurrentUserID(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "消息内容不能为空")
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), roomUUID, userID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, msg)
}

// MarkReadRequest 定义了更新已读位点 API 的请求体结构。
type MarkReadRequest struct {
	LastReadMessageID uint `json:"lastReadMessageId"`
}

// MarkRead 处理已读位点更新请求，可重复调用。
func (h *RoomHandler) MarkRead(c *gin.Context) {
	roomUUID := c.Param("uuid")
	userID := middleware.CurrentUserID(c)

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "无效的请求负载")
		return
	}

	if err := h.chatService.MarkRoomAsRead(c.Request.Context(), roomUUID, userID, req.LastReadMessageID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// EndChat 处理按 UUID 结束聊天的请求，返回分析报告 ID。
func (h *RoomHandler) EndChat(c *gin.Context) {
	roomUUID := c.Param("uuid")
	userID := middleware.CurrentUserID(c)

	reportID, err := h.chatService.EndChat(c.Request.Context(), roomUUID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"reportId": reportID})
}

// EndChatByID 处理按数字主键结束聊天的请求。
func (h *RoomHandler) EndChatByID(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "无效的房间 ID")
		return
	}
	userID := middleware.CurrentUserID(c)

	reportID, err := h.chatService.EndChatByRoomID(c.Request.Context(), uint(roomID), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"reportId": reportID})
}
