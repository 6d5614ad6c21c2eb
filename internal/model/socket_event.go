package model

import "encoding/json"

// 推送事件类型。下行事件由服务端广播给各网关实例再投递到客户端。
const (
	EventSendMessage     = "SEND_MESSAGE"
	EventNewMessage      = "NEW_MESSAGE"
	EventMessageRead     = "MESSAGE_READ"
	EventChatRoomUpdate  = "CHAT_ROOM_UPDATE"
	EventChatEnd         = "CHAT_END"
	EventUserJoined      = "USER_JOINED"
	EventReportCompleted = "REPORT_COMPLETED"
	EventTokenExpired    = "TOKEN_EXPIRED"
)

// SocketEvent 是 WebSocket 帧的统一信封。
type SocketEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// MessagePayload 是 NEW_MESSAGE 事件与消息历史接口的共用负载。
type MessagePayload struct {
	MessageID  uint      `json:"messageId"`
	RoomUUID   string    `json:"roomUuid"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	SentAt     LocalTime `json:"sentAt"`
}

// ReadPayload 是 MESSAGE_READ 事件负载。
type ReadPayload struct {
	RoomUUID          string `json:"roomUuid"`
	UserID            string `json:"userId"`
	LastReadMessageID uint   `json:"lastReadMessageId"`
}

// ChatEndPayload 是 CHAT_END 事件负载。
type ChatEndPayload struct {
	RoomUUID string `json:"roomUuid"`
	ReportID uint   `json:"reportId"`
}

// UserJoinedPayload 是 USER_JOINED 事件负载。
type UserJoinedPayload struct {
	RoomUUID string `json:"roomUuid"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ReportCompletedPayload 是 REPORT_COMPLETED 事件负载。
type ReportCompletedPayload struct {
	ReportID uint        `json:"reportId"`
	Title    string      `json:"title"`
	State    ReportState `json:"state"`
}

// RoomSummary 是聊天室列表视图：最后一条消息与未读数按请求用户聚合。
type RoomSummary struct {
	RoomUUID      string     `json:"roomUuid"`
	GroupChat     bool       `json:"groupChat"`
	Active        bool       `json:"active"`
	ReportID      *uint      `json:"reportId"`
	Participants  []UserInfo `json:"participants"`
	LastMessage   string     `json:"lastMessage"`
	LastMessageAt *LocalTime `json:"lastMessageAt"`
	UnreadCount   int64      `json:"unreadCount"`
	CreatedAt     LocalTime  `json:"createdAt"`
}

// UserInfo 是身份服务解析出的用户基础信息。
type UserInfo struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
