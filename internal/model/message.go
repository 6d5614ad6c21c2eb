package model

import "time"

// ChatMessage 代表一条已持久化的聊天消息。
// 消息一经写入不可修改；同一房间内自增 id 的顺序即发送时间顺序。
type ChatMessage struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RoomID   uint      `gorm:"index;not null" json:"roomId"`
	SenderID string    `gorm:"size:64;index;not null" json:"senderId"`
	Content  string    `gorm:"type:text;not null" json:"content"`
	SentAt   time.Time `gorm:"not null" json:"sentAt"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
