// Package model 包含了应用的数据模型定义。
package model

import "time"

// ChatRoom 代表一个聊天房间。
// RoomUUID 是对外可分享的标识（邀请链接使用），ID 仅在服务内部使用。
type ChatRoom struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomUUID  string    `gorm:"size:36;uniqueIndex;not null" json:"roomUuid"`
	GroupChat bool      `gorm:"not null;default:false" json:"groupChat"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	ReportID  *uint     `json:"reportId,omitempty"` // 房间结束时生成的报告 id，未结束为空
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// ChatRoomParticipant 代表房间与用户的参与关系，(room, user) 唯一。
type ChatRoomParticipant struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	RoomID uint   `gorm:"uniqueIndex:uk_room_user;not null" json:"roomId"`
	UserID string `gorm:"size:64;uniqueIndex:uk_room_user;not null" json:"userId"`
}

func (ChatRoomParticipant) TableName() string {
	return "chat_room_participants"
}

// ChatRoomReadStatus 记录用户在房间内的已读水位线，(room, user) 至多一行。
type ChatRoomReadStatus struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	RoomID            uint      `gorm:"uniqueIndex:uk_read_room_user;not null" json:"roomId"`
	UserID            string    `gorm:"size:64;uniqueIndex:uk_read_room_user;not null" json:"userId"`
	LastReadMessageID uint      `gorm:"not null;default:0" json:"lastReadMessageId"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ChatRoomReadStatus) TableName() string {
	return "chat_room_read_statuses"
}
