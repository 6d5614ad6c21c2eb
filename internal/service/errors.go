// Package service 实现了系统的核心业务逻辑。
package service

import "errors"

// 服务层哨兵错误，由 handler 层统一翻译为对应的 HTTP 状态码。
var (
	ErrRoomNotFound      = errors.New("chat room not found")
	ErrRoomEnded         = errors.New("chat room already ended")
	ErrNotParticipant    = errors.New("user is not a participant of the room")
	ErrReportNotFound    = errors.New("report not found")
	ErrReportNotOwned    = errors.New("report does not belong to the user")
	ErrInvalidSpeaker    = errors.New("selected speaker must be A or B")
	ErrParticipantCount  = errors.New("analysis requires exactly two participants")
	ErrEmptyConversation = errors.New("conversation has no messages")
)
