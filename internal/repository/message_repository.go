package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"talklens-go/internal/model"
)

// MessageRepository 定义了聊天消息的数据操作接口。
type MessageRepository interface {
	Create(msg *model.ChatMessage) error
	// ListByRoom 按消息 ID 升序分页返回房间消息。
	// beforeID 为 0 表示从最新一页开始。
	ListByRoom(roomID uint, beforeID uint, limit int) ([]*model.ChatMessage, error)
	FindLast(roomID uint) (*model.ChatMessage, error)
	FindLatestID(roomID uint) (uint, error)
	// CountUnread 统计房间内 ID 大于已读位点且发送者不是本人的消息数。
	CountUnread(roomID uint, userID string, lastReadID uint) (int64, error)
	ListAllByRoom(roomID uint) ([]*model.ChatMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(msg *model.ChatMessage) error {
	if err := r.db.Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByRoom 取 beforeID 之前的 limit 条，倒序查询后翻转为升序返回。
func (r *messageRepository) ListByRoom(roomID uint, beforeID uint, limit int) ([]*model.ChatMessage, error) {
	query := r.db.Where("room_id = ?", roomID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	var messages []*model.ChatMessage
	if err := query.Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepository) FindLast(roomID uint) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.Where("room_id = ?", roomID).Order("id DESC").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) FindLatestID(roomID uint) (uint, error) {
	msg, err := r.FindLast(roomID)
	if err != nil {
		return 0, err
	}
	if msg == nil {
		return 0, nil
	}
	return msg.ID, nil
}

func (r *messageRepository) CountUnread(roomID uint, userID string, lastReadID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.ChatMessage{}).
		Where("room_id = ? AND id > ? AND sender_id <> ?", roomID, lastReadID, userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

// ListAllByRoom 返回房间全量消息，供对话分析取数使用。
func (r *messageRepository) ListAllByRoom(roomID uint) ([]*model.ChatMessage, error) {
	var messages []*model.ChatMessage
	err := r.db.Where("room_id = ?", roomID).Order("id ASC").Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list all messages: %w", err)
	}
	return messages, nil
}
