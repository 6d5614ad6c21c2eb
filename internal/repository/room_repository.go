// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"talklens-go/internal/model"
)

// RoomRepository 定义了聊天室、参与者与已读状态的数据操作接口。
type RoomRepository interface {
	Create(room *model.ChatRoom, participantIDs []string) error
	FindByUUID(roomUUID string) (*model.ChatRoom, error)
	FindByID(id uint) (*model.ChatRoom, error)
	ListByUser(userID string) ([]*model.ChatRoom, error)
	ListParticipants(roomID uint) ([]string, error)
	IsParticipant(roomID uint, userID string) (bool, error)
	AddParticipant(roomID uint, userID string) (bool, error)
	RemoveParticipant(roomID uint, userID string) error
	// EndRoom 将房间从激活置为结束，仅当当前仍激活时生效。
	// 返回值表示本次调用是否真正完成了状态翻转。
	EndRoom(roomID uint) (bool, error)
	SetReportID(roomID uint, reportID uint) error
	// UpsertReadStatus 推进用户在房间内的已读位点。
	// 位点只会前进，时间戳总是刷新。
	UpsertReadStatus(roomID uint, userID string, messageID uint) error
	GetReadStatus(roomID uint, userID string) (*model.ChatRoomReadStatus, error)
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository 创建一个新的 RoomRepository 实例。
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

// Create 在事务中创建房间及其初始参与者。
func (r *roomRepository) Create(room *model.ChatRoom, participantIDs []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return fmt.Errorf("failed to create chat room: %w", err)
		}
		for _, uid := range participantIDs {
			p := &model.ChatRoomParticipant{RoomID: room.ID, UserID: uid}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error; err != nil {
				return fmt.Errorf("failed to add participant %s: %w", uid, err)
			}
		}
		return nil
	})
}

// FindByUUID 按 UUID 查找房间，不存在时返回 gorm.ErrRecordNotFound。
func (r *roomRepository) FindByUUID(roomUUID string) (*model.ChatRoom, error) {
	var room model.ChatRoom
	if err := r.db.Where("room_uuid = ?", roomUUID).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) FindByID(id uint) (*model.ChatRoom, error) {
	var room model.ChatRoom
	if err := r.db.First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// ListByUser 返回用户参与的全部房间，按创建时间倒序。
func (r *roomRepository) ListByUser(userID string) ([]*model.ChatRoom, error) {
	var rooms []*model.ChatRoom
	err := r.db.
		Joins("JOIN chat_room_participants p ON p.room_id = chat_rooms.id").
		Where("p.user_id = ?", userID).
		Order("chat_rooms.created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms for user %s: %w", userID, err)
	}
	return rooms, nil
}

func (r *roomRepository) ListParticipants(roomID uint) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.ChatRoomParticipant{}).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return ids, nil
}

func (r *roomRepository) IsParticipant(roomID uint, userID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.ChatRoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddParticipant 幂等地加入参与者，返回是否为新加入。
func (r *roomRepository) AddParticipant(roomID uint, userID string) (bool, error) {
	p := &model.ChatRoomParticipant{RoomID: roomID, UserID: userID}
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if result.Error != nil {
		return false, fmt.Errorf("failed to add participant: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *roomRepository) RemoveParticipant(roomID uint, userID string) error {
	err := r.db.
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&model.ChatRoomParticipant{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// EndRoom 条件更新保证并发结束时只有一个调用方胜出。
func (r *roomRepository) EndRoom(roomID uint) (bool, error) {
	result := r.db.Model(&model.ChatRoom{}).
		Where("id = ? AND active = ?", roomID, true).
		Update("active", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to end room: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *roomRepository) SetReportID(roomID uint, reportID uint) error {
	err := r.db.Model(&model.ChatRoom{}).
		Where("id = ?", roomID).
		Update("report_id", reportID).Error
	if err != nil {
		return fmt.Errorf("failed to set report id: %w", err)
	}
	return nil
}

// UpsertReadStatus 已读位点只前进不后退：冲突时取 GREATEST。
func (r *roomRepository) UpsertReadStatus(roomID uint, userID string, messageID uint) error {
	status := &model.ChatRoomReadStatus{
		RoomID:            roomID,
		UserID:            userID,
		LastReadMessageID: messageID,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_read_message_id": gorm.Expr("GREATEST(last_read_message_id, VALUES(last_read_message_id))"),
			"updated_at":           gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(status).Error
	if err != nil {
		return fmt.Errorf("failed to upsert read status: %w", err)
	}
	return nil
}

func (r *roomRepository) GetReadStatus(roomID uint, userID string) (*model.ChatRoomReadStatus, error) {
	var status model.ChatRoomReadStatus
	err := r.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}
