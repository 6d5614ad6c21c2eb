package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"talklens-go/internal/model"
)

// ReportRepository 定义了对话分析报告的数据操作接口。
type ReportRepository interface {
	Create(report *model.ConversationReport) error
	// Upsert 按主键写入：ID 冲突时整行覆盖更新，保证重放幂等。
	Upsert(report *model.ConversationReport) error
	FindByID(id uint) (*model.ConversationReport, error)
	ListByUser(userID string) ([]*model.ConversationReport, error)
	// FindLatestPendingByPair 按无序用户对查找最近一条 PENDING 报告。
	FindLatestPendingByPair(userA, userB string) (*model.ConversationReport, error)
	MarkFailed(id uint) error
	Update(report *model.ConversationReport) error
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建一个新的 ReportRepository 实例。
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(report *model.ConversationReport) error {
	if err := r.db.Create(report).Error; err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *reportRepository) Upsert(report *model.ConversationReport) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(report).Error
	if err != nil {
		return fmt.Errorf("failed to upsert report: %w", err)
	}
	return nil
}

func (r *reportRepository) FindByID(id uint) (*model.ConversationReport, error) {
	var report model.ConversationReport
	if err := r.db.First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// ListByUser 返回用户作为任一方参与的报告，按创建时间倒序。
func (r *reportRepository) ListByUser(userID string) ([]*model.ConversationReport, error) {
	var reports []*model.ConversationReport
	err := r.db.
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// FindLatestPendingByPair 用户对不区分方向，取创建时间最近的一条。
func (r *reportRepository) FindLatestPendingByPair(userA, userB string) (*model.ConversationReport, error) {
	var report model.ConversationReport
	err := r.db.
		Where("state = ?", model.ReportStatePending).
		Where("(user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)",
			userA, userB, userB, userA).
		Order("created_at DESC").
		First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// MarkFailed 将报告置为 FAILED，仅当当前仍为 PENDING 时生效。
func (r *reportRepository) MarkFailed(id uint) error {
	err := r.db.Model(&model.ConversationReport{}).
		Where("id = ? AND state = ?", id, model.ReportStatePending).
		Update("state", model.ReportStateFailed).Error
	if err != nil {
		return fmt.Errorf("failed to mark report failed: %w", err)
	}
	return nil
}

func (r *reportRepository) Update(report *model.ConversationReport) error {
	if err := r.db.Save(report).Error; err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	return nil
}
