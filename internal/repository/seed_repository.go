package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"talklens-go/internal/model"
)

// SeedRepository 定义了语料灌入历史的数据操作接口。
type SeedRepository interface {
	// FingerprintSeeded 返回该数据集指纹是否已灌入过。
	FingerprintSeeded(fingerprint string) (bool, error)
	Record(history *model.SeedHistory) error
}

type seedRepository struct {
	db *gorm.DB
}

// NewSeedRepository 创建一个新的 SeedRepository 实例。
func NewSeedRepository(db *gorm.DB) SeedRepository {
	return &seedRepository{db: db}
}

func (r *seedRepository) FingerprintSeeded(fingerprint string) (bool, error) {
	var history model.SeedHistory
	err := r.db.Where("fingerprint = ?", fingerprint).First(&history).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *seedRepository) Record(history *model.SeedHistory) error {
	if err := r.db.Create(history).Error; err != nil {
		return fmt.Errorf("failed to record seed history: %w", err)
	}
	return nil
}
