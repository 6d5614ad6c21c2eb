package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"talklens-go/internal/model"
)

// TranscriptRepository 定义了语音转写记录的数据操作接口。
type TranscriptRepository interface {
	Create(t *model.Transcript) error
	FindByID(id uint) (*model.Transcript, error)
	FindByJobID(jobID string) (*model.Transcript, error)
	Update(t *model.Transcript) error
}

type transcriptRepository struct {
	db *gorm.DB
}

// NewTranscriptRepository 创建一个新的 TranscriptRepository 实例。
func NewTranscriptRepository(db *gorm.DB) TranscriptRepository {
	return &transcriptRepository{db: db}
}

func (r *transcriptRepository) Create(t *model.Transcript) error {
	if err := r.db.Create(t).Error; err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}
	return nil
}

func (r *transcriptRepository) FindByID(id uint) (*model.Transcript, error) {
	var t model.Transcript
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transcriptRepository) FindByJobID(jobID string) (*model.Transcript, error) {
	var t model.Transcript
	err := r.db.Where("job_id = ?", jobID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transcriptRepository) Update(t *model.Transcript) error {
	if err := r.db.Save(t).Error; err != nil {
		return fmt.Errorf("failed to update transcript: %w", err)
	}
	return nil
}
