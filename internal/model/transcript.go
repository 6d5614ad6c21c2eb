package model

import "time"

// 语音转写任务状态。
const (
	TranscriptStatePending   = "PENDING"
	TranscriptStateCompleted = "COMPLETED"
	TranscriptStateFailed    = "FAILED"
)

// Transcript 代表一次语音上传及其转写结果。
type Transcript struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	UserID     string       `gorm:"size:64;index;not null" json:"userId"`
	ObjectName string       `gorm:"size:255;not null" json:"objectName"`
	JobID      string       `gorm:"size:128;index" json:"jobId"`
	State      string       `gorm:"size:16;not null;default:PENDING" json:"state"`
	Segments   ChatTurnList `gorm:"type:json" json:"segments"`
	ReportID   *uint        `json:"reportId"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Transcript) TableName() string {
	return "transcripts"
}
