package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ReportState 描述分析报告的生命周期状态。
type ReportState string

const (
	// ReportStatePending 生成中：报告行已创建，分析尚未完成。
	ReportStatePending ReportState = "PENDING"
	// ReportStateCompleted 完成：标题与卡片已生成并落库。
	ReportStateCompleted ReportState = "COMPLETED"
	// ReportStateFailed 失败：分析过程出错，终态，不再重试。
	ReportStateFailed ReportState = "FAILED"
)

// 报告来源标识，记录由哪条上游链路触发。
const (
	ReportSourceChat  = "CHAT"
	ReportSourceVoice = "VOICE"
)

// ChatTurn 代表分析输入转写稿中的一句发言。
type ChatTurn struct {
	UserID  string `json:"userId,omitempty"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ChatTurnList 以 JSON 列存储在 MySQL 中。
type ChatTurnList []ChatTurn

// Value 实现 driver.Valuer 接口。
func (l ChatTurnList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner 接口。
func (l *ChatTurnList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("unsupported chat data column type %T", value)
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, l)
}

// ConversationReport 代表一次对话分析的结果报告。
// 状态机：PENDING → COMPLETED / FAILED，终态不可再变更。
type ConversationReport struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	User1ID     string         `gorm:"size:64;index;not null" json:"user1Id"`
	User1Name   string         `gorm:"size:64" json:"user1Name"`
	User2ID     string         `gorm:"size:64;index;not null" json:"user2Id"`
	User2Name   string         `gorm:"size:64" json:"user2Name"`
	Title       string         `gorm:"size:255" json:"title"`
	ChatData    ChatTurnList   `gorm:"type:json" json:"chatData"`
	ReportCards ReportCardList `gorm:"type:json" json:"reportCards"`
	State       ReportState    `gorm:"size:16;not null;default:PENDING" json:"state"`
	SourceType  string         `gorm:"size:16" json:"sourceType"`
	NameUpdated bool           `gorm:"not null;default:false" json:"nameUpdated"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (ConversationReport) TableName() string {
	return "conversation_reports"
}

// Terminal 返回报告是否已处于终态。
func (r *ConversationReport) Terminal() bool {
	return r.State == ReportStateCompleted || r.State == ReportStateFailed
}

// ErrReportTerminal 表示报告已处于终态，不允许再次转移。
var ErrReportTerminal = errors.New("report already in terminal state")

// ReportTitle 是报告列表视图的精简结构，不携带转写稿与卡片正文。
type ReportTitle struct {
	ID         uint        `json:"id"`
	User1ID    string      `json:"user1Id"`
	User1Name  string      `json:"user1Name"`
	User2ID    string      `json:"user2Id"`
	User2Name  string      `json:"user2Name"`
	Title      string      `json:"title"`
	CreatedAt  time.Time   `json:"createdAt"`
	State      ReportState `json:"state"`
	SourceType string      `json:"sourceType"`
}

// TitleView 将完整报告转换为列表视图。
func (r *ConversationReport) TitleView() ReportTitle {
	return ReportTitle{
		ID:         r.ID,
		User1ID:    r.User1ID,
		User1Name:  r.User1Name,
		User2ID:    r.User2ID,
		User2Name:  r.User2Name,
		Title:      r.Title,
		CreatedAt:  r.CreatedAt,
		State:      r.State,
		SourceType: r.SourceType,
	}
}
