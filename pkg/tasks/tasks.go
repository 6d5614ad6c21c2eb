// Package tasks 定义了经消息队列传递的异步任务结构。
package tasks

import "fmt"

// 分析任务来源。
const (
	SourceChat  = "CHAT"
	SourceVoice = "VOICE"
)

// AnalysisTask 是对话分析任务，由聊天结束或语音转写完成时投递。
// ReportID 作为幂等键：同一任务被重放时覆盖写同一报告行。
type AnalysisTask struct {
	ReportID     uint   `json:"reportId"`
	RoomID       uint   `json:"roomId,omitempty"`
	TranscriptID uint   `json:"transcriptId,omitempty"`
	Source       string `json:"source"`
}

// Key 返回任务的去重键，用于失败计数。
func (t AnalysisTask) Key() string {
	return fmt.Sprintf("%s:%d", t.Source, t.ReportID)
}
