// Package pipeline 实现了分析任务的队列消费处理流水线。
package pipeline

import (
	"context"
	"fmt"

	"talklens-go/internal/model"
	"talklens-go/internal/repository"
	"talklens-go/internal/service"
	"talklens-go/pkg/log"
	"talklens-go/pkg/tasks"
	"talklens-go/pkg/userclient"
)

// Processor 消费队列中的分析任务：取数、校验参与者、驱动状态机。
type Processor struct {
	roomRepo       repository.RoomRepository
	msgRepo        repository.MessageRepository
	transcriptRepo repository.TranscriptRepository
	reportRepo     repository.ReportRepository
	analysis       service.AnalysisService
	users          userclient.Client
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	transcriptRepo repository.TranscriptRepository,
	reportRepo repository.ReportRepository,
	analysis service.AnalysisService,
	users userclient.Client,
) *Processor {
	return &Processor{
		roomRepo:       roomRepo,
		msgRepo:        msgRepo,
		transcriptRepo: transcriptRepo,
		reportRepo:     reportRepo,
		analysis:       analysis,
		users:          users,
	}
}

// Process 按任务来源分发。返回错误会触发队列侧的有限重试，
// 业务上不可重试的失败在此直接置 FAILED 并返回 nil。
func (p *Processor) Process(ctx context.Context, task tasks.AnalysisTask) error {
	switch task.Source {
	case tasks.SourceVoice:
		return p.processVoice(ctx, task)
	case tasks.SourceChat:
		return p.processChat(ctx, task)
	default:
		log.Errorf("未知的分析任务来源: %s", task.Source)
		return nil
	}
}

func (p *Processor) processChat(ctx context.Context, task tasks.AnalysisTask) error {
	participantIDs, err := p.roomRepo.ListParticipants(task.RoomID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	// 分析仅支持双人对话，群聊或残缺房间直接终态失败
	if len(participantIDs) != 2 {
		log.Errorf("参与者数量不满足分析要求: roomID=%d, count=%d", task.RoomID, len(participantIDs))
		return p.failTerminal(task.ReportID, service.ErrParticipantCount)
	}

	messages, err := p.msgRepo.ListAllByRoom(task.RoomID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	if len(messages) == 0 {
		return p.failTerminal(task.ReportID, service.ErrEmptyConversation)
	}

	infos := p.users.ResolveUsers(ctx, participantIDs)
	chatData := make(model.ChatTurnList, 0, len(messages))
	for _, msg := range messages {
		chatData = append(chatData, model.ChatTurn{
			UserID:  msg.SenderID,
			Name:    infos[msg.SenderID].Name,
			Message: msg.Content,
		})
	}

	return p.analysis.AnalyzeWithReportID(ctx, task.ReportID, participantIDs[0], participantIDs[1], chatData)
}

func (p *Processor) processVoice(ctx context.Context, task tasks.AnalysisTask) error {
	transcript, err := p.transcriptRepo.FindByID(task.TranscriptID)
	if err != nil {
		return fmt.Errorf("failed to load transcript: %w", err)
	}
	if len(transcript.Segments) == 0 {
		return p.failTerminal(task.ReportID, service.ErrEmptyConversation)
	}
	// 语音报告的说话人在定稿前保持占位符
	return p.analysis.AnalyzeWithReportID(ctx, task.ReportID, "A", "B", transcript.Segments)
}

func (p *Processor) failTerminal(reportID uint, cause error) error {
	log.Errorf("分析任务不可重试，报告转为 FAILED: reportID=%d, cause=%v", reportID, cause)
	if err := p.reportRepo.MarkFailed(reportID); err != nil {
		return fmt.Errorf("failed to mark report failed: %w", err)
	}
	return nil
}
