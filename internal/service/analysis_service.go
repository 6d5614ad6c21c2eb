package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"talklens-go/internal/config"
	"talklens-go/internal/model"
	"talklens-go/internal/repository"
	"talklens-go/pkg/bus"
	"talklens-go/pkg/llm"
	"talklens-go/pkg/log"
)

// AnalysisService 实现对话分析报告的状态机。
// 报告行先以 PENDING 落库，分析只在队列消费侧执行，
// 成功转 COMPLETED，任何失败一次性转 FAILED，不重试不残留中间态。
type AnalysisService interface {
	// InitializeReport 预创建一条 PENDING 报告并返回其 ID。
	InitializeReport(u1ID, u1Name, u2ID, u2Name, sourceType string) (uint, error)
	// AnalyzeConversation 完成用户对最近一条 PENDING 报告；
	// 不存在时直接创建一条 COMPLETED 报告。
	AnalyzeConversation(ctx context.Context, u1ID, u2ID string, chatData model.ChatTurnList) (uint, error)
	// AnalyzeWithReportID 以报告 ID 为幂等键执行分析，重放安全。
	AnalyzeWithReportID(ctx context.Context, reportID uint, u1ID, u2ID string, chatData model.ChatTurnList) error
}

type analysisService struct {
	reportRepo repository.ReportRepository
	retrieval  RetrievalService
	llmClient  llm.Client
	eventBus   bus.Bus
	cfg        config.AnalysisConfig
	llmTimeout time.Duration
}

// NewAnalysisService 创建一个新的 AnalysisService 实例。
func NewAnalysisService(
	reportRepo repository.ReportRepository,
	retrieval RetrievalService,
	llmClient llm.Client,
	eventBus bus.Bus,
	cfg config.AnalysisConfig,
	llmCfg config.LLMConfig,
) AnalysisService {
	timeout := time.Duration(llmCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &analysisService{
		reportRepo: reportRepo,
		retrieval:  retrieval,
		llmClient:  llmClient,
		eventBus:   eventBus,
		cfg:        cfg,
		llmTimeout: timeout,
	}
}

func (s *analysisService) InitializeReport(u1ID, u1Name, u2ID, u2Name, sourceType string) (uint, error) {
	report := &model.ConversationReport{
		User1ID:    u1ID,
		User1Name:  u1Name,
		User2ID:    u2ID,
		User2Name:  u2Name,
		State:      model.ReportStatePending,
		SourceType: sourceType,
	}
	if err := s.reportRepo.Create(report); err != nil {
		return 0, fmt.Errorf("failed to initialize report: %w", err)
	}
	log.Infof("报告已初始化: ID=%d, pair=(%s,%s)", report.ID, u1ID, u2ID)
	return report.ID, nil
}

func (s *analysisService) AnalyzeConversation(ctx context.Context, u1ID, u2ID string, chatData model.ChatTurnList) (uint, error) {
	report, err := s.reportRepo.FindLatestPendingByPair(u1ID, u2ID)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending report: %w", err)
	}
	if report == nil {
		report = &model.ConversationReport{
			User1ID:    u1ID,
			User2ID:    u2ID,
			State:      model.ReportStatePending,
			SourceType: model.ReportSourceChat,
		}
		if err := s.reportRepo.Create(report); err != nil {
			return 0, fmt.Errorf("failed to create report: %w", err)
		}
	}
	if err := s.complete(ctx, report, u1ID, u2ID, chatData); err != nil {
		return report.ID, err
	}
	return report.ID, nil
}

// AnalyzeWithReportID 先按 ID 覆盖写 PENDING 行再执行分析，
// 重复投递只会覆盖同一行，不产生重复报告。
func (s *analysisService) AnalyzeWithReportID(ctx context.Context, reportID uint, u1ID, u2ID string, chatData model.ChatTurnList) error {
	report, err := s.reportRepo.FindByID(reportID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		report = &model.ConversationReport{
			ID:      reportID,
			User1ID: u1ID,
			User2ID: u2ID,
			State:   model.ReportStatePending,
		}
	case err != nil:
		// 瞬时读失败不能当作行不存在，否则终态判断会被绕过
		return fmt.Errorf("failed to load report %d: %w", reportID, err)
	}
	if report.Terminal() {
		log.Infof("报告已处于终态，跳过重放: ID=%d, state=%s", reportID, report.State)
		return nil
	}
	report.User1ID = u1ID
	report.User2ID = u2ID
	report.State = model.ReportStatePending
	if err := s.reportRepo.Upsert(report); err != nil {
		return fmt.Errorf("failed to upsert pending report: %w", err)
	}
	return s.complete(ctx, report, u1ID, u2ID, chatData)
}

// complete 执行检索与模型调用，成功整体落库，失败标记 FAILED。
func (s *analysisService) complete(ctx context.Context, report *model.ConversationReport, u1ID, u2ID string, chatData model.ChatTurnList) error {
	title, cards, err := s.runAnalysis(ctx, chatData)
	if err != nil {
		log.Errorf("对话分析失败，报告转为 FAILED: ID=%d, err=%v", report.ID, err)
		if markErr := s.reportRepo.MarkFailed(report.ID); markErr != nil {
			log.Errorf("标记报告失败状态出错: ID=%d, err=%v", report.ID, markErr)
		}
		return err
	}

	report.Title = title
	report.ChatData = chatData
	report.ReportCards = cards
	report.State = model.ReportStateCompleted
	if err := s.reportRepo.Upsert(report); err != nil {
		return fmt.Errorf("failed to persist completed report: %w", err)
	}

	s.notifyCompleted(ctx, report, u1ID, u2ID)
	log.Infof("对话分析完成: ID=%d, title=%s", report.ID, title)
	return nil
}

// runAnalysis 逐句检索参考语料后调用模型生成标题与六张卡片。
func (s *analysisService) runAnalysis(ctx context.Context, chatData model.ChatTurnList) (string, model.ReportCardList, error) {
	if len(chatData) == 0 {
		return "", nil, ErrEmptyConversation
	}

	ragItems, err := s.collectRagItems(ctx, chatData)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval stage failed: %w", err)
	}

	prompt := buildAnalysisPrompt(chatData, ragItems)

	llmCtx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()
	raw, err := s.llmClient.Complete(llmCtx, []llm.Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", nil, fmt.Errorf("llm call failed: %w", err)
	}

	title, cards, err := parseAnalysisResult(raw)
	if err != nil {
		return "", nil, fmt.Errorf("llm result invalid: %w", err)
	}
	return title, cards, nil
}

// collectRagItems 对每句发言取 TopK 候选，按条目 ID 去重并截断到上限。
func (s *analysisService) collectRagItems(ctx context.Context, chatData model.ChatTurnList) ([]model.RagItem, error) {
	seen := make(map[string]bool)
	var items []model.RagItem
	for _, turn := range chatData {
		if strings.TrimSpace(turn.Message) == "" {
			continue
		}
		hits, err := s.retrieval.Search(ctx, turn.Message, s.cfg.TopK)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true
			items = append(items, hit)
			if len(items) >= s.cfg.MaxRagItems {
				return items, nil
			}
		}
	}
	return items, nil
}

func (s *analysisService) notifyCompleted(ctx context.Context, report *model.ConversationReport, u1ID, u2ID string) {
	payload := model.ReportCompletedPayload{
		ReportID: report.ID,
		Title:    report.Title,
		State:    report.State,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("序列化报告完成事件失败: %v", err)
		return
	}
	targets := []string{u1ID}
	if u2ID != u1ID {
		targets = append(targets, u2ID)
	}
	for _, uid := range targets {
		env := bus.Envelope{
			EventType:   model.EventReportCompleted,
			Destination: bus.UserDestination(uid),
			Payload:     raw,
		}
		// 推送失败不影响报告状态，用户可经查询接口获取结果
		if err := s.eventBus.Publish(ctx, env); err != nil {
			log.Errorf("推送报告完成事件失败: user=%s, err=%v", uid, err)
		}
	}
}

const analysisSystemPrompt = `你是一位专业的人际沟通分析师。根据用户提供的对话记录和参考语料，输出一份对话分析报告。

必须只输出一个 JSON 对象，不包含任何其他文字或代码块标记，结构如下：
{
  "title": "概括整段对话的简短标题",
  "cards": [
    {"id": 1, "title": "对话概要", "type": "summary", "content": {"text": "..."}},
    {"id": 2, "title": "情感与关系分析", "type": "analysis", "content": {"text": "...", "keywords": ["..."]}},
    {"id": 3, "title": "行为模式", "type": "behavior", "content": {"participantA": "...", "participantB": "..."}},
    {"id": 4, "title": "沟通失误", "type": "mistakes", "content": {"items": [{"quote": "...", "problem": "...", "suggestion": "..."}]}},
    {"id": 5, "title": "改进建议", "type": "coaching", "content": {"tips": ["..."]}},
    {"id": 6, "title": "发言占比", "type": "ratio", "content": {"ratioA": 50, "ratioB": 50}}
  ]
}

要求：
1. cards 必须恰好包含上述六种类型，各一张，顺序不限。
2. ratioA 与 ratioB 为整数且相加等于 100。
3. 所有文字使用对话的主要语言撰写。`

// buildAnalysisPrompt 拼装用户消息：对话全文与参考语料。
func buildAnalysisPrompt(chatData model.ChatTurnList, ragItems []model.RagItem) string {
	var sb strings.Builder
	sb.WriteString("【对话记录】\n")
	for _, turn := range chatData {
		sb.WriteString(turn.Name)
		sb.WriteString(": ")
		sb.WriteString(turn.Message)
		sb.WriteByte('\n')
	}
	if len(ragItems) > 0 {
		sb.WriteString("\n【参考语料】\n")
		for _, item := range ragItems {
			sb.WriteString("- 情境: ")
			sb.WriteString(item.Situation)
			sb.WriteString(" | 发言: ")
			sb.WriteString(item.Utterance)
			sb.WriteString(" | 回应: ")
			sb.WriteString(item.Response)
			sb.WriteString(" | 标签: ")
			sb.WriteString(item.Label)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

type analysisResult struct {
	Title string               `json:"title"`
	Cards model.ReportCardList `json:"cards"`
}

// parseAnalysisResult 严格解析模型输出：标题非空、六张卡片类型齐全。
func parseAnalysisResult(raw string) (string, model.ReportCardList, error) {
	cleaned := stripCodeFence(raw)
	var result analysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return "", nil, fmt.Errorf("failed to parse analysis json: %w", err)
	}
	if strings.TrimSpace(result.Title) == "" {
		return "", nil, fmt.Errorf("analysis result missing title")
	}
	if err := model.ValidateCards(result.Cards); err != nil {
		return "", nil, err
	}
	return result.Title, result.Cards, nil
}

// stripCodeFence 剥离模型偶尔包裹的 markdown 代码块标记。
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
