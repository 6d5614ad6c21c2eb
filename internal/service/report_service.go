package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"gorm.io/gorm"

	"talklens-go/internal/model"
	"talklens-go/internal/repository"
	"talklens-go/pkg/log"
	"talklens-go/pkg/userclient"
)

// ReportService 提供分析报告的查询与命名定稿能力。
type ReportService interface {
	GetReportByID(reportID uint, requesterID string) (*model.ConversationReport, error)
	GetUserReportTitles(userID string) ([]model.ReportTitle, error)
	// UpdateUserName 将语音报告中的占位说话人 A/B 定稿为真实姓名。
	// selectedSpeaker 指明请求者是哪一方，单向操作，只允许执行一次。
	UpdateUserName(ctx context.Context, reportID uint, requesterID, selectedSpeaker, otherUserName string) (*model.ConversationReport, error)
}

type reportService struct {
	reportRepo repository.ReportRepository
	users      userclient.Client
}

// NewReportService 创建一个新的 ReportService 实例。
func NewReportService(reportRepo repository.ReportRepository, users userclient.Client) ReportService {
	return &reportService{reportRepo: reportRepo, users: users}
}

func (s *reportService) GetReportByID(reportID uint, requesterID string) (*model.ConversationReport, error) {
	report, err := s.findReport(reportID)
	if err != nil {
		return nil, err
	}
	if report.User1ID != requesterID && report.User2ID != requesterID {
		return nil, ErrReportNotOwned
	}
	return report, nil
}

func (s *reportService) GetUserReportTitles(userID string) ([]model.ReportTitle, error) {
	reports, err := s.reportRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	titles := make([]model.ReportTitle, 0, len(reports))
	for _, r := range reports {
		titles = append(titles, r.TitleView())
	}
	return titles, nil
}

// ErrNameAlreadyUpdated 表示报告的说话人姓名已定稿。
var ErrNameAlreadyUpdated = errors.New("report names already finalized")

func (s *reportService) UpdateUserName(ctx context.Context, reportID uint, requesterID, selectedSpeaker, otherUserName string) (*model.ConversationReport, error) {
	if selectedSpeaker != "A" && selectedSpeaker != "B" {
		return nil, ErrInvalidSpeaker
	}

	report, err := s.findReport(reportID)
	if err != nil {
		return nil, err
	}
	if report.NameUpdated {
		return nil, ErrNameAlreadyUpdated
	}

	requesterName := userclient.UnknownUserName
	if info, ok, err := s.users.ResolveUser(ctx, requesterID); err != nil {
		log.Warnf("解析请求者昵称失败，使用占位名: user=%s, err=%v", requesterID, err)
	} else if ok {
		requesterName = info.Name
	}

	var nameA, nameB string
	if selectedSpeaker == "A" {
		report.User1ID = requesterID
		report.User1Name = requesterName
		report.User2Name = otherUserName
		nameA, nameB = requesterName, otherUserName
	} else {
		report.User2ID = requesterID
		report.User2Name = requesterName
		report.User1Name = otherUserName
		nameA, nameB = otherUserName, requesterName
	}

	report.ChatData = substituteTurnNames(report.ChatData, nameA, nameB)

	// 卡片正文中的占位符替换失败时仅记录日志，姓名字段照常定稿
	if cards, err := substituteCardNames(report.ReportCards, nameA, nameB); err != nil {
		log.Errorf("替换卡片占位说话人失败: reportID=%d, err=%v", reportID, err)
	} else {
		report.ReportCards = cards
	}

	report.NameUpdated = true
	if err := s.reportRepo.Update(report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *reportService) findReport(reportID uint) (*model.ConversationReport, error) {
	report, err := s.reportRepo.FindByID(reportID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return report, nil
}

// substituteTurnNames 替换转写稿中的占位说话人名。
func substituteTurnNames(turns model.ChatTurnList, nameA, nameB string) model.ChatTurnList {
	out := make(model.ChatTurnList, len(turns))
	for i, t := range turns {
		switch t.Name {
		case "A":
			t.Name = nameA
		case "B":
			t.Name = nameB
		}
		out[i] = t
	}
	return out
}

var (
	placeholderA = regexp.MustCompile(`\bA\b`)
	placeholderB = regexp.MustCompile(`\bB\b`)
)

// substituteCardNames 在卡片 JSON 的字符串内容里替换孤立的 A/B 占位符。
// 词边界保证 "ratioA"、"participantA" 这类键名不受影响。
func substituteCardNames(cards model.ReportCardList, nameA, nameB string) (model.ReportCardList, error) {
	if len(cards) == 0 {
		return cards, nil
	}
	raw, err := json.Marshal(cards)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cards: %w", err)
	}

	replaced := placeholderA.ReplaceAll(raw, []byte(jsonEscape(nameA)))
	replaced = placeholderB.ReplaceAll(replaced, []byte(jsonEscape(nameB)))

	var out model.ReportCardList
	if err := json.Unmarshal(replaced, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal substituted cards: %w", err)
	}
	return out, nil
}

// jsonEscape 返回可安全嵌入 JSON 字符串字面量的转义文本。
func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
