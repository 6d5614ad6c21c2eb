package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// 六种报告卡片类型，一份完整报告必须各包含一张。
const (
	CardTypeSummary  = "summary"
	CardTypeAnalysis = "analysis"
	CardTypeBehavior = "behavior"
	CardTypeMistakes = "mistakes"
	CardTypeCoaching = "coaching"
	CardTypeRatio    = "ratio"
)

// requiredCardTypes 以生成顺序列出全部卡片类型。
var requiredCardTypes = []string{
	CardTypeSummary,
	CardTypeAnalysis,
	CardTypeBehavior,
	CardTypeMistakes,
	CardTypeCoaching,
	CardTypeRatio,
}

// SummaryContent 对话概要卡片内容。
type SummaryContent struct {
	Text string `json:"text"`
}

// AnalysisContent 情感与关系分析卡片内容。
type AnalysisContent struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords,omitempty"`
}

// BehaviorContent 双方行为模式卡片内容。
type BehaviorContent struct {
	ParticipantA string `json:"participantA"`
	ParticipantB string `json:"participantB"`
}

// MistakesContent 沟通失误卡片内容。
type MistakesContent struct {
	Items []MistakeItem `json:"items"`
}

// MistakeItem 单条沟通失误：引用原句并给出改进建议。
type MistakeItem struct {
	Quote      string `json:"quote"`
	Problem    string `json:"problem"`
	Suggestion string `json:"suggestion"`
}

// CoachingContent 改进建议卡片内容。
type CoachingContent struct {
	Tips []string `json:"tips"`
}

// RatioContent 发言占比卡片内容，两者之和应为 100。
type RatioContent struct {
	RatioA int `json:"ratioA"`
	RatioB int `json:"ratioB"`
}

// ReportCard 是报告卡片的标签联合：Type 决定哪一个内容指针非空。
type ReportCard struct {
	ID    int
	Title string
	Type  string

	Summary  *SummaryContent
	Analysis *AnalysisContent
	Behavior *BehaviorContent
	Mistakes *MistakesContent
	Coaching *CoachingContent
	Ratio    *RatioContent
}

type cardEnvelope struct {
	ID      int             `json:"id"`
	Title   string          `json:"title"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON 按 Type 选择对应内容序列化。
func (c ReportCard) MarshalJSON() ([]byte, error) {
	var content interface{}
	switch c.Type {
	case CardTypeSummary:
		content = c.Summary
	case CardTypeAnalysis:
		content = c.Analysis
	case CardTypeBehavior:
		content = c.Behavior
	case CardTypeMistakes:
		content = c.Mistakes
	case CardTypeCoaching:
		content = c.Coaching
	case CardTypeRatio:
		content = c.Ratio
	default:
		return nil, fmt.Errorf("unknown card type %q", c.Type)
	}
	if content == nil || isNilPointer(content) {
		return nil, fmt.Errorf("card type %q has no content", c.Type)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cardEnvelope{ID: c.ID, Title: c.Title, Type: c.Type, Content: raw})
}

// UnmarshalJSON 按 type 判别字段反序列化到对应内容结构。
func (c *ReportCard) UnmarshalJSON(data []byte) error {
	var env cardEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*c = ReportCard{ID: env.ID, Title: env.Title, Type: env.Type}
	if len(env.Content) == 0 {
		return fmt.Errorf("card type %q missing content", env.Type)
	}
	switch env.Type {
	case CardTypeSummary:
		c.Summary = &SummaryContent{}
		return json.Unmarshal(env.Content, c.Summary)
	case CardTypeAnalysis:
		c.Analysis = &AnalysisContent{}
		return json.Unmarshal(env.Content, c.Analysis)
	case CardTypeBehavior:
		c.Behavior = &BehaviorContent{}
		return json.Unmarshal(env.Content, c.Behavior)
	case CardTypeMistakes:
		c.Mistakes = &MistakesContent{}
		return json.Unmarshal(env.Content, c.Mistakes)
	case CardTypeCoaching:
		c.Coaching = &CoachingContent{}
		return json.Unmarshal(env.Content, c.Coaching)
	case CardTypeRatio:
		c.Ratio = &RatioContent{}
		return json.Unmarshal(env.Content, c.Ratio)
	default:
		return fmt.Errorf("unknown card type %q", env.Type)
	}
}

func isNilPointer(v interface{}) bool {
	switch p := v.(type) {
	case *SummaryContent:
		return p == nil
	case *AnalysisContent:
		return p == nil
	case *BehaviorContent:
		return p == nil
	case *MistakesContent:
		return p == nil
	case *CoachingContent:
		return p == nil
	case *RatioContent:
		return p == nil
	}
	return false
}

// ReportCardList 以 JSON 列存储在 MySQL 中。
type ReportCardList []ReportCard

// Value 实现 driver.Valuer 接口。
func (l ReportCardList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner 接口。
func (l *ReportCardList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("unsupported report cards column type %T", value)
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, l)
}

// ValidateCards 校验卡片集合：六种类型各出现一次，内容完整。
func ValidateCards(cards ReportCardList) error {
	if len(cards) != len(requiredCardTypes) {
		return fmt.Errorf("expected %d cards, got %d", len(requiredCardTypes), len(cards))
	}
	seen := make(map[string]bool, len(requiredCardTypes))
	for _, c := range cards {
		if seen[c.Type] {
			return fmt.Errorf("duplicate card type %q", c.Type)
		}
		seen[c.Type] = true
		if err := validateCardContent(c); err != nil {
			return err
		}
	}
	for _, t := range requiredCardTypes {
		if !seen[t] {
			return fmt.Errorf("missing card type %q", t)
		}
	}
	return nil
}

func validateCardContent(c ReportCard) error {
	switch c.Type {
	case CardTypeSummary:
		if c.Summary == nil || c.Summary.Text == "" {
			return fmt.Errorf("summary card content empty")
		}
	case CardTypeAnalysis:
		if c.Analysis == nil || c.Analysis.Text == "" {
			return fmt.Errorf("analysis card content empty")
		}
	case CardTypeBehavior:
		if c.Behavior == nil {
			return fmt.Errorf("behavior card content empty")
		}
	case CardTypeMistakes:
		if c.Mistakes == nil {
			return fmt.Errorf("mistakes card content empty")
		}
	case CardTypeCoaching:
		if c.Coaching == nil || len(c.Coaching.Tips) == 0 {
			return fmt.Errorf("coaching card content empty")
		}
	case CardTypeRatio:
		if c.Ratio == nil {
			return fmt.Errorf("ratio card content empty")
		}
		if c.Ratio.RatioA < 0 || c.Ratio.RatioB < 0 || c.Ratio.RatioA+c.Ratio.RatioB != 100 {
			return fmt.Errorf("ratio card values invalid: %d/%d", c.Ratio.RatioA, c.Ratio.RatioB)
		}
	default:
		return fmt.Errorf("unknown card type %q", c.Type)
	}
	return nil
}
