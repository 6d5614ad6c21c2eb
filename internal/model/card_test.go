package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCards() ReportCardList {
	return ReportCardList{
		{ID: 1, Title: "对话概要", Type: CardTypeSummary, Summary: &SummaryContent{Text: "两人讨论了周末计划"}},
		{ID: 2, Title: "情感与关系分析", Type: CardTypeAnalysis, Analysis: &AnalysisContent{Text: "整体氛围轻松", Keywords: []string{"轻松", "计划"}}},
		{ID: 3, Title: "行为模式", Type: CardTypeBehavior, Behavior: &BehaviorContent{ParticipantA: "主动提议", ParticipantB: "积极回应"}},
		{ID: 4, Title: "沟通失误", Type: CardTypeMistakes, Mistakes: &MistakesContent{Items: []MistakeItem{{Quote: "随便", Problem: "态度模糊", Suggestion: "给出明确偏好"}}}},
		{ID: 5, Title: "改进建议", Type: CardTypeCoaching, Coaching: &CoachingContent{Tips: []string{"多用开放式提问"}}},
		{ID: 6, Title: "发言占比", Type: CardTypeRatio, Ratio: &RatioContent{RatioA: 60, RatioB: 40}},
	}
}

func TestReportCardRoundTrip(t *testing.T) {
	cards := sampleCards()

	data, err := json.Marshal(cards)
	require.NoError(t, err)

	var decoded ReportCardList
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 6)

	assert.Equal(t, cards[0].Summary.Text, decoded[0].Summary.Text)
	assert.Equal(t, cards[2].Behavior.ParticipantA, decoded[2].Behavior.ParticipantA)
	assert.Equal(t, 60, decoded[5].Ratio.RatioA)
	assert.Equal(t, 40, decoded[5].Ratio.RatioB)
	for i, c := range decoded {
		assert.Equal(t, cards[i].Type, c.Type)
		assert.Equal(t, cards[i].Title, c.Title)
	}
}

func TestReportCardMarshalKeepsDiscriminant(t *testing.T) {
	card := ReportCard{ID: 6, Title: "发言占比", Type: CardTypeRatio, Ratio: &RatioContent{RatioA: 70, RatioB: 30}}
	data, err := json.Marshal(card)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"ratio"`, string(raw["type"]))
	assert.JSONEq(t, `{"ratioA":70,"ratioB":30}`, string(raw["content"]))
}

func TestReportCardUnmarshalUnknownType(t *testing.T) {
	var card ReportCard
	err := json.Unmarshal([]byte(`{"id":1,"title":"x","type":"poetry","content":{}}`), &card)
	assert.Error(t, err)
}

func TestReportCardMarshalMissingContent(t *testing.T) {
	card := ReportCard{ID: 1, Title: "对话概要", Type: CardTypeSummary}
	_, err := json.Marshal(card)
	assert.Error(t, err)
}

func TestValidateCards(t *testing.T) {
	require.NoError(t, ValidateCards(sampleCards()))
}

func TestValidateCardsDuplicateType(t *testing.T) {
	cards := sampleCards()
	cards[1] = cards[0]
	err := ValidateCards(cards)
	assert.ErrorContains(t, err, "duplicate")
}

func TestValidateCardsMissingType(t *testing.T) {
	cards := sampleCards()[:5]
	err := ValidateCards(cards)
	assert.ErrorContains(t, err, "expected 6 cards")
}

func TestValidateCardsRatioMustSumTo100(t *testing.T) {
	cards := sampleCards()
	cards[5].Ratio = &RatioContent{RatioA: 50, RatioB: 40}
	err := ValidateCards(cards)
	assert.ErrorContains(t, err, "ratio")
}

func TestChatTurnListScanValue(t *testing.T) {
	turns := ChatTurnList{
		{UserID: "u1", Name: "小明", Message: "晚上吃什么"},
		{UserID: "u2", Name: "小红", Message: "随便"},
	}

	v, err := turns.Value()
	require.NoError(t, err)

	var scanned ChatTurnList
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, turns, scanned)

	var empty ChatTurnList
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}
