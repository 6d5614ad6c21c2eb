package service_test

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"talklens-go/internal/model"
	"talklens-go/pkg/bus"
	"talklens-go/pkg/llm"
)

// MockRoomRepository 是 repository.RoomRepository 的 testify mock 实现。
type MockRoomRepository struct {
	mock.Mock
}

func (m *MockRoomRepository) Create(room *model.ChatRoom, participantIDs []string) error {
	args := m.Called(room, participantIDs)
	return args.Error(0)
}

func (m *MockRoomRepository) FindByUUID(roomUUID string) (*model.ChatRoom, error) {
	args := m.Called(roomUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatRoom), args.Error(1)
}

func (m *MockRoomRepository) FindByID(id uint) (*model.ChatRoom, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatRoom), args.Error(1)
}

func (m *MockRoomRepository) ListByUser(userID string) ([]*model.ChatRoom, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ChatRoom), args.Error(1)
}

func (m *MockRoomRepository) ListParticipants(roomID uint) ([]string, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRoomRepository) IsParticipant(roomID uint, userID string) (bool, error) {
	args := m.Called(roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoomRepository) AddParticipant(roomID uint, userID string) (bool, error) {
	args := m.Called(roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoomRepository) RemoveParticipant(roomID uint, userID string) error {
	args := m.Called(roomID, userID)
	return args.Error(0)
}

func (m *MockRoomRepository) EndRoom(roomID uint) (bool, error) {
	args := m.Called(roomID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoomRepository) SetReportID(roomID uint, reportID uint) error {
	args := m.Called(roomID, reportID)
	return args.Error(0)
}

func (m *MockRoomRepository) UpsertReadStatus(roomID uint, userID string, messageID uint) error {
	args := m.Called(roomID, userID, messageID)
	return args.Error(0)
}

func (m *MockRoomRepository) GetReadStatus(roomID uint, userID string) (*model.ChatRoomReadStatus, error) {
	args := m.Called(roomID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatRoomReadStatus), args.Error(1)
}

// MockMessageRepository 是 repository.MessageRepository 的 testify mock 实现。
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(msg *model.ChatMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockMessageRepository) ListByRoom(roomID uint, beforeID uint, limit int) ([]*model.ChatMessage, error) {
	args := m.Called(roomID, beforeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ChatMessage), args.Error(1)
}

func (m *MockMessageRepository) FindLast(roomID uint) (*model.ChatMessage, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *MockMessageRepository) FindLatestID(roomID uint) (uint, error) {
	args := m.Called(roomID)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockMessageRepository) CountUnread(roomID uint, userID string, lastReadID uint) (int64, error) {
	args := m.Called(roomID, userID, lastReadID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) ListAllByRoom(roomID uint) ([]*model.ChatMessage, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ChatMessage), args.Error(1)
}

// MockReportRepository 是 repository.ReportRepository 的 testify mock 实现。
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Create(report *model.ConversationReport) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockReportRepository) Upsert(report *model.ConversationReport) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockReportRepository) FindByID(id uint) (*model.ConversationReport, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationReport), args.Error(1)
}

func (m *MockReportRepository) ListByUser(userID string) ([]*model.ConversationReport, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ConversationReport), args.Error(1)
}

func (m *MockReportRepository) FindLatestPendingByPair(userA, userB string) (*model.ConversationReport, error) {
	args := m.Called(userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationReport), args.Error(1)
}

func (m *MockReportRepository) MarkFailed(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockReportRepository) Update(report *model.ConversationReport) error {
	args := m.Called(report)
	return args.Error(0)
}

// MockUserClient 是 userclient.Client 的 testify mock 实现。
type MockUserClient struct {
	mock.Mock
}

func (m *MockUserClient) ResolveUser(ctx context.Context, userID string) (model.UserInfo, bool, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.UserInfo), args.Bool(1), args.Error(2)
}

func (m *MockUserClient) ResolveUsers(ctx context.Context, userIDs []string) map[string]model.UserInfo {
	args := m.Called(ctx, userIDs)
	return args.Get(0).(map[string]model.UserInfo)
}

// MockBus 是 bus.Bus 的 testify mock 实现，记录发布的信封。
type MockBus struct {
	mock.Mock
	Published []bus.Envelope
}

func (m *MockBus) Publish(ctx context.Context, env bus.Envelope) error {
	m.Published = append(m.Published, env)
	args := m.Called(ctx, env)
	return args.Error(0)
}

func (m *MockBus) Subscribe(ctx context.Context, handler func(env bus.Envelope)) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}

// MockAnalysis 是 service.AnalysisService 的 testify mock 实现。
type MockAnalysis struct {
	mock.Mock
}

func (m *MockAnalysis) InitializeReport(u1ID, u1Name, u2ID, u2Name, sourceType string) (uint, error) {
	args := m.Called(u1ID, u1Name, u2ID, u2Name, sourceType)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockAnalysis) AnalyzeConversation(ctx context.Context, u1ID, u2ID string, chatData model.ChatTurnList) (uint, error) {
	args := m.Called(ctx, u1ID, u2ID, chatData)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockAnalysis) AnalyzeWithReportID(ctx context.Context, reportID uint, u1ID, u2ID string, chatData model.ChatTurnList) error {
	args := m.Called(ctx, reportID, u1ID, u2ID, chatData)
	return args.Error(0)
}

// MockRetrieval 是 service.RetrievalService 的 testify mock 实现。
type MockRetrieval struct {
	mock.Mock
}

func (m *MockRetrieval) Search(ctx context.Context, queryText string, k int) ([]model.RagItem, error) {
	args := m.Called(ctx, queryText, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RagItem), args.Error(1)
}

// MockLLM 是 llm.Client 的 testify mock 实现。
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

// MockTranscriptRepository 是 repository.TranscriptRepository 的 testify mock 实现。
type MockTranscriptRepository struct {
	mock.Mock
}

func (m *MockTranscriptRepository) Create(t *model.Transcript) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockTranscriptRepository) FindByID(id uint) (*model.Transcript, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transcript), args.Error(1)
}

func (m *MockTranscriptRepository) FindByJobID(jobID string) (*model.Transcript, error) {
	args := m.Called(jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transcript), args.Error(1)
}

func (m *MockTranscriptRepository) Update(t *model.Transcript) error {
	args := m.Called(t)
	return args.Error(0)
}

// MockSTT 是 stt.Client 的 testify mock 实现。
type MockSTT struct {
	mock.Mock
}

func (m *MockSTT) SubmitJob(ctx context.Context, audioURL string) (string, error) {
	args := m.Called(ctx, audioURL)
	return args.String(0), args.Error(1)
}

// MockStore 是 storage.Store 的 testify mock 实现。
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upload(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, bucketName, objectName, reader, size, contentType)
	return args.Error(0)
}

func (m *MockStore) PresignedGetURL(bucketName, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(bucketName, objectName, expiry)
	return args.String(0), args.Error(1)
}
