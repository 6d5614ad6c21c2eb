package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"talklens-go/internal/model"
	"talklens-go/internal/repository"
	"talklens-go/pkg/bus"
	"talklens-go/pkg/log"
	"talklens-go/pkg/tasks"
	"talklens-go/pkg/userclient"
)

// ChatService 实现聊天室、消息与已读状态的业务逻辑。
type ChatService interface {
	CreateRoom(ctx context.Context, creatorID string, memberIDs []string, groupChat bool) (*model.ChatRoom, error)
	JoinRoomByUUID(ctx context.Context, roomUUID, userID string) (*model.ChatRoom, error)
	LeaveRoom(roomUUID, userID string) error
	// SendMessage 持久化消息并广播 NEW_MESSAGE 与各参与者的房间摘要刷新。
	// 发送者不是参与者时自动入会。
	SendMessage(ctx context.Context, roomUUID, senderID, content string) (*model.ChatMessage, error)
	// MarkRoomAsRead 推进已读位点：位点只前进，时间戳总是刷新，可重复调用。
	// lastReadID 为 0 视作全部已读，位点推进到房间最新消息。
	MarkRoomAsRead(ctx context.Context, roomUUID, userID string, lastReadID uint) error
	GetChatRooms(ctx context.Context, userID string) ([]*model.RoomSummary, error)
	GetHistory(roomUUID, userID string, beforeID uint, limit int) ([]*model.ChatMessage, error)
	GetAllMessagesByRoomUUID(roomUUID, userID string) ([]*model.ChatMessage, error)
	// EndChat 原子结束聊天：胜出方创建 PENDING 报告并投递分析任务，
	// 后到方直接得到已落位的报告 ID。
	EndChat(ctx context.Context, roomUUID, requesterID string) (uint, error)
	EndChatByRoomID(ctx context.Context, roomID uint, requesterID string) (uint, error)
	BuildRoomSummary(ctx context.Context, room *model.ChatRoom, viewerID string) (*model.RoomSummary, error)
}

type chatService struct {
	roomRepo    repository.RoomRepository
	msgRepo     repository.MessageRepository
	users       userclient.Client
	eventBus    bus.Bus
	analysis    AnalysisService
	produceTask func(tasks.AnalysisTask) error
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	users userclient.Client,
	eventBus bus.Bus,
	analysis AnalysisService,
	produceTask func(tasks.AnalysisTask) error,
) ChatService {
	return &chatService{
		roomRepo:    roomRepo,
		msgRepo:     msgRepo,
		users:       users,
		eventBus:    eventBus,
		analysis:    analysis,
		produceTask: produceTask,
	}
}

func (s *chatService) CreateRoom(ctx context.Context, creatorID string, memberIDs []string, groupChat bool) (*model.ChatRoom, error) {
	participants := []string{creatorID}
	seen := map[string]bool{creatorID: true}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		participants = append(participants, id)
	}

	room := &model.ChatRoom{
		RoomUUID:  uuid.NewString(),
		GroupChat: groupChat,
		Active:    true,
	}
	if err := s.roomRepo.Create(room, participants); err != nil {
		return nil, err
	}
	log.Infof("聊天室已创建: uuid=%s, participants=%d", room.RoomUUID, len(participants))
	return room, nil
}

func (s *chatService) JoinRoomByUUID(ctx context.Context, roomUUID, userID string) (*model.ChatRoom, error) {
	room, err := s.findRoom(roomUUID)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, ErrRoomEnded
	}
	joined, err := s.roomRepo.AddParticipant(room.ID, userID)
	if err != nil {
		return nil, err
	}
	if joined {
		s.broadcastUserJoined(ctx, room, userID)
	}
	return room, nil
}

func (s *chatService) LeaveRoom(roomUUID, userID string) error {
	room, err := s.findRoom(roomUUID)
	if err != nil {
		return err
	}
	ok, err := s.roomRepo.IsParticipant(room.ID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	// 退出只断开订阅关系，历史消息保留
	return s.roomRepo.RemoveParticipant(room.ID, userID)
}

func (s *chatService) SendMessage(ctx context.Context, roomUUID, senderID, content string) (*model.ChatMessage, error) {
	room, err := s.findRoom(roomUUID)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, ErrRoomEnded
	}

	ok, err := s.roomRepo.IsParticipant(room.ID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 首次发言自动入会
		if _, err := s.roomRepo.AddParticipant(room.ID, senderID); err != nil {
			return nil, err
		}
		s.broadcastUserJoined(ctx, room, senderID)
	}

	msg := &model.ChatMessage{
		RoomID:   room.ID,
		SenderID: senderID,
		Content:  content,
		SentAt:   time.Now(),
	}
	if err := s.msgRepo.Create(msg); err != nil {
		return nil, err
	}

	s.broadcastNewMessage(ctx, room, msg)
	s.broadcastRoomUpdate(ctx, room)
	return msg, nil
}

func (s *chatService) MarkRoomAsRead(ctx context.Context, roomUUID, userID string, lastReadID uint) error {
	room, err := s.findRoom(roomUUID)
	if err != nil {
		return err
	}
	ok, err := s.roomRepo.IsParticipant(room.ID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	// 位点为 0 表示全部已读，解析为房间最新消息 ID
	if lastReadID == 0 {
		lastReadID, err = s.msgRepo.FindLatestID(room.ID)
		if err != nil {
			return err
		}
	}
	if err := s.roomRepo.UpsertReadStatus(room.ID, userID, lastReadID); err != nil {
		return err
	}

	payload := model.ReadPayload{
		RoomUUID:          room.RoomUUID,
		UserID:            userID,
		LastReadMessageID: lastReadID,
	}
	s.publish(ctx, model.EventMessageRead, bus.RoomDestination(room.RoomUUID), payload)
	return nil
}

func (s *chatService) GetChatRooms(ctx context.Context, userID string) ([]*model.RoomSummary, error) {
	rooms, err := s.roomRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]*model.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary, err := s.BuildRoomSummary(ctx, room, userID)
		if err != nil {
			log.Errorf("构建房间摘要失败: uuid=%s, err=%v", room.RoomUUID, err)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// BuildRoomSummary 按查看者视角聚合：参与者昵称、最后消息与未读数。
func (s *chatService) BuildRoomSummary(ctx context.Context, room *model.ChatRoom, viewerID string) (*model.RoomSummary, error) {
	participantIDs, err := s.roomRepo.ListParticipants(room.ID)
	if err != nil {
		return nil, err
	}
	infos := s.users.ResolveUsers(ctx, participantIDs)

	participants := make([]model.UserInfo, 0, len(participantIDs))
	for _, id := range participantIDs {
		participants = append(participants, infos[id])
	}

	lastMsg, err := s.msgRepo.FindLast(room.ID)
	if err != nil {
		return nil, err
	}

	var lastReadID uint
	status, err := s.roomRepo.GetReadStatus(room.ID, viewerID)
	if err != nil {
		return nil, err
	}
	if status != nil {
		lastReadID = status.LastReadMessageID
	}
	unread, err := s.msgRepo.CountUnread(room.ID, viewerID, lastReadID)
	if err != nil {
		return nil, err
	}

	summary := &model.RoomSummary{
		RoomUUID:     room.RoomUUID,
		GroupChat:    room.GroupChat,
		Active:       room.Active,
		ReportID:     room.ReportID,
		Participants: participants,
		UnreadCount:  unread,
		CreatedAt:    model.LocalTime(room.CreatedAt),
	}
	if lastMsg != nil {
		summary.LastMessage = lastMsg.Content
		at := model.LocalTime(lastMsg.SentAt)
		summary.LastMessageAt = &at
	}
	return summary, nil
}

func (s *chatService) GetHistory(roomUUID, userID string, beforeID uint, limit int) ([]*model.ChatMessage, error) {
	room, err := s.findRoom(roomUUID)
	if err != nil {
		return nil, err
	}
	ok, err := s.roomRepo.IsParticipant(room.ID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.msgRepo.ListByRoom(room.ID, beforeID, limit)
}

func (s *chatService) GetAllMessagesByRoomUUID(roomUUID, userID string) ([]*model.ChatMessage, error) {
	room, err := s.findRoom(roomUUID)
	if err != nil {
		return nil, err
	}
	ok, err := s.roomRepo.IsParticipant(room.ID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}
	return s.msgRepo.ListAllByRoom(room.ID)
}

func (s *chatService) EndChat(ctx context.Context, roomUUID, requesterID string) (uint, error) {
	room, err := s.findRoom(roomUUID)
	if err != nil {
		return 0, err
	}
	return s.endChat(ctx, room, requesterID)
}

func (s *chatService) EndChatByRoomID(ctx context.Context, roomID uint, requesterID string) (uint, error) {
	room, err := s.roomRepo.FindByID(roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrRoomNotFound
		}
		return 0, err
	}
	return s.endChat(ctx, room, requesterID)
}

// endChat 条件翻转 Active，只有胜出方创建报告并投递任务。
func (s *chatService) endChat(ctx context.Context, room *model.ChatRoom, requesterID string) (uint, error) {
	ok, err := s.roomRepo.IsParticipant(room.ID, requesterID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotParticipant
	}

	won, err := s.roomRepo.EndRoom(room.ID)
	if err != nil {
		return 0, err
	}
	if !won {
		// 并发结束时后到方复用已落位的报告 ID
		fresh, err := s.roomRepo.FindByID(room.ID)
		if err != nil {
			return 0, err
		}
		if fresh.ReportID == nil {
			return 0, ErrRoomEnded
		}
		return *fresh.ReportID, nil
	}

	participantIDs, err := s.roomRepo.ListParticipants(room.ID)
	if err != nil {
		return 0, err
	}
	infos := s.users.ResolveUsers(ctx, participantIDs)

	var u1, u2 string
	if len(participantIDs) > 0 {
		u1 = participantIDs[0]
	}
	if len(participantIDs) > 1 {
		u2 = participantIDs[1]
	}

	reportID, err := s.analysis.InitializeReport(u1, infos[u1].Name, u2, infos[u2].Name, model.ReportSourceChat)
	if err != nil {
		return 0, err
	}
	if err := s.roomRepo.SetReportID(room.ID, reportID); err != nil {
		return 0, err
	}

	task := tasks.AnalysisTask{
		ReportID: reportID,
		RoomID:   room.ID,
		Source:   tasks.SourceChat,
	}
	if err := s.produceTask(task); err != nil {
		// 任务投递失败不回滚结束动作，报告保持 PENDING 可人工补投
		log.Errorf("投递分析任务失败: reportID=%d, err=%v", reportID, err)
	}

	payload := model.ChatEndPayload{RoomUUID: room.RoomUUID, ReportID: reportID}
	s.publish(ctx, model.EventChatEnd, bus.RoomDestination(room.RoomUUID), payload)
	return reportID, nil
}

func (s *chatService) findRoom(roomUUID string) (*model.ChatRoom, error) {
	room, err := s.roomRepo.FindByUUID(roomUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (s *chatService) broadcastNewMessage(ctx context.Context, room *model.ChatRoom, msg *model.ChatMessage) {
	infos := s.users.ResolveUsers(ctx, []string{msg.SenderID})
	payload := model.MessagePayload{
		MessageID:  msg.ID,
		RoomUUID:   room.RoomUUID,
		SenderID:   msg.SenderID,
		SenderName: infos[msg.SenderID].Name,
		Content:    msg.Content,
		SentAt:     model.LocalTime(msg.SentAt),
	}
	s.publish(ctx, model.EventNewMessage, bus.RoomDestination(room.RoomUUID), payload)
}

// broadcastRoomUpdate 向每个参与者推送按其视角刷新的房间摘要。
func (s *chatService) broadcastRoomUpdate(ctx context.Context, room *model.ChatRoom) {
	participantIDs, err := s.roomRepo.ListParticipants(room.ID)
	if err != nil {
		log.Errorf("获取参与者失败: uuid=%s, err=%v", room.RoomUUID, err)
		return
	}
	for _, uid := range participantIDs {
		summary, err := s.BuildRoomSummary(ctx, room, uid)
		if err != nil {
			log.Errorf("构建房间摘要失败: uuid=%s, user=%s, err=%v", room.RoomUUID, uid, err)
			continue
		}
		s.publish(ctx, model.EventChatRoomUpdate, bus.UserDestination(uid), summary)
	}
}

func (s *chatService) broadcastUserJoined(ctx context.Context, room *model.ChatRoom, userID string) {
	infos := s.users.ResolveUsers(ctx, []string{userID})
	payload := model.UserJoinedPayload{
		RoomUUID: room.RoomUUID,
		UserID:   userID,
		UserName: infos[userID].Name,
	}
	s.publish(ctx, model.EventUserJoined, bus.RoomDestination(room.RoomUUID), payload)
}

// publish 序列化负载并发布到总线，失败只记录日志。
func (s *chatService) publish(ctx context.Context, eventType, destination string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("序列化事件负载失败: type=%s, err=%v", eventType, err)
		return
	}
	env := bus.Envelope{EventType: eventType, Destination: destination, Payload: raw}
	if err := s.eventBus.Publish(ctx, env); err != nil {
		log.Errorf("发布事件失败: type=%s, dest=%s, err=%v", eventType, destination, err)
	}
}
