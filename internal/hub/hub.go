// Package hub 实现了网关的 WebSocket 会话管理与事件投递。
// 每个进程实例订阅同一条总线，收到信封后只投递给本地命中目的地的会话。
package hub

import (
	"context"
	"sync"

	"talklens-go/internal/model"
	"talklens-go/internal/repository"
	"talklens-go/internal/service"
	"talklens-go/pkg/bus"
	"talklens-go/pkg/log"
	"talklens-go/pkg/token"
	"talklens-go/pkg/userclient"
)

// Hub 维护本实例的在线会话及其目的地订阅。
type Hub struct {
	mu sync.RWMutex
	// destination -> 订阅该目的地的本地会话集合
	subs     map[string]map[*Session]bool
	sessions map[*Session]bool

	eventBus bus.Bus
	chat     service.ChatService
	roomRepo repository.RoomRepository
	tokens   *token.JWTManager
	users    userclient.Client
}

// NewHub 创建一个新的 Hub 实例。
func NewHub(
	eventBus bus.Bus,
	chat service.ChatService,
	roomRepo repository.RoomRepository,
	tokens *token.JWTManager,
	users userclient.Client,
) *Hub {
	return &Hub{
		subs:     make(map[string]map[*Session]bool),
		sessions: make(map[*Session]bool),
		eventBus: eventBus,
		chat:     chat,
		roomRepo: roomRepo,
		tokens:   tokens,
		users:    users,
	}
}

// Run 阻塞消费总线信封直到 ctx 取消。
func (h *Hub) Run(ctx context.Context) error {
	return h.eventBus.Subscribe(ctx, h.Dispatch)
}

// Dispatch 将一条总线信封投递给本地订阅了该目的地的会话。
// 不关心的目的地直接丢弃，各实例间天然幂等。
// 投递全程持有读锁；send 通道只在 unregister 的写锁内关闭，
// 二者互斥，不会向已关闭的通道投递。
func (h *Hub) Dispatch(env bus.Envelope) {
	frame := model.SocketEvent{Type: env.EventType, Content: env.Payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[env.Destination] {
		s.enqueue(frame)
	}
}

// register 将完成认证的会话登记入册并自动订阅其用户目的地。
func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
	h.addSubLocked(s, bus.UserDestination(s.userID))
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sessions[s] {
		return
	}
	delete(h.sessions, s)
	for dest := range s.destinations {
		if set, ok := h.subs[dest]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, dest)
			}
		}
	}
	// sessions 判重保证只关闭一次，写锁与 Dispatch 的读锁互斥
	close(s.send)
}

// subscribe 为会话增加一个房间目的地，要求会话用户是该房间参与者。
func (h *Hub) subscribe(s *Session, destination string) error {
	roomUUID, ok := bus.ParseRoomDestination(destination)
	if !ok {
		return service.ErrRoomNotFound
	}
	room, err := h.roomRepo.FindByUUID(roomUUID)
	if err != nil {
		return service.ErrRoomNotFound
	}
	isMember, err := h.roomRepo.IsParticipant(room.ID, s.userID)
	if err != nil {
		return err
	}
	if !isMember {
		return service.ErrNotParticipant
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.addSubLocked(s, destination)
	log.Infof("会话已订阅目的地: user=%s, dest=%s", s.userID, destination)
	return nil
}

func (h *Hub) addSubLocked(s *Session, destination string) {
	if h.subs[destination] == nil {
		h.subs[destination] = make(map[*Session]bool)
	}
	h.subs[destination][s] = true
	s.destinations[destination] = true
}

// SessionCount 返回本实例当前在线会话数。
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
