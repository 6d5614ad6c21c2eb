package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talklens-go/internal/model"
	"talklens-go/pkg/bus"
)

// fanoutBus 是进程内总线替身：Publish 同步投递给所有已接入的 Hub，
// 模拟多网关实例共享同一个 Redis 频道的行为。
type fanoutBus struct {
	hubs []*Hub
}

func (b *fanoutBus) attach(h *Hub) {
	b.hubs = append(b.hubs, h)
}

func (b *fanoutBus) Publish(_ context.Context, env bus.Envelope) error {
	for _, h := range b.hubs {
		h.Dispatch(env)
	}
	return nil
}

func (b *fanoutBus) Subscribe(ctx context.Context, _ func(env bus.Envelope)) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestHub(b bus.Bus) *Hub {
	return &Hub{
		subs:     make(map[string]map[*Session]bool),
		sessions: make(map[*Session]bool),
		eventBus: b,
	}
}

func newTestSession(h *Hub, userID string) *Session {
	return &Session{
		hub:          h,
		userID:       userID,
		send:         make(chan model.SocketEvent, 16),
		destinations: make(map[string]bool),
	}
}

func subscribeRoom(h *Hub, s *Session, roomUUID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addSubLocked(s, bus.RoomDestination(roomUUID))
}

func TestFanOutAcrossTwoHubInstances(t *testing.T) {
	shared := &fanoutBus{}
	hubA := newTestHub(shared)
	hubB := newTestHub(shared)
	shared.attach(hubA)
	shared.attach(hubB)

	// 两个用户分别连接在不同实例上，订阅同一房间
	sessionA := newTestSession(hubA, "u1")
	sessionB := newTestSession(hubB, "u2")
	hubA.register(sessionA)
	hubB.register(sessionB)
	subscribeRoom(hubA, sessionA, "room-x")
	subscribeRoom(hubB, sessionB, "room-x")

	payload, err := json.Marshal(map[string]string{"content": "跨实例的一条消息", "emoji": "🎉"})
	require.NoError(t, err)

	env := bus.Envelope{
		EventType:   model.EventNewMessage,
		Destination: bus.RoomDestination("room-x"),
		Payload:     payload,
	}
	require.NoError(t, shared.Publish(context.Background(), env))

	// 两个实例上的会话都逐字节收到同一负载
	for _, s := range []*Session{sessionA, sessionB} {
		select {
		case frame := <-s.send:
			assert.Equal(t, model.EventNewMessage, frame.Type)
			assert.Equal(t, payload, []byte(frame.Content))
		default:
			t.Fatalf("session of %s did not receive the event", s.userID)
		}
	}
}

func TestDispatchOnlyToMatchingDestination(t *testing.T) {
	shared := &fanoutBus{}
	h := newTestHub(shared)
	shared.attach(h)

	subscribed := newTestSession(h, "u1")
	bystander := newTestSession(h, "u2")
	h.register(subscribed)
	h.register(bystander)
	subscribeRoom(h, subscribed, "room-x")

	env := bus.Envelope{
		EventType:   model.EventNewMessage,
		Destination: bus.RoomDestination("room-x"),
		Payload:     json.RawMessage(`{"content":"hi"}`),
	}
	h.Dispatch(env)

	assert.Len(t, subscribed.send, 1)
	assert.Len(t, bystander.send, 0)
}

func TestRegisterAutoSubscribesUserDestination(t *testing.T) {
	shared := &fanoutBus{}
	h := newTestHub(shared)
	shared.attach(h)

	s := newTestSession(h, "u9")
	h.register(s)

	env := bus.Envelope{
		EventType:   model.EventReportCompleted,
		Destination: bus.UserDestination("u9"),
		Payload:     json.RawMessage(`{"reportId":7}`),
	}
	h.Dispatch(env)

	require.Len(t, s.send, 1)
	frame := <-s.send
	assert.Equal(t, model.EventReportCompleted, frame.Type)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	shared := &fanoutBus{}
	h := newTestHub(shared)
	shared.attach(h)

	s := newTestSession(h, "u1")
	h.register(s)
	subscribeRoom(h, s, "room-x")
	h.unregister(s)

	h.Dispatch(bus.Envelope{
		EventType:   model.EventNewMessage,
		Destination: bus.RoomDestination("room-x"),
		Payload:     json.RawMessage(`{}`),
	})
	h.Dispatch(bus.Envelope{
		EventType:   model.EventReportCompleted,
		Destination: bus.UserDestination("u1"),
		Payload:     json.RawMessage(`{}`),
	})

	assert.Len(t, s.send, 0)
	assert.Equal(t, 0, h.SessionCount())
}

// 断开中的会话与并发投递竞争时，不能向已关闭的 send 通道写入。
func TestDispatchDuringDisconnectDoesNotPanic(t *testing.T) {
	h := newTestHub(&fanoutBus{})
	roomEnv := bus.Envelope{
		EventType:   model.EventNewMessage,
		Destination: bus.RoomDestination("room-x"),
		Payload:     json.RawMessage(`{"content":"hi"}`),
	}
	userEnv := bus.Envelope{
		EventType:   model.EventReportCompleted,
		Destination: bus.UserDestination("u1"),
		Payload:     json.RawMessage(`{"reportId":7}`),
	}

	for i := 0; i < 200; i++ {
		s := newTestSession(h, "u1")
		h.register(s)
		subscribeRoom(h, s, "room-x")

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			h.Dispatch(roomEnv)
		}()
		go func() {
			defer wg.Done()
			h.Dispatch(userEnv)
		}()
		go func() {
			defer wg.Done()
			h.unregister(s)
		}()
		wg.Wait()
	}
	assert.Equal(t, 0, h.SessionCount())
}

func TestEnqueueDropsWhenBufferFull(t *testing.T) {
	h := newTestHub(&fanoutBus{})
	s := &Session{
		hub:          h,
		userID:       "u1",
		send:         make(chan model.SocketEvent, 1),
		destinations: make(map[string]bool),
	}

	s.enqueue(model.SocketEvent{Type: model.EventNewMessage})
	// 缓冲已满，第二帧被丢弃而不是阻塞
	s.enqueue(model.SocketEvent{Type: model.EventNewMessage})

	assert.Len(t, s.send, 1)
}
