package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"talklens-go/internal/model"
	"talklens-go/pkg/log"
	"talklens-go/pkg/token"
)

// 认证失败的 WebSocket 关闭码。
const (
	CloseInvalidToken = 4001
	CloseTokenExpired = 4002
	CloseUnknownUser  = 4003
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	connectWait    = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// connectFrame 是客户端认证帧的负载。
type connectFrame struct {
	Token string `json:"token"`
}

type subscribeFrame struct {
	Destination string `json:"destination"`
}

type sendMessageFrame struct {
	RoomUUID string `json:"roomUuid"`
	Content  string `json:"content"`
}

type messageReadFrame struct {
	RoomUUID          string `json:"roomUuid"`
	LastReadMessageID uint   `json:"lastReadMessageId"`
}

// Session 代表一条已升级的 WebSocket 连接。
// 连接升级不做鉴权，第一帧必须是 CONNECT，否则按编码关闭。
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan model.SocketEvent

	userID       string
	tokenExpiry  time.Time
	destinations map[string]bool

	// 过期提示只推送一次
	expiredNotified bool
}

// ServeSession 在升级完成的连接上完成认证并启动读写泵。
func ServeSession(h *Hub, conn *websocket.Conn) {
	s := &Session{
		hub:          h,
		conn:         conn,
		send:         make(chan model.SocketEvent, sendBufferSize),
		destinations: make(map[string]bool),
	}
	if !s.authenticate() {
		conn.Close()
		return
	}
	h.register(s)
	go s.writePump()
	s.readPump()
}

// authenticate 读取首帧 CONNECT 并校验令牌与身份。
func (s *Session) authenticate() bool {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(connectWait))

	var frame model.SocketEvent
	if err := s.conn.ReadJSON(&frame); err != nil {
		s.closeWithCode(CloseInvalidToken, "connect frame required")
		return false
	}
	if frame.Type != "CONNECT" {
		s.closeWithCode(CloseInvalidToken, "first frame must be CONNECT")
		return false
	}
	var connect connectFrame
	if err := json.Unmarshal(frame.Content, &connect); err != nil || connect.Token == "" {
		s.closeWithCode(CloseInvalidToken, "missing token")
		return false
	}

	claims, err := s.hub.tokens.VerifyToken(connect.Token)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			s.closeWithCode(CloseTokenExpired, "token expired")
		} else {
			s.closeWithCode(CloseInvalidToken, "invalid token")
		}
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, ok, err := s.hub.users.ResolveUser(ctx, claims.UserID)
	if err != nil {
		// 身份服务不可用时降级放行，昵称以占位符补齐
		log.Warnf("认证时身份服务不可用，降级放行: user=%s, err=%v", claims.UserID, err)
	} else if !ok {
		s.closeWithCode(CloseUnknownUser, "unknown user")
		return false
	}

	s.userID = claims.UserID
	if claims.ExpiresAt != nil {
		s.tokenExpiry = claims.ExpiresAt.Time
	}
	log.Infof("会话认证成功: user=%s", s.userID)
	return true
}

func (s *Session) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
}

// enqueue 将事件放入发送队列，队列满时丢帧保护慢客户端。
func (s *Session) enqueue(frame model.SocketEvent) {
	select {
	case s.send <- frame:
	default:
		log.Warnf("会话发送队列已满，丢弃事件: user=%s, type=%s", s.userID, frame.Type)
	}
}

func (s *Session) readPump() {
	defer func() {
		// send 由 unregister 在 Hub 锁内关闭
		s.hub.unregister(s)
		s.conn.Close()
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame model.SocketEvent
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("读取会话帧失败: user=%s, err=%v", s.userID, err)
			}
			return
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(frame model.SocketEvent) {
	ctx := context.Background()
	switch frame.Type {
	case "SUBSCRIBE":
		var sub subscribeFrame
		if err := json.Unmarshal(frame.Content, &sub); err != nil {
			return
		}
		if err := s.hub.subscribe(s, sub.Destination); err != nil {
			log.Warnf("订阅失败: user=%s, dest=%s, err=%v", s.userID, sub.Destination, err)
		}
	case model.EventSendMessage:
		var msg sendMessageFrame
		if err := json.Unmarshal(frame.Content, &msg); err != nil {
			return
		}
		if _, err := s.hub.chat.SendMessage(ctx, msg.RoomUUID, s.userID, msg.Content); err != nil {
			log.Warnf("发送消息失败: user=%s, room=%s, err=%v", s.userID, msg.RoomUUID, err)
		}
	case model.EventMessageRead:
		var read messageReadFrame
		if err := json.Unmarshal(frame.Content, &read); err != nil {
			return
		}
		if err := s.hub.chat.MarkRoomAsRead(ctx, read.RoomUUID, s.userID, read.LastReadMessageID); err != nil {
			log.Warnf("更新已读位点失败: user=%s, room=%s, err=%v", s.userID, read.RoomUUID, err)
		}
	default:
		log.Warnf("未知的客户端帧类型: user=%s, type=%s", s.userID, frame.Type)
	}
}

// writePump 负责下行写出与心跳。每帧写出前复查令牌有效期，
// 过期后推送一次 TOKEN_EXPIRED，之后静默丢弃下行帧。
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if s.tokenExpired() {
				if !s.expiredNotified {
					s.expiredNotified = true
					expired := model.SocketEvent{Type: model.EventTokenExpired}
					_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := s.conn.WriteJSON(expired); err != nil {
						return
					}
				}
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) tokenExpired() bool {
	return !s.tokenExpiry.IsZero() && time.Now().After(s.tokenExpiry)
}
