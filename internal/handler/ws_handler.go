package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"talklens-go/internal/hub"
	"talklens-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 跨域由部署边界控制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler 负责 WebSocket 连接的升级与会话托管。
type WSHandler struct {
	hub *hub.Hub
}

// NewWSHandler 创建一个新的 WSHandler 实例。
func NewWSHandler(h *hub.Hub) *WSHandler {
	return &WSHandler{hub: h}
}

// Serve 升级连接后交给会话层，认证在首个 CONNECT 帧完成。
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("WebSocket 升级失败: %v", err)
		return
	}
	go hub.ServeSession(h.hub, conn)
}
