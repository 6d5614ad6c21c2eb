// Package bus 提供跨网关实例的事件广播总线。
// 所有实例订阅同一个 Redis 频道，本地只投递命中目的地的事件。
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"talklens-go/pkg/log"
)

// Envelope 是总线上的统一消息信封。
// Destination 形如 "room.{uuid}" 或 "user.{userID}"。
type Envelope struct {
	EventType   string          `json:"eventType"`
	Destination string          `json:"destination"`
	Payload     json.RawMessage `json:"payload"`
}

// RoomDestination 构造房间目的地。
func RoomDestination(roomUUID string) string {
	return "room." + roomUUID
}

// UserDestination 构造用户目的地。
func UserDestination(userID string) string {
	return "user." + userID
}

// ParseRoomDestination 从房间目的地中取出房间 UUID。
func ParseRoomDestination(destination string) (string, bool) {
	const prefix = "room."
	if len(destination) <= len(prefix) || destination[:len(prefix)] != prefix {
		return "", false
	}
	return destination[len(prefix):], true
}

// Bus 定义事件总线接口。Publish 投递到所有实例，
// Subscribe 阻塞消费直到 ctx 取消。
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, handler func(env Envelope)) error
}

type redisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus 创建基于 Redis pub/sub 的事件总线。
func NewRedisBus(client *redis.Client, channel string) Bus {
	return &redisBus{client: client, channel: channel}
}

func (b *redisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe 逐条解析信封并交给 handler，
// 单条消息解析失败只记录日志，不影响后续消费。
func (b *redisBus) Subscribe(ctx context.Context, handler func(env Envelope)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe channel %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Errorf("无法解析总线消息: %v, payload: %s", err, msg.Payload)
				continue
			}
			handler(env)
		}
	}
}
