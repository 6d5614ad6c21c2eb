// Package userclient 提供外部身份服务的客户端。
// 聊天后端不持有用户账号，用户名等信息一律经该服务解析。
package userclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"talklens-go/internal/config"
	"talklens-go/internal/model"
	"talklens-go/pkg/log"
)

// UnknownUserName 是身份服务不可用或用户不存在时的占位名。
const UnknownUserName = "未知用户"

// Client 定义身份服务客户端接口。
type Client interface {
	// ResolveUser 查询单个用户信息。用户不存在时返回 ok=false。
	ResolveUser(ctx context.Context, userID string) (model.UserInfo, bool, error)
	// ResolveUsers 批量解析用户信息。解析失败的用户降级为占位名，不返回错误。
	ResolveUsers(ctx context.Context, userIDs []string) map[string]model.UserInfo
}

type httpClient struct {
	cfg    config.UserServiceConfig
	client *http.Client
}

// NewClient 创建一个新的身份服务客户端实例。
func NewClient(cfg config.UserServiceConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type userResponse struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

func (c *httpClient) ResolveUser(ctx context.Context, userID string) (model.UserInfo, bool, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s", c.cfg.BaseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.UserInfo{}, false, fmt.Errorf("failed to build user request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.UserInfo{}, false, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.UserInfo{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return model.UserInfo{}, false, fmt.Errorf("user API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var ur userResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return model.UserInfo{}, false, fmt.Errorf("failed to decode user response: %w", err)
	}
	return model.UserInfo{UserID: ur.UserID, Name: ur.Name, AvatarURL: ur.AvatarURL}, true, nil
}

// ResolveUsers 逐个解析，单个失败只记录日志并降级，不拖垮整体。
func (c *httpClient) ResolveUsers(ctx context.Context, userIDs []string) map[string]model.UserInfo {
	infos := make(map[string]model.UserInfo, len(userIDs))
	for _, id := range userIDs {
		if _, done := infos[id]; done {
			continue
		}
		info, ok, err := c.ResolveUser(ctx, id)
		if err != nil {
			log.Warnf("解析用户 %s 失败，使用占位名: %v", id, err)
			infos[id] = model.UserInfo{UserID: id, Name: UnknownUserName}
			continue
		}
		if !ok {
			infos[id] = model.UserInfo{UserID: id, Name: UnknownUserName}
			continue
		}
		info.UserID = id
		infos[id] = info
	}
	return infos
}
