// Package stt 提供语音转写服务的客户端。
// 转写为异步作业：提交后由转写服务经回调地址推送结果。
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"talklens-go/internal/config"
)

// Client 定义语音转写客户端接口。
type Client interface {
	// SubmitJob 提交转写作业，audioURL 为音频的可访问地址，返回作业 ID。
	SubmitJob(ctx context.Context, audioURL string) (string, error)
}

type httpClient struct {
	cfg    config.STTConfig
	client *http.Client
}

// NewClient 创建一个新的转写客户端实例。
func NewClient(cfg config.STTConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type submitRequest struct {
	AudioURL    string `json:"audioUrl"`
	CallbackURL string `json:"callbackUrl"`
	Diarization bool   `json:"diarization"`
}

type submitResponse struct {
	JobID string `json:"jobId"`
}

func (c *httpClient) SubmitJob(ctx context.Context, audioURL string) (string, error) {
	reqBody := submitRequest{
		AudioURL:    audioURL,
		CallbackURL: c.cfg.CallbackURL,
		// 说话人分离，回调结果按说话人切分为片段
		Diarization: true,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcribe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/transcribe", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcribe API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("failed to decode transcribe response: %w", err)
	}
	if sr.JobID == "" {
		return "", fmt.Errorf("transcribe API returned empty job id")
	}
	return sr.JobID, nil
}
