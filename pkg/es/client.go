// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"talklens-go/internal/config"
	"talklens-go/internal/model"
	"talklens-go/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// search_text 为情境、发言、回应的拼接列，检索统一打在该字段上
	mapping := `{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"situation": { "type": "text" },
				"utterance": { "type": "text" },
				"response": { "type": "text" },
				"label": { "type": "keyword" },
				"search_text": { "type": "text" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// BulkIndexItems 批量索引语料条目，文档 ID 与条目 ID 一致以保证重灌幂等。
func BulkIndexItems(ctx context.Context, client *elasticsearch.Client, indexName string, items []model.RagItem) error {
	if len(items) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, item := range items {
		meta := fmt.Sprintf(`{"index":{"_id":%q}}`, item.ID)
		buf.WriteString(meta)
		buf.WriteByte('\n')
		doc, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal rag item %s: %w", item.ID, err)
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Index: indexName,
		Body:  &buf,
	}
	res, err := req.Do(ctx, client)
	if err != nil {
		return fmt.Errorf("bulk index request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index returned error: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		return errors.New("bulk index reported item-level errors")
	}
	return nil
}

// Search 执行查询请求并解析命中文档到 model.RagItem 列表。
func Search(ctx context.Context, client *elasticsearch.Client, indexName string, query map[string]interface{}) ([]model.RagItem, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(indexName),
		client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search returned error: %s", res.String())
	}

	var sr struct {
		Hits struct {
			Hits []struct {
				Source model.RagItem `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	items := make([]model.RagItem, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		items = append(items, hit.Source)
	}
	return items, nil
}
