package service

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"talklens-go/internal/model"
	"talklens-go/pkg/es"
)

// RetrievalService 定义参考语料检索的接口。
type RetrievalService interface {
	// Search 返回与查询文本最相关的至多 k 条语料。
	// k<=0 时返回空列表；主查询无命中时回退到全量候选。
	Search(ctx context.Context, queryText string, k int) ([]model.RagItem, error)
}

type retrievalService struct {
	client    *elasticsearch.Client
	indexName string
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(client *elasticsearch.Client, indexName string) RetrievalService {
	return &retrievalService{client: client, indexName: indexName}
}

func (s *retrievalService) Search(ctx context.Context, queryText string, k int) ([]model.RagItem, error) {
	if k <= 0 {
		return []model.RagItem{}, nil
	}

	// 主查询：模糊匹配 + 子串通配，两者命中其一即可
	primary := map[string]interface{}{
		"size": k,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"match": map[string]interface{}{
							"search_text": map[string]interface{}{
								"query":     queryText,
								"fuzziness": "AUTO",
							},
						},
					},
					map[string]interface{}{
						"wildcard": map[string]interface{}{
							"search_text": map[string]interface{}{
								"value": "*" + queryText + "*",
							},
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
	}

	items, err := es.Search(ctx, s.client, s.indexName, primary)
	if err != nil {
		return nil, fmt.Errorf("primary retrieval failed: %w", err)
	}
	if len(items) > 0 {
		return items, nil
	}

	// 无命中时回退到 match_all，保证分析环节总有参考候选
	fallback := map[string]interface{}{
		"size": k,
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
	}
	items, err = es.Search(ctx, s.client, s.indexName, fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback retrieval failed: %w", err)
	}
	return items, nil
}
