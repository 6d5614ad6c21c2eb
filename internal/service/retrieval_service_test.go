package service_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talklens-go/internal/model"
	"talklens-go/internal/service"
)

// fakeESTransport 拦截 Elasticsearch 请求并按请求体路由到预置响应。
type fakeESTransport struct {
	requests     []string
	primaryHits  []model.RagItem
	fallbackHits []model.RagItem
	failPrimary  bool
	failFallback bool
}

func (f *fakeESTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	f.requests = append(f.requests, body)

	isFallback := strings.Contains(body, "match_all")
	if (isFallback && f.failFallback) || (!isFallback && f.failPrimary) {
		return esJSONResponse(http.StatusInternalServerError, `{"error":"boom"}`), nil
	}

	hits := f.primaryHits
	if isFallback {
		hits = f.fallbackHits
	}
	type hit struct {
		Source model.RagItem `json:"_source"`
	}
	wrapped := make([]hit, 0, len(hits))
	for _, h := range hits {
		wrapped = append(wrapped, hit{Source: h})
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"hits": map[string]interface{}{"hits": wrapped},
	})
	return esJSONResponse(http.StatusOK, string(payload)), nil
}

func esJSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header: http.Header{
			"Content-Type":      []string{"application/json"},
			"X-Elastic-Product": []string{"Elasticsearch"},
		},
		Body: io.NopCloser(strings.NewReader(body)),
	}
}

func newRetrievalFixture(t *testing.T, transport *fakeESTransport) service.RetrievalService {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://elasticsearch.test:9200"},
		Transport: transport,
	})
	require.NoError(t, err)
	return service.NewRetrievalService(client, "rag_items")
}

func TestSearchZeroKReturnsEmpty(t *testing.T) {
	transport := &fakeESTransport{}
	svc := newRetrievalFixture(t, transport)

	items, err := svc.Search(context.Background(), "随便", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, transport.requests, "k<=0 should not hit the index")

	items, err = svc.Search(context.Background(), "随便", -3)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSearchPrimaryHit(t *testing.T) {
	transport := &fakeESTransport{
		primaryHits: []model.RagItem{
			{ID: "r1", Situation: "点餐", Utterance: "吃什么", Response: "都可以", Label: "日常"},
		},
	}
	svc := newRetrievalFixture(t, transport)

	items, err := svc.Search(context.Background(), "吃什么", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "r1", items[0].ID)

	// 主查询命中时不应触发回退
	require.Len(t, transport.requests, 1)
	assert.Contains(t, transport.requests[0], "fuzziness")
	assert.Contains(t, transport.requests[0], "wildcard")
}

func TestSearchFallsBackToFullCorpus(t *testing.T) {
	transport := &fakeESTransport{
		fallbackHits: []model.RagItem{
			{ID: "f1", Situation: "兜底", Utterance: "任意", Response: "任意", Label: "通用"},
			{ID: "f2", Situation: "兜底", Utterance: "任意", Response: "任意", Label: "通用"},
		},
	}
	svc := newRetrievalFixture(t, transport)

	items, err := svc.Search(context.Background(), "毫无命中的查询", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Len(t, transport.requests, 2)
	assert.Contains(t, transport.requests[1], "match_all")
}

func TestSearchPrimaryErrorPropagates(t *testing.T) {
	transport := &fakeESTransport{failPrimary: true}
	svc := newRetrievalFixture(t, transport)

	_, err := svc.Search(context.Background(), "吃什么", 5)
	assert.Error(t, err)
	assert.Len(t, transport.requests, 1)
}
