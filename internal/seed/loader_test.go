package seed

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talklens-go/internal/config"
	"talklens-go/internal/model"
)

type memorySeedRepo struct {
	fingerprints map[string]bool
	records      []*model.SeedHistory
}

func newMemorySeedRepo() *memorySeedRepo {
	return &memorySeedRepo{fingerprints: make(map[string]bool)}
}

func (r *memorySeedRepo) FingerprintSeeded(fingerprint string) (bool, error) {
	return r.fingerprints[fingerprint], nil
}

func (r *memorySeedRepo) Record(history *model.SeedHistory) error {
	r.fingerprints[history.Fingerprint] = true
	r.records = append(r.records, history)
	return nil
}

// bulkCountTransport 统计 bulk 请求中的文档数。
type bulkCountTransport struct {
	bulkCalls int
	docs      int
}

func (t *bulkCountTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	t.bulkCalls++
	// bulk NDJSON 每个文档两行：meta + source
	lines := strings.Count(strings.TrimSpace(string(body)), "\n") + 1
	t.docs += lines / 2
	return &http.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type":      []string{"application/json"},
			"X-Elastic-Product": []string{"Elasticsearch"},
		},
		Body: io.NopCloser(strings.NewReader(`{"errors":false,"items":[]}`)),
	}, nil
}

func writeDataset(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestLoader(t *testing.T, dir string, repo *memorySeedRepo, transport *bulkCountTransport) *Loader {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://elasticsearch.test:9200"},
		Transport: transport,
	})
	require.NoError(t, err)
	return NewLoader(repo, client, "rag_items", config.DatasetConfig{
		Dir:        dir,
		LabelCount: 3,
		BatchSize:  2,
	})
}

func TestLoaderSeedsAndRecordsFingerprint(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "dataset_label_01.txt",
		`{"situation":"点餐","utterance":"吃什么","response":"都可以","label":"日常"}
{"situation":"约会","utterance":"周末有空吗","response":"有啊","label":"邀约"}
{"situation":"道歉","utterance":"是我不对","response":"没关系","label":"和解"}`)
	writeDataset(t, dir, "dataset_label_02.txt",
		`[{"situation":"安慰","utterance":"今天好累","response":"辛苦了","label":"共情"}]`)

	repo := newMemorySeedRepo()
	transport := &bulkCountTransport{}
	loader := newTestLoader(t, dir, repo, transport)

	require.NoError(t, loader.Run(context.Background()))

	assert.Equal(t, 4, transport.docs)
	// 批大小为 2，四条语料至少两次 bulk
	assert.GreaterOrEqual(t, transport.bulkCalls, 2)
	require.Len(t, repo.records, 1)
	assert.Equal(t, 4, repo.records[0].ItemCount)
}

func TestLoaderSkipsWhenFingerprintSeeded(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "dataset_label_01.txt",
		`{"situation":"点餐","utterance":"吃什么","response":"都可以","label":"日常"}`)

	repo := newMemorySeedRepo()
	firstRun := &bulkCountTransport{}
	require.NoError(t, newTestLoader(t, dir, repo, firstRun).Run(context.Background()))
	require.Equal(t, 1, firstRun.docs)

	secondRun := &bulkCountTransport{}
	require.NoError(t, newTestLoader(t, dir, repo, secondRun).Run(context.Background()))
	assert.Zero(t, secondRun.bulkCalls, "same fingerprint should not be re-seeded")
	assert.Len(t, repo.records, 1)
}

func TestLoaderEmptyDirIsNoop(t *testing.T) {
	repo := newMemorySeedRepo()
	transport := &bulkCountTransport{}
	loader := newTestLoader(t, t.TempDir(), repo, transport)

	require.NoError(t, loader.Run(context.Background()))
	assert.Zero(t, transport.bulkCalls)
	assert.Empty(t, repo.records)
}
