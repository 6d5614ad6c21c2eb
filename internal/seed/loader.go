// Package seed 负责启动时将参考语料灌入检索索引。
// 数据集指纹记录在 seed_history 表，重复启动不会重复灌入。
package seed

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"talklens-go/internal/config"
	"talklens-go/internal/model"
	"talklens-go/internal/repository"
	"talklens-go/pkg/es"
	"talklens-go/pkg/log"
)

// Loader 读取数据集文件并批量写入 Elasticsearch。
type Loader struct {
	seedRepo  repository.SeedRepository
	client    *elasticsearch.Client
	indexName string
	cfg       config.DatasetConfig
}

// NewLoader 创建一个新的 Loader 实例。
func NewLoader(seedRepo repository.SeedRepository, client *elasticsearch.Client, indexName string, cfg config.DatasetConfig) *Loader {
	return &Loader{
		seedRepo:  seedRepo,
		client:    client,
		indexName: indexName,
		cfg:       cfg,
	}
}

// Run 执行灌入：计算指纹，已灌入则跳过，否则分批 bulk 写入后记录指纹。
func (l *Loader) Run(ctx context.Context) error {
	files, err := l.datasetFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Warnf("数据集目录 %s 下没有找到语料文件，跳过灌入", l.cfg.Dir)
		return nil
	}

	fingerprint, err := fingerprintFiles(files)
	if err != nil {
		return err
	}

	seeded, err := l.seedRepo.FingerprintSeeded(fingerprint)
	if err != nil {
		return fmt.Errorf("failed to check seed history: %w", err)
	}
	if seeded {
		log.Infof("数据集指纹 %s 已灌入过，跳过", fingerprint[:12])
		return nil
	}

	total := 0
	batchSize := l.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	batch := make([]model.RagItem, 0, batchSize)
	for _, file := range files {
		items, err := loadFile(file)
		if err != nil {
			return fmt.Errorf("failed to load dataset file %s: %w", file, err)
		}
		for _, item := range items {
			batch = append(batch, item)
			if len(batch) >= batchSize {
				if err := es.BulkIndexItems(ctx, l.client, l.indexName, batch); err != nil {
					return err
				}
				total += len(batch)
				batch = batch[:0]
			}
		}
	}
	if len(batch) > 0 {
		if err := es.BulkIndexItems(ctx, l.client, l.indexName, batch); err != nil {
			return err
		}
		total += len(batch)
	}

	if err := l.seedRepo.Record(&model.SeedHistory{
		Fingerprint: fingerprint,
		ItemCount:   total,
	}); err != nil {
		return err
	}
	log.Infof("语料灌入完成: %d 条, 指纹 %s", total, fingerprint[:12])
	return nil
}

// datasetFiles 按标签序号收集 dataset_label_NN.txt，排序保证指纹稳定。
func (l *Loader) datasetFiles() ([]string, error) {
	var files []string
	for i := 1; i <= l.cfg.LabelCount; i++ {
		name := filepath.Join(l.cfg.Dir, fmt.Sprintf("dataset_label_%02d.txt", i))
		if _, err := os.Stat(name); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat dataset file: %w", err)
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// fingerprintFiles 对全部文件内容链式计算 SHA-256。
func fingerprintFiles(files []string) (string, error) {
	h := sha256.New()
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("failed to open dataset file: %w", err)
		}
		h.Write([]byte(filepath.Base(file)))
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to hash dataset file: %w", err)
		}
		f.Close()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type datasetRecord struct {
	Situation string `json:"situation"`
	Utterance string `json:"utterance"`
	Response  string `json:"response"`
	Label     string `json:"label"`
}

// loadFile 兼容两种格式：整体 JSON 数组或逐行 NDJSON。
func loadFile(path string) ([]model.RagItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []datasetRecord
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, fmt.Errorf("invalid json array: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(strings.NewReader(trimmed))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec datasetRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return nil, fmt.Errorf("invalid ndjson at line %d: %w", lineNo, err)
			}
			records = append(records, rec)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	items := make([]model.RagItem, 0, len(records))
	for i, rec := range records {
		items = append(items, model.RagItem{
			// 文件名+行号构成稳定 ID，重灌覆盖同一文档
			ID:         fmt.Sprintf("%s-%d", base, i),
			Situation:  rec.Situation,
			Utterance:  rec.Utterance,
			Response:   rec.Response,
			Label:      rec.Label,
			SearchText: strings.Join([]string{rec.Situation, rec.Utterance, rec.Response}, " "),
		})
	}
	return items, nil
}
