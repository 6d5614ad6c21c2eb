package model

import "time"

// RagItem 是检索索引中的一条参考语料。
// 语料存储在 Elasticsearch 中，MySQL 不落库。
type RagItem struct {
	ID         string `json:"id"`
	Situation  string `json:"situation"`
	Utterance  string `json:"utterance"`
	Response   string `json:"response"`
	Label      string `json:"label"`
	SearchText string `json:"search_text"`
}

// SeedHistory 记录语料灌入历史，通过数据集指纹实现幂等。
type SeedHistory struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Fingerprint string    `gorm:"size:64;uniqueIndex;not null" json:"fingerprint"`
	ItemCount   int       `gorm:"not null" json:"itemCount"`
	SeededAt    time.Time `gorm:"autoCreateTime" json:"seededAt"`
}

func (SeedHistory) TableName() string {
	return "seed_history"
}
