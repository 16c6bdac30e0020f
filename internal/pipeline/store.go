package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fyerfyer/rag-chat/internal/embedding"
	"github.com/fyerfyer/rag-chat/internal/vectordb"
	"github.com/google/uuid"
)

// 元数据字段名
const (
	MetaDocumentID = "id"
	MetaTitle      = "title"
	MetaChunkIndex = "chunk_index"
	MetaScore      = "score"
)

// EmbeddingStore 先嵌入再写入向量仓库的存储实现
type EmbeddingStore struct {
	embedder  embedding.Client
	processor *embedding.BatchProcessor
	repo      vectordb.Repository
	minScore  float32
}

// NewEmbeddingStore 创建基于嵌入模型和向量仓库的存储
func NewEmbeddingStore(embedder embedding.Client, processor *embedding.BatchProcessor,
	repo vectordb.Repository, minScore float32) *EmbeddingStore {
	if processor == nil {
		processor = embedding.NewBatchProcessor(embedder, 0, 0)
	}
	return &EmbeddingStore{
		embedder:  embedder,
		processor: processor,
		repo:      repo,
		minScore:  minScore,
	}
}

// AddDocuments 并行嵌入所有分块后一次写入仓库
func (s *EmbeddingStore) AddDocuments(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Content
	}

	vectors, err := s.processor.Process(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	now := time.Now()
	docs := make([]vectordb.Document, len(records))
	for i, r := range records {
		docs[i] = vectordb.Document{
			ID:         uuid.NewString(),
			DocumentID: metaString(r.Metadata, MetaDocumentID),
			Title:      metaString(r.Metadata, MetaTitle),
			ChunkIndex: metaInt(r.Metadata, MetaChunkIndex),
			Text:       r.Content,
			Vector:     vectors[i],
			CreatedAt:  now,
			Metadata:   r.Metadata,
		}
	}

	if err := s.repo.AddBatch(ctx, docs); err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}
	return nil
}

// Search 嵌入查询并返回得分最高的k个分块
func (s *EmbeddingStore) Search(ctx context.Context, query string, k int) ([]Record, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.repo.Search(ctx, vector, vectordb.SearchFilter{
		MinScore:   s.minScore,
		MaxResults: k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, res := range results {
		meta := map[string]interface{}{
			MetaDocumentID: res.Document.DocumentID,
			MetaTitle:      res.Document.Title,
			MetaChunkIndex: res.Document.ChunkIndex,
			MetaScore:      res.Score,
		}
		records = append(records, Record{Content: res.Document.Text, Metadata: meta})
	}
	return records, nil
}

// Close 关闭向量仓库
func (s *EmbeddingStore) Close() error {
	return s.repo.Close()
}

// metaString 读取字符串类型的元数据
func metaString(meta map[string]interface{}, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// metaInt 读取整数类型的元数据，兼容JSON解码后的float64
func metaInt(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
