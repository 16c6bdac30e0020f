package vectordb

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境，进程退出后数据丢失
type MemoryRepository struct {
	mu        sync.RWMutex
	dimension int
	distType  DistanceType
	documents []Document     // 按写入顺序保存
	index     map[string]int // 分块ID到下标的映射
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	return &MemoryRepository{
		dimension: config.Dimension,
		distType:  distType,
		index:     make(map[string]int),
	}, nil
}

// AddBatch 批量添加分块，ID重复时覆盖旧值
func (r *MemoryRepository) AddBatch(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		if doc.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(doc.Vector, r.dimension); err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range docs {
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		if i, ok := r.index[doc.ID]; ok {
			r.documents[i] = doc
			continue
		}
		r.index[doc.ID] = len(r.documents)
		r.documents = append(r.documents, doc)
	}
	return nil
}

// Search 暴力计算相似度
func (r *MemoryRepository) Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return rank(vector, r.documents, filter, r.distType)
}

// Count 获取分块总数
func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Dimension 返回向量维数
func (r *MemoryRepository) Dimension() int {
	return r.dimension
}

// Close 内存实现无需释放资源
func (r *MemoryRepository) Close() error {
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
