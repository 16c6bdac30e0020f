package vectordb

import (
	"context"
	"errors"
	"time"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid document ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrUnavailable      = errors.New("vector store unavailable")
)

// Document 向量库中的文档分块
type Document struct {
	ID         string                 // 分块唯一标识符
	DocumentID string                 // 来源文档ID
	Title      string                 // 来源文档标题
	ChunkIndex int                    // 在来源文档中的分块序号
	Text       string                 // 分块文本
	Vector     []float32              // 向量表示
	CreatedAt  time.Time              // 创建时间
	Metadata   map[string]interface{} // 附加元数据
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 搜索结果
type SearchResult struct {
	Document Document // 文档对象
	Score    float32  // 相似度得分
}

// SearchFilter 搜索过滤条件
type SearchFilter struct {
	DocumentIDs []string // 按来源文档过滤
	MinScore    float32  // 最小相似度分数
	MaxResults  int      // 最大返回结果数
}

// DefaultSearchFilter 返回默认的搜索过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MinScore:   0.0,
		MaxResults: 4,
	}
}

// Repository 向量数据库仓库接口
type Repository interface {
	// AddBatch 批量添加文档分块
	AddBatch(ctx context.Context, docs []Document) error

	// Search 相似度搜索，结果按得分降序
	Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error)

	// Count 获取分块总数
	Count(ctx context.Context) (int, error)

	// Dimension 返回向量维数
	Dimension() int

	// Close 关闭数据库连接
	Close() error
}

// Config 向量数据库配置
type Config struct {
	Type         string        // 数据库类型："memory", "sqlite", "qdrant"
	Path         string        // sqlite数据库文件路径
	URL          string        // 远程向量库地址
	APIKey       string        // 远程向量库API密钥
	Collection   string        // 集合名称
	Dimension    int           // 向量维度
	DistanceType DistanceType  // 距离计算类型
	Timeout      time.Duration // 远程请求超时
}

// Factory 向量数据库工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量数据库实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量数据库工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量数据库实例
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		// 默认使用内存实现
		factory = NewMemoryRepository
	}
	return factory(config)
}
