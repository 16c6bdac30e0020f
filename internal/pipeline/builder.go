package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fyerfyer/rag-chat/internal/embedding"
	"github.com/fyerfyer/rag-chat/internal/llm"
	"github.com/fyerfyer/rag-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// Options 构建流水线所需的配置
type Options struct {
	Mock           bool          // 强制使用演示模式
	APIKey         string        // OpenAI API密钥，为空时进入演示模式
	BaseURL        string        // OpenAI兼容接口地址
	ChatModel      string        // 生成模型
	EmbeddingModel string        // 嵌入模型
	Dimensions     int           // 嵌入维度，0表示模型默认值
	PromptTemplate string        // 提示词模板，为空时使用默认模板
	SystemPrompt   string        // 系统提示词
	Temperature    float32       // 采样温度
	MaxTokens      int           // 最大生成Token数
	RequestTimeout time.Duration // 单次模型调用超时
	BatchSize      int           // 每次嵌入请求的分块数
	Workers        int           // 嵌入并发数
	TopK           int           // 检索的分块数量
	MinScore       float32       // 检索最低相似度
	VectorStore    vectordb.Config
}

// MockMode 判断是否使用演示模式
func (o Options) MockMode() bool {
	return o.Mock || o.APIKey == ""
}

// NewBuilder 根据配置返回演示或真实流水线的构建函数
func NewBuilder(opts Options, logger *logrus.Logger) Builder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.MockMode() {
		return func(ctx context.Context) (*Pipeline, error) {
			logger.Warn("Running in mock mode (mock enabled or OpenAI API key missing), using in-memory pipeline")
			return &Pipeline{
				Store: NewMockStore(),
				Chain: MockChain{},
				Model: opts.ChatModel,
				Mock:  true,
			}, nil
		}
	}
	return func(ctx context.Context) (*Pipeline, error) {
		return buildLive(ctx, opts, logger)
	}
}

// buildLive 创建OpenAI客户端和向量仓库
func buildLive(ctx context.Context, opts Options, logger *logrus.Logger) (*Pipeline, error) {
	embedder, err := embedding.NewClient("openai",
		embedding.WithAPIKey(opts.APIKey),
		embedding.WithBaseURL(opts.BaseURL),
		embedding.WithModel(opts.EmbeddingModel),
		embedding.WithDimensions(opts.Dimensions),
		embedding.WithTimeout(opts.RequestTimeout),
		embedding.WithBatchSize(opts.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	generator, err := llm.NewClient("openai",
		llm.WithAPIKey(opts.APIKey),
		llm.WithBaseURL(opts.BaseURL),
		llm.WithModel(opts.ChatModel),
		llm.WithTimeout(opts.RequestTimeout),
		llm.WithTemperature(opts.Temperature),
		llm.WithMaxTokens(opts.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	repo, err := vectordb.NewRepository(opts.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store %q: %w", opts.VectorStore.Type, err)
	}
	if err := ctx.Err(); err != nil {
		_ = repo.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"vector_store":    opts.VectorStore.Type,
		"collection":      opts.VectorStore.Collection,
		"embedding_model": embedder.Name(),
		"chat_model":      generator.Name(),
	}).Info("Live pipeline components created")

	store := NewEmbeddingStore(embedder,
		embedding.NewBatchProcessor(embedder, opts.BatchSize, opts.Workers),
		repo, opts.MinScore)
	rag := llm.NewRAG(generator,
		llm.WithTemplate(opts.PromptTemplate),
		llm.WithRAGSystemPrompt(opts.SystemPrompt),
		llm.WithRAGTemperature(opts.Temperature),
		llm.WithRAGMaxTokens(opts.MaxTokens),
		llm.WithRAGTimeout(opts.RequestTimeout),
	)

	return &Pipeline{
		Store: store,
		Chain: NewRetrievalChain(store, rag, opts.TopK),
		Model: generator.Name(),
	}, nil
}
