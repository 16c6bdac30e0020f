package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultRAGTemplate 默认RAG提示词模板
// 包含变量：
// {context} - 检索到的上下文，分块之间以空行分隔
// {input} - 用户问题
const DefaultRAGTemplate = `
You are a knowledgeable assistant. Use ONLY the provided context to answer.
Context:
{context}

Question:
{input}
`

// contextSeparator 拼接上下文分块时使用的分隔符
const contextSeparator = "\n\n"

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	// 提示词模板
	Template string
	// 系统提示词，为空时只发送用户消息
	System string
	// 最大Token数，0表示沿用客户端配置
	MaxTokens int
	// 温度参数
	Temperature float32
	// 超时时间
	Timeout time.Duration
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:    DefaultRAGTemplate,
		Temperature: 0.2,
		Timeout:     60 * time.Second,
	}
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithTemplate 设置提示词模板，空模板保持默认值
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		if template != "" {
			c.Template = template
		}
	}
}

// WithRAGSystemPrompt 设置系统提示词
func WithRAGSystemPrompt(system string) RAGOption {
	return func(c *RAGConfig) {
		c.System = system
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// RAGService 实现检索增强生成服务
type RAGService struct {
	Client Client       // 大模型客户端
	config *RAGConfig   // 配置
	mu     sync.RWMutex // 配置互斥锁
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// Answer 根据上下文和问题生成回答，问题原样写入提示词
func (r *RAGService) Answer(ctx context.Context, question string, contexts []string) (*Response, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	cfg := *r.config
	r.mu.RUnlock()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	options := []GenerateOption{WithGenerateTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		options = append(options, WithGenerateMaxTokens(cfg.MaxTokens))
	}
	if cfg.System != "" {
		options = append(options, WithSystemPrompt(cfg.System))
	}

	// 错误原样返回，上层依赖其中的状态码做分类
	return r.Client.Generate(ctx, BuildPrompt(cfg.Template, question, contexts), options...)
}

// BuildPrompt 用问题和上下文填充模板
func BuildPrompt(template, question string, contexts []string) string {
	// 单遍替换，问题或上下文中出现的占位符不会被再次展开
	replacer := strings.NewReplacer(
		"{context}", strings.Join(contexts, contextSeparator),
		"{input}", question,
	)
	return replacer.Replace(template)
}

// SetTemplate 设置自定义提示词模板
func (r *RAGService) SetTemplate(template string) *RAGService {
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}
