package document

import (
	"errors"
	"fmt"
)

const (
	// DefaultChunkSize 默认最大分块长度（字符数）
	DefaultChunkSize = 800
	// DefaultChunkOverlap 默认相邻分块重叠长度（字符数）
	DefaultChunkOverlap = 100
)

// ErrInvalidChunkConfig 分块参数无效
var ErrInvalidChunkConfig = errors.New("invalid chunk config")

// ChunkerConfig 分块器配置
type ChunkerConfig struct {
	ChunkSize    int // 最大分块长度（字符数）
	ChunkOverlap int // 相邻分块的重叠长度（字符数）
}

// DefaultChunkerConfig 返回默认分块器配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Validate 检查分块参数
// 重叠长度必须小于分块长度，否则窗口无法向前推进
func (c ChunkerConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidChunkConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be less than chunk size %d",
			ErrInvalidChunkConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunker 固定窗口文本分块器
type Chunker struct {
	config ChunkerConfig
}

// NewChunker 创建分块器，配置无效时返回错误
func NewChunker(config ChunkerConfig) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: config}, nil
}

// Config 返回分块器配置
func (c *Chunker) Config() ChunkerConfig {
	return c.config
}

// Split 按配置切分文本
// 未经NewChunker创建的零值分块器使用默认配置
func (c *Chunker) Split(text string) []string {
	cfg := c.config
	if cfg.Validate() != nil {
		cfg = DefaultChunkerConfig()
	}
	return split(text, cfg.ChunkSize, cfg.ChunkOverlap)
}

// Chunk 将文本切分为有重叠的固定大小窗口
// 长度按Unicode字符计算，窗口到达文本末尾时结束
func Chunk(text string, maxChunkSize, overlap int) ([]string, error) {
	cfg := ChunkerConfig{ChunkSize: maxChunkSize, ChunkOverlap: overlap}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return split(text, maxChunkSize, overlap), nil
}

// ChunkText 使用默认参数分块
func ChunkText(text string) []string {
	return split(text, DefaultChunkSize, DefaultChunkOverlap)
}

// split 调用方需保证 0 <= overlap < size
func split(text string, size, overlap int) []string {
	if text == "" {
		return []string{}
	}

	runes := []rune(text)
	n := len(runes)
	chunks := make([]string, 0, n/(size-overlap)+1)

	start := 0
	for {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))

		if end == n {
			break
		}
		start = end - overlap
	}

	return chunks
}
