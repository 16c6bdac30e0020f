package pipeline

import (
	"context"
	"errors"
	"io"
)

// Record 写入或检索到的文本分块及其元数据
type Record struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// VectorStore 向量存储接口
type VectorStore interface {
	// AddDocuments 以一个批次写入所有分块
	AddDocuments(ctx context.Context, records []Record) error

	// Search 返回与查询最相关的至多k个分块
	Search(ctx context.Context, query string, k int) ([]Record, error)
}

// Chain 检索问答链接口
type Chain interface {
	// Invoke 执行一次检索和生成，返回包含回答字段的结果
	Invoke(ctx context.Context, input string) (map[string]interface{}, error)
}

// Pipeline 初始化完成后共享的存储和问答链
type Pipeline struct {
	Store VectorStore
	Chain Chain
	Model string // 生成模型名称
	Mock  bool   // 是否为演示模式
}

// Close 释放存储持有的资源
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	if c, ok := p.Store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := p.Chain.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Builder 构建流水线的函数
type Builder func(ctx context.Context) (*Pipeline, error)
