package pipeline

import (
	"context"
	"fmt"

	"github.com/fyerfyer/rag-chat/internal/llm"
)

// DefaultTopK 默认检索的分块数量
const DefaultTopK = 4

// 问答链结果中的字段名
const (
	FieldAnswer     = "answer"
	FieldOutputText = "output_text"
	FieldContext    = "context"
)

// RetrievalChain 先检索再生成的问答链
type RetrievalChain struct {
	store VectorStore
	rag   *llm.RAGService
	topK  int
}

// NewRetrievalChain 创建检索问答链
func NewRetrievalChain(store VectorStore, rag *llm.RAGService, topK int) *RetrievalChain {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RetrievalChain{
		store: store,
		rag:   rag,
		topK:  topK,
	}
}

// Invoke 检索相关分块并调用大模型生成回答
func (c *RetrievalChain) Invoke(ctx context.Context, input string) (map[string]interface{}, error) {
	docs, err := c.store.Search(ctx, input, c.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	contexts := make([]string, len(docs))
	for i, d := range docs {
		contexts[i] = d.Content
	}

	resp, err := c.rag.Answer(ctx, input, contexts)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return map[string]interface{}{
		FieldAnswer:  resp.Text,
		FieldContext: docs,
	}, nil
}
