package pipeline

import (
	"context"
	"sync"
)

// mockAnswerPrefix 演示模式回答的前缀
const mockAnswerPrefix = "DEMO: no OpenAI key provided or mock mode enabled. Received query: "

// mockQueryLimit 演示回答中保留的查询字符数
const mockQueryLimit = 200

// MockStore 演示模式下的内存存储，检索时返回全部分块
type MockStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMockStore 创建演示存储
func NewMockStore() *MockStore {
	return &MockStore{}
}

// AddDocuments 追加分块
func (s *MockStore) AddDocuments(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// Search 忽略查询和k，返回全部分块的副本
func (s *MockStore) Search(_ context.Context, _ string, _ int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Len 返回已保存的分块数量
func (s *MockStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MockChain 演示模式下的问答链，回显查询
type MockChain struct{}

// Invoke 返回带有查询前200个字符的演示回答
func (MockChain) Invoke(_ context.Context, input string) (map[string]interface{}, error) {
	answer := MockAnswer(input)
	return map[string]interface{}{
		FieldAnswer:     answer,
		FieldOutputText: answer,
	}, nil
}

// MockAnswer 生成演示回答
func MockAnswer(input string) string {
	runes := []rune(input)
	if len(runes) > mockQueryLimit {
		runes = runes[:mockQueryLimit]
	}
	return mockAnswerPrefix + string(runes)
}
