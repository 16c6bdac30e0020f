package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fyerfyer/rag-chat/internal/embedding"
	"github.com/fyerfyer/rag-chat/internal/llm"
	"github.com/fyerfyer/rag-chat/internal/vectordb"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// wordVector 根据关键词生成二维向量，便于断言检索顺序
func wordVector(text string) []float32 {
	switch {
	case strings.Contains(text, "cat"):
		return []float32{1, 0}
	case strings.Contains(text, "dog"):
		return []float32{0, 1}
	default:
		return []float32{1, 1}
	}
}

// newFakeEmbedder 创建按关键词返回向量的嵌入客户端
func newFakeEmbedder(t *testing.T) *embedding.MockClient {
	client := embedding.NewMockClient(t)
	client.EXPECT().EmbedBatch(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = wordVector(text)
			}
			return out, nil
		}).Maybe()
	client.EXPECT().Embed(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, text string) ([]float32, error) {
			return wordVector(text), nil
		}).Maybe()
	return client
}

// TestEmbeddingStore 测试嵌入存储的写入与检索
func TestEmbeddingStore(t *testing.T) {
	ctx := context.Background()
	repo, err := vectordb.NewRepository(vectordb.Config{Type: "memory", Dimension: 2})
	require.NoError(t, err)

	store := NewEmbeddingStore(newFakeEmbedder(t), nil, repo, 0.5)
	records := []Record{
		{Content: "the cat sat", Metadata: map[string]interface{}{"id": "doc1", "title": "Pets", "chunk_index": 0}},
		{Content: "the dog ran", Metadata: map[string]interface{}{"id": "doc1", "title": "Pets", "chunk_index": 1}},
		{Content: "plain words", Metadata: map[string]interface{}{"id": "doc2", "title": "Misc", "chunk_index": 0}},
	}
	require.NoError(t, store.AddDocuments(ctx, records))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := store.Search(ctx, "where is the cat", 4)
	require.NoError(t, err)
	require.Len(t, hits, 2, "dog分块低于最低分数应被过滤")
	assert.Equal(t, "the cat sat", hits[0].Content)
	assert.Equal(t, "doc1", hits[0].Metadata["id"])
	assert.Equal(t, "Pets", hits[0].Metadata["title"])
	assert.Equal(t, 0, hits[0].Metadata["chunk_index"])
	assert.Equal(t, "plain words", hits[1].Content)

	hits, err = store.Search(ctx, "cat", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	require.NoError(t, store.AddDocuments(ctx, nil))
	assert.NoError(t, store.Close())
}

// TestRetrievalChain 测试检索问答链
func TestRetrievalChain(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	require.NoError(t, store.AddDocuments(ctx, []Record{{Content: "Go was designed at Google."}}))

	generator := llm.NewMockClient(t)
	generator.EXPECT().Generate(mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Go was designed at Google.") &&
			strings.Contains(prompt, "Question:\nWho designed Go?")
	}), mock.Anything).Return(&llm.Response{Text: "Google"}, nil).Once()

	chain := NewRetrievalChain(store, llm.NewRAG(generator), 0)
	result, err := chain.Invoke(ctx, "Who designed Go?")
	require.NoError(t, err)
	assert.Equal(t, "Google", result[FieldAnswer])
	assert.Len(t, result[FieldContext], 1)
}

// TestRetrievalChainError 测试生成失败时保留原始错误
func TestRetrievalChainError(t *testing.T) {
	generator := llm.NewMockClient(t)
	quotaErr := llm.LLMError{Code: llm.ErrCodeRateLimited, Message: "quota", StatusCode: http.StatusTooManyRequests}
	generator.EXPECT().Generate(mock.Anything, mock.Anything, mock.Anything).Return(nil, quotaErr)

	chain := NewRetrievalChain(NewMockStore(), llm.NewRAG(generator), 4)
	_, err := chain.Invoke(context.Background(), "q")
	var llmErr llm.LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, http.StatusTooManyRequests, llmErr.HTTPStatus())
}

// TestMockPipeline 测试演示模式
func TestMockPipeline(t *testing.T) {
	ctx := context.Background()
	build := NewBuilder(Options{APIKey: "", ChatModel: "gpt-4"}, quietLogger())
	p, err := build(ctx)
	require.NoError(t, err)
	assert.True(t, p.Mock)
	assert.Equal(t, "gpt-4", p.Model)

	result, err := p.Chain.Invoke(ctx, "hello")
	require.NoError(t, err)
	want := "DEMO: no OpenAI key provided or mock mode enabled. Received query: hello"
	assert.Equal(t, want, result[FieldAnswer])
	assert.Equal(t, want, result[FieldOutputText])

	// 查询只保留前200个字符
	long := strings.Repeat("é", 250)
	assert.Equal(t, mockAnswerPrefix+strings.Repeat("é", 200), MockAnswer(long))

	store := p.Store.(*MockStore)
	require.NoError(t, store.AddDocuments(ctx, []Record{{Content: "a"}, {Content: "b"}}))
	hits, err := store.Search(ctx, "anything", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "演示存储返回全部分块")
	assert.Equal(t, 2, store.Len())

	assert.True(t, Options{Mock: true, APIKey: "sk"}.MockMode())
	assert.False(t, Options{APIKey: "sk"}.MockMode())
}

// fakeRequests 记录模拟接口收到的请求参数
type fakeRequests struct {
	mu         sync.Mutex
	dimensions []int
	messages   []openai.ChatCompletionMessage
}

// newFakeOpenAI 同时模拟嵌入和对话接口，rec为nil时不记录请求
func newFakeOpenAI(t *testing.T, rec *fakeRequests) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/embeddings":
			var req struct {
				Input      []string `json:"input"`
				Dimensions int      `json:"dimensions"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if rec != nil {
				rec.mu.Lock()
				rec.dimensions = append(rec.dimensions, req.Dimensions)
				rec.mu.Unlock()
			}
			data := make([]map[string]interface{}, len(req.Input))
			for i, text := range req.Input {
				data[i] = map[string]interface{}{"object": "embedding", "index": i, "embedding": wordVector(text)}
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data})
		case "/v1/chat/completions":
			if rec != nil {
				var req openai.ChatCompletionRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				rec.mu.Lock()
				rec.messages = req.Messages
				rec.mu.Unlock()
			}
			_, _ = w.Write([]byte(`{"model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"It is a cat."},"finish_reason":"stop"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// TestLivePipeline 测试使用OpenAI兼容接口构建的真实流水线
func TestLivePipeline(t *testing.T) {
	server := newFakeOpenAI(t, nil)
	defer server.Close()

	build := NewBuilder(Options{
		APIKey:         "sk-test",
		BaseURL:        server.URL + "/v1",
		ChatModel:      "gpt-4",
		EmbeddingModel: "text-embedding-3-small",
		BatchSize:      2,
		Workers:        2,
		VectorStore:    vectordb.Config{Type: "memory", Dimension: 2},
	}, quietLogger())

	ctx := context.Background()
	p, err := build(ctx)
	require.NoError(t, err)
	defer p.Close()
	assert.False(t, p.Mock)
	assert.Equal(t, "gpt-4", p.Model)

	require.NoError(t, p.Store.AddDocuments(ctx, []Record{
		{Content: "a cat", Metadata: map[string]interface{}{"id": "d", "title": "T", "chunk_index": 0}},
		{Content: "a dog", Metadata: map[string]interface{}{"id": "d", "title": "T", "chunk_index": 1}},
		{Content: "other", Metadata: map[string]interface{}{"id": "d", "title": "T", "chunk_index": 2}},
	}))

	result, err := p.Chain.Invoke(ctx, "what animal?")
	require.NoError(t, err)
	assert.Equal(t, "It is a cat.", result[FieldAnswer])
}

// TestLivePipelinePromptOptions 测试嵌入维度、提示词模板和系统提示词传到接口
func TestLivePipelinePromptOptions(t *testing.T) {
	rec := &fakeRequests{}
	server := newFakeOpenAI(t, rec)
	defer server.Close()

	build := NewBuilder(Options{
		APIKey:         "sk-test",
		BaseURL:        server.URL + "/v1",
		ChatModel:      "gpt-4",
		EmbeddingModel: "text-embedding-3-small",
		Dimensions:     2,
		PromptTemplate: "CTX:{context}|Q:{input}",
		SystemPrompt:   "Be terse.",
		VectorStore:    vectordb.Config{Type: "memory", Dimension: 2},
	}, quietLogger())

	ctx := context.Background()
	p, err := build(ctx)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Store.AddDocuments(ctx, []Record{
		{Content: "a cat", Metadata: map[string]interface{}{"id": "d", "title": "T", "chunk_index": 0}},
	}))
	_, err = p.Chain.Invoke(ctx, "cat?")
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, d := range rec.dimensions {
		assert.Equal(t, 2, d)
	}
	require.Len(t, rec.messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, rec.messages[0].Role)
	assert.Equal(t, "Be terse.", rec.messages[0].Content)
	assert.Equal(t, "CTX:a cat|Q:cat?", rec.messages[1].Content)
}
