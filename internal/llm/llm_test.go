package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// chatRequest 记录发往 /chat/completions 的请求
type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// newChatServer 模拟OpenAI的 /chat/completions 接口
func newChatServer(t *testing.T, status int, got *chatRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
			return
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4-0613",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Paris"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 1, "total_tokens": 11}
		}`))
	}))
}

// TestOpenAIClientGenerate 测试Chat Completions调用
func TestOpenAIClientGenerate(t *testing.T) {
	var got chatRequest
	server := newChatServer(t, http.StatusOK, &got)
	defer server.Close()

	client, err := NewClient("openai", WithAPIKey("test-key"), WithBaseURL(server.URL+"/v1"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", client.Name())

	resp, err := client.Generate(context.Background(), "What is the capital of France?",
		WithGenerateTemperature(0.5))
	require.NoError(t, err)
	assert.Equal(t, "Paris", resp.Text)
	assert.Equal(t, "gpt-4-0613", resp.ModelName)
	assert.Equal(t, 11, resp.TokenCount)
	assert.Equal(t, "stop", resp.FinishReason)

	assert.Equal(t, "gpt-4", got.Model)
	assert.InDelta(t, 0.5, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "What is the capital of France?", got.Messages[0].Content)
}

// TestOpenAIClientQuota 测试配额错误保留429状态码
func TestOpenAIClientQuota(t *testing.T) {
	server := newChatServer(t, http.StatusTooManyRequests, nil)
	defer server.Close()

	client, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL(server.URL+"/v1"))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, http.StatusTooManyRequests, llmErr.HTTPStatus())
	assert.Equal(t, ErrCodeRateLimited, llmErr.Code)
	assert.Contains(t, llmErr.Message, "quota")

	_, err = client.Generate(context.Background(), "")
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
}

// TestNewClientUnknown 测试未注册的客户端类型
func TestNewClientUnknown(t *testing.T) {
	_, err := NewClient("tongyi")
	assert.Error(t, err)

	_, err = NewClient("openai")
	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)
}

// TestBuildPrompt 测试提示词模板填充
func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(DefaultRAGTemplate, "Who wrote it?", []string{"first chunk", "second chunk"})
	assert.Equal(t,
		"\nYou are a knowledgeable assistant. Use ONLY the provided context to answer.\n"+
			"Context:\nfirst chunk\n\nsecond chunk\n\nQuestion:\nWho wrote it?\n",
		prompt)

	// 占位符不会被二次展开
	prompt = BuildPrompt("{context}|{input}", "{context}", []string{"{input}"})
	assert.Equal(t, "{input}|{context}", prompt)
}

// TestRAGServiceAnswer 测试RAG服务调用大模型
func TestRAGServiceAnswer(t *testing.T) {
	t.Run("正常回答", func(t *testing.T) {
		mockClient := NewMockClient(t)
		mockClient.EXPECT().Generate(mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return assert.Contains(t, prompt, "Question:\n  what is go?  ") &&
				assert.Contains(t, prompt, "Go is a language")
		}), mock.Anything).Return(&Response{Text: "A language", ModelName: "mock-model"}, nil)

		rag := NewRAG(mockClient)
		resp, err := rag.Answer(context.Background(), "  what is go?  ", []string{"Go is a language"})
		require.NoError(t, err)
		assert.Equal(t, "A language", resp.Text)
	})

	t.Run("空问题", func(t *testing.T) {
		rag := NewRAG(NewMockClient(t))
		_, err := rag.Answer(context.Background(), "   ", nil)
		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
	})

	t.Run("错误原样返回", func(t *testing.T) {
		mockClient := NewMockClient(t)
		quotaErr := LLMError{Code: ErrCodeRateLimited, Message: "quota", StatusCode: http.StatusTooManyRequests}
		mockClient.EXPECT().Generate(mock.Anything, mock.Anything, mock.Anything).Return(nil, quotaErr)

		rag := NewRAG(mockClient, WithRAGTemperature(0.1), WithRAGMaxTokens(0))
		_, err := rag.Answer(context.Background(), "q", nil)
		assert.Equal(t, quotaErr, err)
	})

	t.Run("自定义模板", func(t *testing.T) {
		mockClient := NewMockClient(t)
		mockClient.EXPECT().Generate(mock.Anything, "Q=q C=c", mock.Anything).
			Return(&Response{Text: "ok"}, nil)

		rag := NewRAG(mockClient).SetTemplate("Q={input} C={context}")
		resp, err := rag.Answer(context.Background(), "q", []string{"c"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text)
	})
}

// TestRAGOptions 测试模板和系统提示词选项传递给客户端
func TestRAGOptions(t *testing.T) {
	mockClient := NewMockClient(t)
	mockClient.EXPECT().Generate(mock.Anything, "[c] q", mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, _ string, options ...GenerateOption) (*Response, error) {
			opts := &GenerateOptions{}
			for _, opt := range options {
				opt(opts)
			}
			assert.Equal(t, "Answer briefly.", opts.System)
			require.NotNil(t, opts.Temperature)
			assert.InDelta(t, 0.2, *opts.Temperature, 1e-6)
			require.NotNil(t, opts.MaxTokens)
			assert.Equal(t, 256, *opts.MaxTokens)
			return &Response{Text: "ok"}, nil
		})

	rag := NewRAG(mockClient,
		WithTemplate("[{context}] {input}"),
		WithRAGSystemPrompt("Answer briefly."),
		WithRAGMaxTokens(256),
	)
	resp, err := rag.Answer(context.Background(), "q", []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	// 空模板不覆盖默认模板
	assert.Equal(t, DefaultRAGTemplate, NewRAG(mockClient, WithTemplate("")).config.Template)
}
