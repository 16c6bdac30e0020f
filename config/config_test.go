package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清空可能影响配置的环境变量
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "SERVER_PORT", "LOG_LEVEL", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"EMBEDDING_MODEL", "VECTOR_STORE_URL", "CHROMA_SERVER_URL", "VECTOR_STORE_COLLECTION",
		"CHROMA_COLLECTION", "CACHE_ADDRESS", "REDIS_ADDR", "CACHE_PASSWORD", "REDIS_PASSWORD",
		"WEB_DIR", "USE_MOCK", "DEMO_MODE", "PIPELINE_MOCK", "VECTOR_STORE_TYPE",
	} {
		t.Setenv(key, "")
	}
}

// writeFile 在临时目录写入文件
func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "gpt-4", cfg.OpenAI.Model)
	assert.InDelta(t, 0.2, cfg.OpenAI.Temperature, 1e-6)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "thummimng", cfg.VectorStore.Collection)
	assert.Equal(t, "sqlite", cfg.VectorStore.Type)
	assert.Equal(t, 1536, cfg.VectorStore.Dimension)
	assert.Equal(t, 4, cfg.Pipeline.TopK)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.InitTimeout)
	assert.Equal(t, 800, cfg.Document.ChunkSize)
	assert.Equal(t, 100, cfg.Document.ChunkOverlap)
	assert.False(t, cfg.Cache.Enable)
	assert.Equal(t, []string{"answer", "output_text"}, cfg.Query.AnswerFields)
	assert.Equal(t, 0, cfg.Embedding.Dimensions)
	assert.Empty(t, cfg.OpenAI.PromptTemplate)

	// 没有密钥时进入演示模式
	assert.False(t, cfg.HasOpenAIKey())
	assert.True(t, cfg.MockMode())
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_RAG_OPENAI_KEY", "sk-from-env")

	path := writeFile(t, "config.yaml", `
server:
  port: 9090
  mode: debug
openai:
  api_key: ${TEST_RAG_OPENAI_KEY}
  model: gpt-4o-mini
  timeout: 15s
  system_prompt: Answer in one sentence.
  prompt_template: "Context: {context} Question: {input}"
embedding:
  dimensions: 1536
query:
  answer_fields: [text, answer]
vector_store:
  type: qdrant
  url: http://localhost:6333
pipeline:
  top_k: 6
  min_score: 0.3
document:
  chunk_size: 500
  chunk_overlap: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 15*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, "Answer in one sentence.", cfg.OpenAI.SystemPrompt)
	assert.Equal(t, "Context: {context} Question: {input}", cfg.OpenAI.PromptTemplate)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, []string{"text", "answer"}, cfg.Query.AnswerFields)
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.URL)
	assert.Equal(t, 6, cfg.Pipeline.TopK)
	assert.InDelta(t, 0.3, cfg.Pipeline.MinScore, 1e-6)
	assert.Equal(t, 500, cfg.Document.ChunkSize)
	assert.False(t, cfg.MockMode())
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadLegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7070")
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("OPENAI_MODEL", "gpt-3.5-turbo")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("CHROMA_COLLECTION", "docs")
	t.Setenv("CHROMA_SERVER_URL", "http://chroma:8000")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-legacy", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, "docs", cfg.VectorStore.Collection)
	assert.Equal(t, "http://chroma:8000", cfg.VectorStore.URL)
	assert.Equal(t, "redis:6379", cfg.Cache.Address)
	assert.False(t, cfg.MockMode())

	// 新变量名优先
	t.Setenv("SERVER_PORT", "6060")
	t.Setenv("VECTOR_STORE_COLLECTION", "primary")
	cfg, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, "primary", cfg.VectorStore.Collection)
}

func TestMockModeEnv(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want bool
	}{
		{"USE_MOCK大写", "USE_MOCK", "TRUE", true},
		{"DEMO_MODE", "DEMO_MODE", "true", true},
		{"USE_MOCK为false", "USE_MOCK", "false", false},
		{"USE_MOCK为其它值", "USE_MOCK", "yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OPENAI_API_KEY", "sk-test")
			t.Setenv(tt.key, tt.val)

			cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.MockMode())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", "TEST_RAG_DOTENV_MODEL=gpt-4-turbo\nOPENAI_MODEL=${TEST_RAG_DOTENV_MODEL}\n")
	t.Cleanup(func() {
		os.Unsetenv("TEST_RAG_DOTENV_MODEL")
	})

	// 已存在的环境变量不会被.env覆盖
	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", cfg.OpenAI.Model)
	assert.Equal(t, "gpt-4-turbo", os.Getenv("TEST_RAG_DOTENV_MODEL"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"重叠不小于分块大小", "document:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"未知向量库类型", "vector_store:\n  type: chroma\n"},
		{"qdrant缺少地址", "vector_store:\n  type: qdrant\n"},
		{"redis缓存缺少地址", "cache:\n  enable: true\n  type: redis\n"},
		{"端口越界", "server:\n  port: 70000\n"},
		{"非法日志级别", "log:\n  level: verbose\n"},
		{"嵌入维度与向量库不一致", "embedding:\n  dimensions: 256\n"},
		{"回答字段为空", "query:\n  answer_fields: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, "config.yaml", tt.config))
			assert.Error(t, err)
		})
	}
}
