package model

import "time"

// TimestampLayout 响应中时间戳的格式，UTC毫秒精度
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp 格式化为UTC时间戳
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ErrorResponse 通用错误响应
type ErrorResponse struct {
	Error   string `json:"error"`              // 错误消息
	TraceID string `json:"trace_id,omitempty"` // 调用链追踪ID
}

// 配额错误响应中的固定说明
const (
	QuotaDetail          = "Your OpenAI plan may be out of quota or requests are being rate-limited. Check your billing, usage, and consider using a smaller model or retrying later."
	QuotaDocs            = "https://platform.openai.com/docs/guides/error-codes/api-errors"
	QuotaTroubleshooting = "https://js.langchain.com/docs/troubleshooting/errors/MODEL_RATE_LIMIT/"
)

// QuotaErrorResponse 配额或限流错误响应
type QuotaErrorResponse struct {
	Error           string `json:"error"`
	Detail          string `json:"detail"`
	Docs            string `json:"docs"`
	Troubleshooting string `json:"troubleshooting"`
	Timestamp       string `json:"timestamp"`
	TraceID         string `json:"trace_id,omitempty"`
}

// NewQuotaErrorResponse 创建配额错误响应
func NewQuotaErrorResponse(message string, now time.Time) *QuotaErrorResponse {
	return &QuotaErrorResponse{
		Error:           message,
		Detail:          QuotaDetail,
		Docs:            QuotaDocs,
		Troubleshooting: QuotaTroubleshooting,
		Timestamp:       FormatTimestamp(now),
	}
}

// IngestResponse 入库响应
type IngestResponse struct {
	Success bool `json:"success"`
	Added   int  `json:"added"` // 写入的分块数量
}

// QueryMetadata 回答的附加信息
type QueryMetadata struct {
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
}

// QueryResponse 问答响应，没有回答时answer为null
type QueryResponse struct {
	Answer   *string       `json:"answer"`
	Metadata QueryMetadata `json:"metadata"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status      string `json:"status"`
	VectorStore bool   `json:"vectorStore"`
	QAChain     bool   `json:"qaChain"`
}

// AdminEnv 管理接口展示的模型配置
type AdminEnv struct {
	OpenAIModel    *string `json:"openai_model"`
	EmbeddingModel *string `json:"embedding_model"`
	Collection     *string `json:"collection"`
}

// AdminResponse 管理接口响应
type AdminResponse struct {
	OK                bool     `json:"ok"`
	MockMode          bool     `json:"mockMode"`
	HasOpenAIKey      bool     `json:"hasOpenAIKey"`
	VectorStoreURL    *string  `json:"vectorStoreURL"`
	CachedVectorStore bool     `json:"cachedVectorStore"`
	CachedQAChain     bool     `json:"cachedQaChain"`
	State             string   `json:"state"`
	InitAttempts      int      `json:"initAttempts"`
	LastError         string   `json:"lastError,omitempty"`
	Env               AdminEnv `json:"env"`
}
