package handler

import (
	"net/http"

	"github.com/fyerfyer/rag-chat/api/model"
	"github.com/fyerfyer/rag-chat/internal/pipeline"
	"github.com/gin-gonic/gin"
)

// StatusProvider 提供流水线状态
type StatusProvider interface {
	Status() pipeline.Status
}

// AdminInfo 管理接口展示的静态配置
type AdminInfo struct {
	MockMode       bool
	HasOpenAIKey   bool
	VectorStoreURL string
	OpenAIModel    string
	EmbeddingModel string
	Collection     string
}

// HealthHandler 处理健康检查和管理信息请求
type HealthHandler struct {
	status StatusProvider
	info   AdminInfo
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(status StatusProvider, info AdminInfo) *HealthHandler {
	return &HealthHandler{status: status, info: info}
}

// Health 报告流水线组件是否就绪，不会触发初始化
// GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	st := h.status.Status()
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:      "ok",
		VectorStore: st.StoreReady,
		QAChain:     st.ChainReady,
	})
}

// Admin 报告运行模式和配置
// GET /api/admin
func (h *HealthHandler) Admin(c *gin.Context) {
	st := h.status.Status()
	c.JSON(http.StatusOK, model.AdminResponse{
		OK:                true,
		MockMode:          h.info.MockMode,
		HasOpenAIKey:      h.info.HasOpenAIKey,
		VectorStoreURL:    optional(h.info.VectorStoreURL),
		CachedVectorStore: st.StoreReady,
		CachedQAChain:     st.ChainReady,
		State:             string(st.State),
		InitAttempts:      st.Attempts,
		LastError:         st.LastError,
		Env: model.AdminEnv{
			OpenAIModel:    optional(h.info.OpenAIModel),
			EmbeddingModel: optional(h.info.EmbeddingModel),
			Collection:     optional(h.info.Collection),
		},
	})
}

// optional 空字符串输出为null
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
