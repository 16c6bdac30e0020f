package handler

import (
	"net/http"

	"github.com/fyerfyer/rag-chat/api/middleware"
	"github.com/fyerfyer/rag-chat/api/model"
	"github.com/fyerfyer/rag-chat/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// QueryHandler 处理问答请求
type QueryHandler struct {
	queryService *services.QueryService
	logger       *logrus.Logger
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(queryService *services.QueryService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		logger:       middleware.GetLogger(),
	}
}

// Query 回答问题
// POST /api/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			middleware.FieldError:   err.Error(),
			middleware.FieldTraceID: middleware.GetTraceID(c),
		}).Warn("Invalid query request")

		middleware.HandleError(c, middleware.NewValidationError(services.MsgQueryEmpty, err))
		return
	}

	answer, err := h.queryService.Answer(c.Request.Context(), req.Query)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.QueryResponse{
		Answer: answer.Text,
		Metadata: model.QueryMetadata{
			Timestamp: model.FormatTimestamp(answer.Timestamp),
			Model:     answer.Model,
		},
	})
}
