package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fyerfyer/rag-chat/api/middleware"
	"github.com/fyerfyer/rag-chat/api/model"
	"github.com/fyerfyer/rag-chat/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IngestHandler 处理文档入库请求
type IngestHandler struct {
	ingestService *services.IngestService
	logger        *logrus.Logger
}

// NewIngestHandler 创建入库处理器
func NewIngestHandler(ingestService *services.IngestService) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		logger:        middleware.GetLogger(),
	}
}

// Ingest 处理文档入库
// POST /api/ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			middleware.FieldError:   err.Error(),
			middleware.FieldTraceID: middleware.GetTraceID(c),
		}).Warn("Invalid ingest request")

		middleware.HandleError(c, middleware.NewValidationError(ingestBindMessage(err), err))
		return
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), req.Documents)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.IngestResponse{
		Success: true,
		Added:   result.Added,
	})
}

// ingestBindMessage 根据解码失败的字段选择错误消息
func ingestBindMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch {
		case strings.HasSuffix(typeErr.Field, ".text"):
			return services.MsgDocumentText
		case strings.HasPrefix(typeErr.Field, "documents."):
			return services.MsgDocumentIDAndTitle
		}
	}
	return services.MsgDocumentsNotArray
}
