package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/fyerfyer/rag-chat/api/model"
	"github.com/fyerfyer/rag-chat/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation   = "VALIDATION_ERROR"   // 输入验证错误
	ErrorTypeInitializing = "INITIALIZING_ERROR" // 服务初始化中
	ErrorTypeQuota        = "QUOTA_ERROR"        // 模型配额或限流
	ErrorTypeInternal     = "INTERNAL_ERROR"     // 内部服务器错误
)

// AppError 应用错误结构体
// Message 返回给客户端，Cause 只写入日志
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Code    int    // HTTP状态码
	Cause   error  // 底层原因
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap 返回底层原因
func (e AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, cause error) AppError {
	return AppError{Type: ErrorTypeValidation, Message: message, Code: http.StatusBadRequest, Cause: cause}
}

// NewInitializingError 创建服务初始化中错误
func NewInitializingError(message string, cause error) AppError {
	return AppError{Type: ErrorTypeInitializing, Message: message, Code: http.StatusServiceUnavailable, Cause: cause}
}

// NewQuotaError 创建配额或限流错误
func NewQuotaError(message string, cause error) AppError {
	return AppError{Type: ErrorTypeQuota, Message: message, Code: http.StatusTooManyRequests, Cause: cause}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, cause error) AppError {
	return AppError{Type: ErrorTypeInternal, Message: message, Code: http.StatusInternalServerError, Cause: cause}
}

// FromServiceError 将服务层错误映射为应用错误
func FromServiceError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	message := services.MsgInternal
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}

	switch services.KindOf(err) {
	case services.ErrValidation:
		return NewValidationError(message, err)
	case services.ErrServiceInitializing:
		return NewInitializingError(message, err)
	case services.ErrQuotaOrRateLimit:
		return NewQuotaError(services.MsgQuota, err)
	default:
		// 内部错误不向客户端透露细节
		return NewInternalError(services.MsgInternal, err)
	}
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					FieldError:   r,
					"stack":      string(debug.Stack()),
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: GetTraceID(c),
				}).Error("Panic recovered in API request")

				c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{
					Error:   services.MsgInternal,
					TraceID: GetTraceID(c),
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := FromServiceError(c.Errors.Last().Err)
		traceID := GetTraceID(c)

		entry := log.WithFields(logrus.Fields{
			"error_type": appErr.Type,
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
		})
		if appErr.Cause != nil {
			entry = entry.WithField(FieldError, appErr.Cause.Error())
		}
		if appErr.Code >= http.StatusInternalServerError {
			entry.Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		if appErr.Type == ErrorTypeQuota {
			resp := model.NewQuotaErrorResponse(appErr.Message, time.Now())
			resp.TraceID = traceID
			c.AbortWithStatusJSON(appErr.Code, resp)
			return
		}
		c.AbortWithStatusJSON(appErr.Code, model.ErrorResponse{
			Error:   appErr.Message,
			TraceID: traceID,
		})
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
