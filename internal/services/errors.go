package services

import (
	"errors"
)

// 错误分类
var (
	ErrValidation          = errors.New("validation error")
	ErrServiceInitializing = errors.New("service initializing")
	ErrQuotaOrRateLimit    = errors.New("quota or rate limit exceeded")
	ErrInternal            = errors.New("internal error")
)

// 返回给调用方的固定消息
const (
	MsgDocumentsNotArray  = "Documents must be an array"
	MsgDocumentText       = "Each document must have a text field"
	MsgDocumentIDAndTitle = "Each document must have id and title fields"
	MsgQueryEmpty         = "Query must be a non-empty string"
	MsgInitializing       = "Service initializing, try again shortly"
	MsgQuota              = "OpenAI quota or rate limit exceeded."
	MsgInternal           = "Internal server error"
)

// ServiceError 带分类的服务错误
// Kind 为上面的分类之一，Err 为底层原因，只用于日志
type ServiceError struct {
	Kind    error
	Message string
	Err     error
}

// Error 实现error接口
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 同时暴露分类和底层原因，便于 errors.Is 判断
func (e *ServiceError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// newServiceError 创建服务错误
func newServiceError(kind error, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Err: err}
}

// KindOf 返回错误所属的分类，无法识别时归为内部错误
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrServiceInitializing, ErrQuotaOrRateLimit, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}
