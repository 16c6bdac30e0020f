package embedding

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingError 嵌入错误类型
type EmbeddingError struct {
	Code       int    // 错误码
	Message    string // 错误消息
	StatusCode int    // 上游HTTP状态码，未知时为0
}

// Error 实现error接口
func (e EmbeddingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding error (code=%d, status=%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// HTTPStatus 返回上游HTTP状态码
func (e EmbeddingError) HTTPStatus() int {
	return e.StatusCode
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入为空
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey = "invalid API key"
	ErrMsgRateLimited   = "too many requests, rate limit exceeded"
	ErrMsgEmptyInput    = "input text cannot be empty"
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}

// wrapProviderError 将go-openai返回的错误转换为 EmbeddingError，保留状态码
func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return EmbeddingError{
			Code:       codeForStatus(apiErr.HTTPStatusCode),
			Message:    apiErr.Message,
			StatusCode: apiErr.HTTPStatusCode,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return EmbeddingError{
			Code:       codeForStatus(reqErr.HTTPStatusCode),
			Message:    reqErr.Error(),
			StatusCode: reqErr.HTTPStatusCode,
		}
	}

	return EmbeddingError{Code: ErrCodeNetworkError, Message: err.Error()}
}

// codeForStatus 根据HTTP状态码选择错误码
func codeForStatus(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}
