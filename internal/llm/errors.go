package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// LLMError 大模型调用错误类型
type LLMError struct {
	Code       int    // 错误码
	Message    string // 错误消息
	StatusCode int    // 上游HTTP状态码，未知时为0
}

// Error 实现error接口
func (e LLMError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm error (code=%d, status=%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// HTTPStatus 返回上游HTTP状态码
func (e LLMError) HTTPStatus() int {
	return e.StatusCode
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 2001 // 无效的API密钥
	ErrCodeInvalidRequest = 2002 // 无效的请求
	ErrCodeNetworkError   = 2003 // 网络连接错误
	ErrCodeRateLimited    = 2004 // 请求频率超限
	ErrCodeServerError    = 2005 // 服务器错误
	ErrCodeTimeout        = 2006 // 请求超时
	ErrCodeEmptyPrompt    = 2007 // 提示词为空
	ErrCodeEmptyResponse  = 2008 // 模型没有返回内容
)

// NewLLMError 创建新的大模型错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{
		Code:    code,
		Message: message,
	}
}

// wrapProviderError 将go-openai返回的错误转换为 LLMError，保留状态码
func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return LLMError{
			Code:       codeForStatus(apiErr.HTTPStatusCode),
			Message:    apiErr.Message,
			StatusCode: apiErr.HTTPStatusCode,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return LLMError{
			Code:       codeForStatus(reqErr.HTTPStatusCode),
			Message:    reqErr.Error(),
			StatusCode: reqErr.HTTPStatusCode,
		}
	}

	return LLMError{Code: ErrCodeNetworkError, Message: err.Error()}
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
