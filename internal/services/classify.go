package services

import (
	"net/http"
	"strings"
)

// quotaMarkers 表示配额或限流的错误消息片段，匹配时不区分大小写
var quotaMarkers = []string{
	"quota",
	"insufficientquotaerror",
	"rate limit",
	"rate_limit",
}

// statusCoder 携带上游HTTP状态码的错误
type statusCoder interface {
	HTTPStatus() int
}

// ClassifyProviderError 将模型调用失败归类为配额限流或内部错误
func ClassifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if IsQuotaOrRateLimit(err) {
		return ErrQuotaOrRateLimit
	}
	return ErrInternal
}

// IsQuotaOrRateLimit 判断错误链中是否有429状态码或配额相关消息
func IsQuotaOrRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if hasStatus(err, http.StatusTooManyRequests) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// hasStatus 遍历整个错误链（包括多重包装）查找指定状态码
func hasStatus(err error, status int) bool {
	if err == nil {
		return false
	}

	if sc, ok := err.(statusCoder); ok && sc.HTTPStatus() == status {
		return true
	}

	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return hasStatus(e.Unwrap(), status)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if hasStatus(inner, status) {
				return true
			}
		}
	}
	return false
}
