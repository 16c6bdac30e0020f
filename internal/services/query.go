package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/fyerfyer/rag-chat/internal/cache"
	"github.com/fyerfyer/rag-chat/internal/pipeline"
	"github.com/sirupsen/logrus"
)

// DefaultAnswerFields 按顺序查找回答文本的字段
var DefaultAnswerFields = []string{pipeline.FieldAnswer, pipeline.FieldOutputText}

// DefaultModel 未配置模型时报告的模型名称
const DefaultModel = "gpt-4"

// Answer 查询结果
type Answer struct {
	Text      *string   // 回答文本，链没有返回时为nil
	Model     string    // 生成模型
	Timestamp time.Time // 生成时间
}

// QueryService 问答服务
// 负责校验查询、调用问答链并对失败分类
type QueryService struct {
	pipelines    PipelineProvider
	answerFields []string
	model        string
	cache        cache.Cache
	cacheTTL     time.Duration
	logger       *logrus.Logger
	now          func() time.Time
}

// QueryOption 问答服务配置选项
type QueryOption func(*QueryService)

// WithAnswerFields 设置回答字段的查找顺序
func WithAnswerFields(fields ...string) QueryOption {
	return func(s *QueryService) {
		if len(fields) > 0 {
			s.answerFields = fields
		}
	}
}

// WithModel 设置流水线未报告模型时使用的名称
func WithModel(model string) QueryOption {
	return func(s *QueryService) {
		if model != "" {
			s.model = model
		}
	}
}

// WithAnswerCache 启用回答缓存
func WithAnswerCache(c cache.Cache, ttl time.Duration) QueryOption {
	return func(s *QueryService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithQueryLogger 设置日志记录器
func WithQueryLogger(logger *logrus.Logger) QueryOption {
	return func(s *QueryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewQueryService 创建问答服务
func NewQueryService(pipelines PipelineProvider, opts ...QueryOption) *QueryService {
	s := &QueryService{
		pipelines:    pipelines,
		answerFields: DefaultAnswerFields,
		model:        DefaultModel,
		logger:       logrus.StandardLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer 回答查询，查询原样传给问答链且只调用一次
func (s *QueryService) Answer(ctx context.Context, query string) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, newServiceError(ErrValidation, MsgQueryEmpty, nil)
	}

	key := answerCacheKey(query)
	if s.cache != nil {
		if text, found, err := s.cache.Get(ctx, key); err != nil {
			s.logger.WithError(err).Warn("Answer cache lookup failed")
		} else if found {
			return &Answer{Text: &text, Model: s.model, Timestamp: s.now()}, nil
		}
	}

	p, err := s.pipelines.Get(ctx)
	if err != nil {
		return nil, newServiceError(ErrServiceInitializing, MsgInitializing, err)
	}
	if p == nil || p.Chain == nil {
		return nil, newServiceError(ErrServiceInitializing, MsgInitializing, pipeline.ErrNotReady)
	}

	result, err := p.Chain.Invoke(ctx, query)
	if err != nil {
		if errors.Is(ClassifyProviderError(err), ErrQuotaOrRateLimit) {
			return nil, newServiceError(ErrQuotaOrRateLimit, MsgQuota, err)
		}
		return nil, newServiceError(ErrInternal, MsgInternal, err)
	}

	answer := &Answer{
		Text:      LookupAnswer(result, s.answerFields),
		Model:     s.model,
		Timestamp: s.now(),
	}
	if p.Model != "" {
		answer.Model = p.Model
	}

	if s.cache != nil && answer.Text != nil {
		if err := s.cache.Set(ctx, key, *answer.Text, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache answer")
		}
	}
	return answer, nil
}

// LookupAnswer 按顺序返回第一个非空字符串字段，没有时返回nil
func LookupAnswer(result map[string]interface{}, fields []string) *string {
	for _, field := range fields {
		if text, ok := result[field].(string); ok && text != "" {
			return &text
		}
	}
	return nil
}

// answerCacheKey 根据完整查询生成缓存键
func answerCacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return cache.GenerateCacheKey("answer", hex.EncodeToString(sum[:]))
}
