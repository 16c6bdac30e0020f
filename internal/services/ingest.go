package services

import (
	"context"
	"errors"
	"time"

	"github.com/fyerfyer/rag-chat/internal/cache"
	"github.com/fyerfyer/rag-chat/internal/document"
	"github.com/fyerfyer/rag-chat/internal/pipeline"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// PipelineProvider 提供已初始化的流水线
type PipelineProvider interface {
	Get(ctx context.Context) (*pipeline.Pipeline, error)
}

// IngestResult 入库结果
type IngestResult struct {
	Added int `json:"added"` // 提交的分块数量
}

// IngestService 文档入库服务
// 负责校验文档、切分并一次性写入向量存储
type IngestService struct {
	pipelines PipelineProvider
	chunker   *document.Chunker
	validate  *validator.Validate
	answers   cache.Cache // 回答缓存，入库成功后清空
	logger    *logrus.Logger
}

// IngestOption 入库服务配置选项
type IngestOption func(*IngestService)

// WithChunker 设置分块器
func WithChunker(chunker *document.Chunker) IngestOption {
	return func(s *IngestService) {
		if chunker != nil {
			s.chunker = chunker
		}
	}
}

// WithIngestCache 设置需要在入库后失效的回答缓存
func WithIngestCache(c cache.Cache) IngestOption {
	return func(s *IngestService) {
		s.answers = c
	}
}

// WithIngestLogger 设置日志记录器
func WithIngestLogger(logger *logrus.Logger) IngestOption {
	return func(s *IngestService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIngestService 创建入库服务
func NewIngestService(pipelines PipelineProvider, opts ...IngestOption) *IngestService {
	// 默认配置一定合法
	chunker, _ := document.NewChunker(document.DefaultChunkerConfig())

	s := &IngestService{
		pipelines: pipelines,
		chunker:   chunker,
		validate:  validator.New(),
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest 校验并入库一批文档，返回提交的分块数量
// 任一文档不合法时整批拒绝，不会写入任何分块
func (s *IngestService) Ingest(ctx context.Context, docs []document.Document) (*IngestResult, error) {
	if err := s.validateDocuments(docs); err != nil {
		return nil, err
	}

	p, err := s.pipelines.Get(ctx)
	if err != nil {
		return nil, newServiceError(ErrServiceInitializing, MsgInitializing, err)
	}
	if p == nil || p.Store == nil {
		return nil, newServiceError(ErrServiceInitializing, MsgInitializing, pipeline.ErrNotReady)
	}

	chunks := s.chunker.ChunkDocuments(docs)
	records := make([]pipeline.Record, len(chunks))
	for i, c := range chunks {
		records[i] = pipeline.Record{Content: c.Text, Metadata: c.Metadata()}
	}

	start := time.Now()
	if err := p.Store.AddDocuments(ctx, records); err != nil {
		return nil, newServiceError(ErrInternal, MsgInternal, err)
	}

	if s.answers != nil {
		if err := s.answers.Clear(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate answer cache after ingest")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"documents": len(docs),
		"chunks":    len(records),
		"duration":  time.Since(start).String(),
	}).Info("Documents ingested")

	return &IngestResult{Added: len(records)}, nil
}

// validateDocuments 按顺序校验每个文档，返回第一个错误
func (s *IngestService) validateDocuments(docs []document.Document) error {
	if docs == nil {
		return newServiceError(ErrValidation, MsgDocumentsNotArray, nil)
	}

	for _, doc := range docs {
		err := s.validate.Struct(doc)
		if err == nil {
			continue
		}

		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return newServiceError(ErrValidation, MsgDocumentIDAndTitle, err)
		}
		for _, fe := range fieldErrs {
			if fe.Field() == "Text" {
				return newServiceError(ErrValidation, MsgDocumentText, err)
			}
		}
		return newServiceError(ErrValidation, MsgDocumentIDAndTitle, err)
	}
	return nil
}
