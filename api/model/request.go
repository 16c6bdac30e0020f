package model

import "github.com/fyerfyer/rag-chat/internal/document"

// IngestRequest 文档入库请求
// documents 缺失或为null时由服务层报告"必须是数组"
type IngestRequest struct {
	Documents []document.Document `json:"documents"`
}

// QueryRequest 问答请求
type QueryRequest struct {
	Query string `json:"query"`
}
