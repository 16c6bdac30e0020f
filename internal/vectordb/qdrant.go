package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// QdrantRepository 通过REST接口访问Qdrant的向量仓库
type QdrantRepository struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	distType   DistanceType
	client     *http.Client
}

// qdrantPoint 写入Qdrant的点
type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// qdrantScoredPoint 搜索返回的点
type qdrantScoredPoint struct {
	ID      interface{}            `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// qdrantResponse Qdrant通用响应结构
type qdrantResponse struct {
	Result json.RawMessage `json:"result"`
	Status interface{}     `json:"status"`
}

// NewQdrantRepository 创建Qdrant向量仓库，集合不存在时自动创建
func NewQdrantRepository(config Config) (Repository, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: qdrant url is required", ErrUnavailable)
	}
	if config.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	if config.Dimension <= 0 {
		return nil, errors.New("vector dimension must be positive")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	repo := &QdrantRepository{
		baseURL:    strings.TrimRight(config.URL, "/"),
		apiKey:     config.APIKey,
		collection: config.Collection,
		dimension:  config.Dimension,
		distType:   distType,
		client:     &http.Client{Timeout: timeout},
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := repo.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// ensureCollection 检查集合是否存在，不存在则创建
func (r *QdrantRepository) ensureCollection(ctx context.Context) error {
	status, _, err := r.do(ctx, http.MethodGet, r.collectionPath(""), nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("%w: unexpected status %d checking collection %s", ErrUnavailable, status, r.collection)
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     r.dimension,
			"distance": qdrantDistance(r.distType),
		},
	}
	status, raw, err := r.do(ctx, http.MethodPut, r.collectionPath(""), body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: failed to create collection %s: status %d: %s",
			ErrUnavailable, r.collection, status, string(raw))
	}
	return nil
}

// AddBatch 写入分块，等待Qdrant确认
func (r *QdrantRepository) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]qdrantPoint, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(doc.Vector, r.dimension); err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		points = append(points, qdrantPoint{
			ID:     doc.ID,
			Vector: doc.Vector,
			Payload: map[string]interface{}{
				"document_id": doc.DocumentID,
				"title":       doc.Title,
				"chunk_index": doc.ChunkIndex,
				"text":        doc.Text,
				"created_at":  createdAt.Format(time.RFC3339Nano),
				"metadata":    doc.Metadata,
			},
		})
	}

	status, raw, err := r.do(ctx, http.MethodPut, r.collectionPath("/points?wait=true"),
		map[string]interface{}{"points": points})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant upsert failed: status %d: %s", status, string(raw))
	}
	return nil
}

// Search 调用Qdrant的相似度搜索
func (r *QdrantRepository) Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	limit := filter.MaxResults
	if limit <= 0 {
		limit = DefaultSearchFilter().MaxResults
	}
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if filter.MinScore > 0 {
		body["score_threshold"] = filter.MinScore
	}
	if len(filter.DocumentIDs) > 0 {
		body["filter"] = map[string]interface{}{
			"must": []interface{}{
				map[string]interface{}{
					"key":   "document_id",
					"match": map[string]interface{}{"any": filter.DocumentIDs},
				},
			},
		}
	}

	status, raw, err := r.do(ctx, http.MethodPost, r.collectionPath("/points/search"), body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant search failed: status %d: %s", status, string(raw))
	}

	var resp qdrantResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode qdrant response: %w", err)
	}
	var points []qdrantScoredPoint
	if err := json.Unmarshal(resp.Result, &points); err != nil {
		return nil, fmt.Errorf("failed to decode qdrant points: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, SearchResult{
			Document: payloadToDocument(fmt.Sprint(p.ID), p.Payload),
			Score:    p.Score,
		})
	}
	return results, nil
}

// Count 获取集合中的点数量
func (r *QdrantRepository) Count(ctx context.Context) (int, error) {
	status, raw, err := r.do(ctx, http.MethodPost, r.collectionPath("/points/count"),
		map[string]interface{}{"exact": true})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("qdrant count failed: status %d: %s", status, string(raw))
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode qdrant response: %w", err)
	}
	return resp.Result.Count, nil
}

// Dimension 返回向量维数
func (r *QdrantRepository) Dimension() int {
	return r.dimension
}

// Close 关闭空闲连接
func (r *QdrantRepository) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// collectionPath 拼接集合下的请求路径
func (r *QdrantRepository) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", r.baseURL, url.PathEscape(r.collection), suffix)
}

// do 发送JSON请求并读取响应体
// 网络错误统一包装为 ErrUnavailable
func (r *QdrantRepository) do(ctx context.Context, method, endpoint string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("api-key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read qdrant response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// qdrantDistance 映射距离类型到Qdrant的命名
func qdrantDistance(distType DistanceType) string {
	switch distType {
	case DotProduct:
		return "Dot"
	case Euclidean:
		return "Euclid"
	default:
		return "Cosine"
	}
}

// payloadToDocument 从payload还原分块
func payloadToDocument(id string, payload map[string]interface{}) Document {
	doc := Document{ID: id}
	if v, ok := payload["document_id"].(string); ok {
		doc.DocumentID = v
	}
	if v, ok := payload["title"].(string); ok {
		doc.Title = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		doc.ChunkIndex = int(v)
	}
	if v, ok := payload["text"].(string); ok {
		doc.Text = v
	}
	if v, ok := payload["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			doc.CreatedAt = t
		}
	}
	if v, ok := payload["metadata"].(map[string]interface{}); ok {
		doc.Metadata = v
	}
	return doc
}

func init() {
	RegisterRepository("qdrant", NewQdrantRepository)
}
