package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fyerfyer/rag-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sampleDocs 准备三个二维向量的测试分块
func sampleDocs() []Document {
	return []Document{
		{ID: "a", DocumentID: "doc1", Title: "Doc", ChunkIndex: 0, Text: "east", Vector: []float32{1, 0},
			Metadata: map[string]interface{}{"id": "doc1", "chunk_index": 0}},
		{ID: "b", DocumentID: "doc1", Title: "Doc", ChunkIndex: 1, Text: "north-east", Vector: []float32{1, 1}},
		{ID: "c", DocumentID: "doc2", Title: "Other", ChunkIndex: 0, Text: "north", Vector: []float32{0, 1}},
	}
}

// newTestSQLite 创建内存SQLite仓库
func newTestSQLite(t *testing.T) *SQLiteRepository {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "Failed to create in-memory database")
	require.NoError(t, db.AutoMigrate(&models.ChunkRecord{}))

	return NewSQLiteRepositoryWithDB(db, Config{Dimension: 2, DistanceType: Cosine})
}

// TestRepositories 对内存和SQLite实现运行同一组用例
func TestRepositories(t *testing.T) {
	ctx := context.Background()

	mem, err := NewRepository(Config{Type: "memory", Dimension: 2})
	require.NoError(t, err)

	repos := map[string]Repository{
		"memory": mem,
		"sqlite": newTestSQLite(t),
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.AddBatch(ctx, sampleDocs()))

			count, err := repo.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, count)
			assert.Equal(t, 2, repo.Dimension())

			results, err := repo.Search(ctx, []float32{1, 0}, SearchFilter{MaxResults: 2})
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "a", results[0].Document.ID)
			assert.Equal(t, "b", results[1].Document.ID)
			assert.InDelta(t, 1.0, results[0].Score, 1e-5)
			assert.Equal(t, "east", results[0].Document.Text)
			assert.Equal(t, []float32{1, 0}, results[0].Document.Vector)

			// 按文档过滤
			results, err = repo.Search(ctx, []float32{1, 0}, SearchFilter{DocumentIDs: []string{"doc2"}})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "c", results[0].Document.ID)

			// 最低分数过滤
			results, err = repo.Search(ctx, []float32{1, 0}, SearchFilter{MinScore: 0.5})
			require.NoError(t, err)
			assert.Len(t, results, 2)

			// 重复写入同一ID不会增加数量
			require.NoError(t, repo.AddBatch(ctx, sampleDocs()[:1]))
			count, err = repo.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, count)

			// 维度错误
			_, err = repo.Search(ctx, []float32{1, 0, 0}, DefaultSearchFilter())
			assert.ErrorIs(t, err, ErrInvalidDimension)
			err = repo.AddBatch(ctx, []Document{{ID: "x", Vector: []float32{1}}})
			assert.ErrorIs(t, err, ErrInvalidDimension)
			err = repo.AddBatch(ctx, []Document{{Vector: []float32{1, 1}}})
			assert.ErrorIs(t, err, ErrInvalidID)

			assert.NoError(t, repo.Close())
		})
	}
}

// TestDistance 测试距离与评分换算
func TestDistance(t *testing.T) {
	d, err := ComputeDistance([]float32{1, 0}, []float32{0, 1}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-6)
	assert.InDelta(t, 0.0, DistanceToScore(d, Cosine), 1e-6)

	d, err = ComputeDistance([]float32{3, 4}, []float32{0, 0}, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-6)

	d, err = ComputeDistance([]float32{1, 2}, []float32{3, 4}, DotProduct)
	require.NoError(t, err)
	assert.InDelta(t, 11.0, d, 1e-6)

	_, err = ComputeDistance([]float32{1}, []float32{1, 2}, Cosine)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = ComputeDistance([]float32{1}, []float32{1}, DistanceType("manhattan"))
	assert.Error(t, err)

	assert.ErrorIs(t, ValidateVector(nil, 0), ErrEmptyVector)
}

// fakeQdrant 模拟Qdrant REST接口
type fakeQdrant struct {
	mu       sync.Mutex
	created  bool
	points   []map[string]interface{}
	requests []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/chunks":
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{},"status":"ok"}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
		f.created = true
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
		var req struct {
			Points []map[string]interface{} `json:"points"`
		}
		_ = json.Unmarshal(body, &req)
		f.points = append(f.points, req.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/search":
		resp := map[string]interface{}{"status": "ok", "result": []interface{}{}}
		if len(f.points) > 0 {
			p := f.points[0]
			resp["result"] = []interface{}{
				map[string]interface{}{"id": p["id"], "score": 0.9, "payload": p["payload"]},
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/count":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"result": map[string]interface{}{"count": len(f.points)},
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

// TestQdrantRepository 测试Qdrant REST调用
func TestQdrantRepository(t *testing.T) {
	fake := &fakeQdrant{}
	server := httptest.NewServer(fake)
	defer server.Close()

	repo, err := NewRepository(Config{
		Type:       "qdrant",
		URL:        server.URL + "/",
		Collection: "chunks",
		Dimension:  2,
	})
	require.NoError(t, err)
	assert.True(t, fake.created, "集合不存在时应自动创建")

	ctx := context.Background()
	require.NoError(t, repo.AddBatch(ctx, sampleDocs()))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := repo.Search(ctx, []float32{1, 0}, SearchFilter{MaxResults: 1, DocumentIDs: []string{"doc1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, "doc1", results[0].Document.DocumentID)
	assert.Equal(t, "east", results[0].Document.Text)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)

	assert.Contains(t, fake.requests, "PUT /collections/chunks/points")
	assert.NoError(t, repo.Close())
}

// TestQdrantUnavailable 测试Qdrant不可达
func TestQdrantUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewQdrantRepository(Config{URL: url, Collection: "chunks", Dimension: 2})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewQdrantRepository(Config{Collection: "chunks", Dimension: 2})
	assert.ErrorIs(t, err, ErrUnavailable)
}
