package vectordb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyerfyer/rag-chat/internal/database"
	"github.com/fyerfyer/rag-chat/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLiteRepository 基于GORM和SQLite的持久化向量仓库
// 向量以JSON保存，检索时全量加载后计算相似度
type SQLiteRepository struct {
	db        *gorm.DB
	dimension int
	distType  DistanceType
	ownsDB    bool // 是否由仓库负责关闭连接
}

// NewSQLiteRepository 根据配置打开SQLite向量仓库
func NewSQLiteRepository(config Config) (Repository, error) {
	dbCfg := database.DefaultConfig()
	if config.Path != "" {
		dbCfg.DSN = config.Path
	}

	db, err := database.Open(dbCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	repo := NewSQLiteRepositoryWithDB(db, config)
	repo.ownsDB = true
	return repo, nil
}

// NewSQLiteRepositoryWithDB 使用已有连接创建向量仓库
// 调用方需保证 chunk_records 表已迁移
func NewSQLiteRepositoryWithDB(db *gorm.DB, config Config) *SQLiteRepository {
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}
	return &SQLiteRepository{
		db:        db,
		dimension: config.Dimension,
		distType:  distType,
	}
}

// AddBatch 在一个事务中写入所有分块
func (r *SQLiteRepository) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	records := make([]*models.ChunkRecord, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(doc.Vector, r.dimension); err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}

		record, err := toRecord(doc)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(records, 100).Error
	})
}

// Search 加载候选分块并计算相似度
func (r *SQLiteRepository) Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.ChunkRecord{}).Order("created_at, chunk_index")
	if len(filter.DocumentIDs) > 0 {
		query = query.Where("document_id IN ?", filter.DocumentIDs)
	}

	var records []*models.ChunkRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	docs := make([]Document, 0, len(records))
	for _, record := range records {
		doc, err := fromRecord(record)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return rank(vector, docs, filter, r.distType)
}

// Count 获取分块总数
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ChunkRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Dimension 返回向量维数
func (r *SQLiteRepository) Dimension() int {
	return r.dimension
}

// Close 关闭数据库连接
func (r *SQLiteRepository) Close() error {
	if !r.ownsDB {
		return nil
	}
	return database.Close(r.db)
}

// toRecord 将分块转换为数据库记录
func toRecord(doc Document) (*models.ChunkRecord, error) {
	vector, err := json.Marshal(doc.Vector)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}

	var metadata datatypes.JSON
	if len(doc.Metadata) > 0 {
		metadata, err = json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	return &models.ChunkRecord{
		ID:         doc.ID,
		DocumentID: doc.DocumentID,
		Title:      doc.Title,
		ChunkIndex: doc.ChunkIndex,
		Text:       doc.Text,
		Vector:     vector,
		Dimension:  len(doc.Vector),
		Metadata:   metadata,
		CreatedAt:  doc.CreatedAt,
	}, nil
}

// fromRecord 将数据库记录还原为分块
func fromRecord(record *models.ChunkRecord) (Document, error) {
	doc := Document{
		ID:         record.ID,
		DocumentID: record.DocumentID,
		Title:      record.Title,
		ChunkIndex: record.ChunkIndex,
		Text:       record.Text,
		CreatedAt:  record.CreatedAt,
	}

	if err := json.Unmarshal(record.Vector, &doc.Vector); err != nil {
		return Document{}, fmt.Errorf("failed to decode vector of chunk %s: %w", record.ID, err)
	}
	if len(record.Metadata) > 0 {
		if err := json.Unmarshal(record.Metadata, &doc.Metadata); err != nil {
			return Document{}, fmt.Errorf("failed to decode metadata of chunk %s: %w", record.ID, err)
		}
	}
	return doc, nil
}

func init() {
	RegisterRepository("sqlite", NewSQLiteRepository)
}
