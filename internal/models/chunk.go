package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChunkRecord 向量库中的文档分块记录
// 向量和元数据以JSON形式保存
type ChunkRecord struct {
	ID         string         `gorm:"primaryKey;size:64"` // 分块ID
	DocumentID string         `gorm:"not null;index"`     // 来源文档ID
	Title      string         `gorm:"type:varchar(255)"`  // 来源文档标题
	ChunkIndex int            `gorm:"not null"`           // 分块序号
	Text       string         `gorm:"type:text;not null"` // 分块文本
	Vector     datatypes.JSON `gorm:"type:json;not null"` // 向量
	Dimension  int            `gorm:"not null"`           // 向量维度
	Metadata   datatypes.JSON `gorm:"type:json"`          // 附加元数据
	CreatedAt  time.Time      `gorm:"not null;index"`     // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (r *ChunkRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (ChunkRecord) TableName() string {
	return "chunk_records"
}
