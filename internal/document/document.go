package document

// Document 待入库的原始文档
type Document struct {
	ID    string `json:"id" validate:"required"`    // 文档标识，作为分块的分组键
	Title string `json:"title" validate:"required"` // 文档标题
	Text  string `json:"text" validate:"required"`  // 文档正文
}

// TextChunk 文档分块及其位置信息
type TextChunk struct {
	Text       string // 分块文本
	DocumentID string // 来源文档ID
	Title      string // 来源文档标题
	Index      int    // 在来源文档中的序号，从0开始
}

// Metadata 返回写入向量库的元数据
func (c TextChunk) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"id":          c.DocumentID,
		"title":       c.Title,
		"chunk_index": c.Index,
	}
}

// ChunkDocuments 按输入顺序切分多个文档
// 每个文档的分块序号从0开始
func (c *Chunker) ChunkDocuments(docs []Document) []TextChunk {
	var chunks []TextChunk
	for _, doc := range docs {
		for i, text := range c.Split(doc.Text) {
			chunks = append(chunks, TextChunk{
				Text:       text,
				DocumentID: doc.ID,
				Title:      doc.Title,
				Index:      i,
			})
		}
	}
	return chunks
}
