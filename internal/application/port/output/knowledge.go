package output

import (
	"context"

	"query-assistant/internal/domain/entity"
)

type KnowledgeBasePort interface {
	Search(ctx context.Context, collection entity.Collection, query string, topK int) ([]entity.Passage, error)
}

type KnowledgeIndexPort interface {
	AddDocuments(ctx context.Context, collection entity.Collection, docs []entity.Document) error
	// Reset removes every document of the collection.
	Reset(ctx context.Context, collection entity.Collection) error
}

// DocumentSourcePort yields the raw sources of a collection.
type DocumentSourcePort interface {
	Load(ctx context.Context, collection entity.Collection) ([]entity.SourceText, error)
}
