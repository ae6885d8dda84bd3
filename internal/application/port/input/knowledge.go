package input

import (
	"context"

	"query-assistant/internal/domain/entity"
)

type KnowledgeLoader interface {
	Setup(ctx context.Context, collection entity.Collection) (*entity.IngestReport, error)
	SetupAll(ctx context.Context) ([]entity.IngestReport, error)
}
