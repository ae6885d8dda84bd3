package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/chroma"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

var (
	_ output.KnowledgeBasePort  = (*KnowledgeBase)(nil)
	_ output.KnowledgeIndexPort = (*KnowledgeBase)(nil)
)

var ErrUnavailable = errors.New("knowledge base unavailable")

const addBatchSize = 64

type Config struct {
	ChromaURL      string
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	// ScoreThreshold drops passages scoring below it; 0 keeps everything.
	ScoreThreshold float32
}

type opener func(collection entity.Collection) (vectorstores.VectorStore, error)

// collectionRemover is implemented by chroma.Store.
type collectionRemover interface {
	RemoveCollection() error
}

// KnowledgeBase keeps one vector store collection per knowledge collection.
// Stores are opened on first use so the service can start while Chroma is down.
type KnowledgeBase struct {
	mu     sync.Mutex
	stores map[entity.Collection]vectorstores.VectorStore
	open   opener
	cfg    Config
	logger output.LoggerPort
}

func New(open func(collection entity.Collection) (vectorstores.VectorStore, error), cfg Config, logger output.LoggerPort) *KnowledgeBase {
	return &KnowledgeBase{
		stores: make(map[entity.Collection]vectorstores.VectorStore),
		open:   open,
		cfg:    cfg,
		logger: logger,
	}
}

func NewChroma(cfg Config, logger output.LoggerPort) *KnowledgeBase {
	return New(func(collection entity.Collection) (vectorstores.VectorStore, error) {
		return openChroma(cfg, collection)
	}, cfg, logger)
}

func openChroma(cfg Config, collection entity.Collection) (vectorstores.VectorStore, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	// the namespace doubles as the chroma collection name
	store, err := chroma.New(
		chroma.WithChromaURL(cfg.ChromaURL),
		chroma.WithEmbedder(embedder),
		chroma.WithOpenAIAPIKey(cfg.APIKey),
		chroma.WithNameSpace(string(collection)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to chroma at %s: %w", cfg.ChromaURL, err)
	}
	return &store, nil
}

func (kb *KnowledgeBase) vectorStore(collection entity.Collection) (vectorstores.VectorStore, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if store, ok := kb.stores[collection]; ok {
		return store, nil
	}
	if kb.open == nil {
		return nil, ErrUnavailable
	}
	store, err := kb.open(collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	kb.logger.Info("Connected to vector store", "url", kb.cfg.ChromaURL, "collection", string(collection))
	kb.stores[collection] = store
	return store, nil
}

func (kb *KnowledgeBase) Search(ctx context.Context, collection entity.Collection, query string, topK int) ([]entity.Passage, error) {
	if !collection.Valid() {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	store, err := kb.vectorStore(collection)
	if err != nil {
		return nil, err
	}

	opts := []vectorstores.Option{vectorstores.WithNameSpace(string(collection))}
	if kb.cfg.ScoreThreshold > 0 {
		opts = append(opts, vectorstores.WithScoreThreshold(kb.cfg.ScoreThreshold))
	}

	docs, err := store.SimilaritySearch(ctx, query, topK, opts...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	passages := make([]entity.Passage, 0, len(docs))
	for _, d := range docs {
		source, _ := d.Metadata[entity.MetaSource].(string)
		passages = append(passages, entity.Passage{
			Content: d.PageContent,
			Source:  source,
			Score:   d.Score,
		})
	}
	kb.logger.Debug("Knowledge search", "collection", string(collection), "results", len(passages))
	return passages, nil
}

func (kb *KnowledgeBase) AddDocuments(ctx context.Context, collection entity.Collection, docs []entity.Document) error {
	if !collection.Valid() {
		return fmt.Errorf("unknown collection %q", collection)
	}
	store, err := kb.vectorStore(collection)
	if err != nil {
		return err
	}

	for start := 0; start < len(docs); start += addBatchSize {
		end := min(start+addBatchSize, len(docs))

		batch := make([]schema.Document, 0, end-start)
		for _, d := range docs[start:end] {
			meta := make(map[string]any, len(d.Metadata)+1)
			for k, v := range d.Metadata {
				meta[k] = v
			}
			meta[entity.MetaChunkID] = d.ID
			batch = append(batch, schema.Document{PageContent: d.Content, Metadata: meta})
		}

		if _, err := store.AddDocuments(ctx, batch, vectorstores.WithNameSpace(string(collection))); err != nil {
			return fmt.Errorf("add documents %d-%d to %s: %w", start, end, collection, err)
		}
	}
	return nil
}

// Reset drops everything indexed for the collection. The next write reopens
// it empty.
func (kb *KnowledgeBase) Reset(ctx context.Context, collection entity.Collection) error {
	if !collection.Valid() {
		return fmt.Errorf("unknown collection %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	store, err := kb.vectorStore(collection)
	if err != nil {
		return err
	}
	remover, ok := store.(collectionRemover)
	if !ok {
		return fmt.Errorf("vector store for %s cannot be reset", collection)
	}
	if err := remover.RemoveCollection(); err != nil {
		return fmt.Errorf("reset %s: %w", collection, err)
	}

	kb.mu.Lock()
	delete(kb.stores, collection)
	kb.mu.Unlock()

	kb.logger.Info("Knowledge collection reset", "collection", string(collection))
	return nil
}
