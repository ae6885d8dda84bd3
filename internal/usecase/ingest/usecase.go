package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"query-assistant/internal/application/port/input"
	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

var _ input.KnowledgeLoader = (*UseCase)(nil)

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("query-assistant/knowledge-chunk"))

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	setupConcurrency    = 2
)

type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

type UseCase struct {
	sources  output.DocumentSourcePort
	index    output.KnowledgeIndexPort
	splitter textsplitter.TextSplitter
	logger   output.LoggerPort

	// one setup per collection at a time
	running sync.Map
}

func New(sources output.DocumentSourcePort, index output.KnowledgeIndexPort, logger output.LoggerPort, opts Options) *UseCase {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = min(DefaultChunkOverlap, opts.ChunkSize/5)
	}
	return &UseCase{
		sources: sources,
		index:   index,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		),
		logger: logger,
	}
}

func (uc *UseCase) Setup(ctx context.Context, collection entity.Collection) (*entity.IngestReport, error) {
	if !collection.Valid() {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	if _, busy := uc.running.LoadOrStore(collection, struct{}{}); busy {
		return nil, fmt.Errorf("setup of %s is already running", collection)
	}
	defer uc.running.Delete(collection)

	log := uc.logger.WithField("collection", string(collection))
	log.Info("Loading knowledge sources")

	sources, err := uc.sources.Load(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}

	var docs []entity.Document
	for _, src := range sources {
		chunks, err := uc.splitter.SplitText(src.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", src.Name, err)
		}
		for i, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			docs = append(docs, entity.Document{
				ID:      chunkID(collection, src.Name, i),
				Content: chunk,
				Metadata: map[string]any{
					entity.MetaSource:     src.Name,
					entity.MetaCollection: string(collection),
					entity.MetaChunk:      i,
				},
			})
		}
	}

	// a setup replaces the collection, so repeated runs never duplicate chunks
	if err := uc.index.Reset(ctx, collection); err != nil {
		return nil, fmt.Errorf("reset %s: %w", collection, err)
	}
	if err := uc.index.AddDocuments(ctx, collection, docs); err != nil {
		return nil, fmt.Errorf("index %s: %w", collection, err)
	}

	report := &entity.IngestReport{Collection: collection, Files: len(sources), Chunks: len(docs)}
	log.Info("Knowledge base ready", "files", report.Files, "chunks", report.Chunks)
	return report, nil
}

func chunkID(collection entity.Collection, source string, chunk int) string {
	return uuid.NewSHA1(chunkNamespace, fmt.Appendf(nil, "%s/%s#%d", collection, source, chunk)).String()
}

// SetupAll ingests every collection, two at a time. The first failure cancels the rest.
func (uc *UseCase) SetupAll(ctx context.Context) ([]entity.IngestReport, error) {
	collections := entity.Collections()
	reports := make([]entity.IngestReport, len(collections))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(setupConcurrency)
	for i, c := range collections {
		i, c := i, c
		g.Go(func() error {
			report, err := uc.Setup(ctx, c)
			if err != nil {
				return err
			}
			reports[i] = *report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
