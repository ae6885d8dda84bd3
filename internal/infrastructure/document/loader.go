package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

var _ output.DocumentSourcePort = (*DirLoader)(nil)

// ErrNoSources is returned when a collection directory holds no usable files.
var ErrNoSources = errors.New("no knowledge sources")

// DirLoader reads <root>/<collection>/ recursively. Supported files are
// .txt, .md and .html/.htm; anything else is skipped.
type DirLoader struct {
	root   string
	logger output.LoggerPort
}

func NewDirLoader(root string, logger output.LoggerPort) *DirLoader {
	return &DirLoader{root: root, logger: logger}
}

func (l *DirLoader) Load(ctx context.Context, collection entity.Collection) ([]entity.SourceText, error) {
	dir := filepath.Join(l.root, string(collection))
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrNoSources, collection, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w for %s: %s is not a directory", ErrNoSources, collection, dir)
	}

	var sources []entity.SourceText
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" && ext != ".html" && ext != ".htm" {
			l.logger.Debug("Skipping unsupported file", "path", path)
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		text := string(raw)
		if ext == ".html" || ext == ".htm" {
			if text, err = HTMLToText(text, nil); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
		}
		if strings.TrimSpace(text) == "" {
			return nil
		}

		name, err := filepath.Rel(dir, path)
		if err != nil {
			name = filepath.Base(path)
		}
		sources = append(sources, entity.SourceText{Name: filepath.ToSlash(name), Text: text})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w for %s in %s", ErrNoSources, collection, dir)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}
