package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anserhq/anser/internal/config"
	"github.com/anserhq/anser/internal/log"
)

// Loader normalizes heterogeneous sources into Documents. It dispatches by
// file extension for local paths and fetches remote URLs in a batch.
//
// Failure policy: a failure on the single requested file path is fatal
// (there is nothing else to return); a failure on one URL of a batch is
// logged and the remainder continues.
type Loader struct {
	cfg     config.LoaderConfig
	cleaner *Cleaner
	logger  log.Logger
}

// NewLoader builds a Loader with its content cleaner.
func NewLoader(cfg config.LoaderConfig, logger log.Logger) (*Loader, error) {
	cleaner, err := NewCleaner(cfg.BoilerplatePatterns, cfg.MinWords)
	if err != nil {
		return nil, err
	}
	return &Loader{cfg: cfg, cleaner: cleaner, logger: logger}, nil
}

// Load reads the given file path and/or URLs into cleaned Documents.
// Documents whose cleaned content falls under the configured minimum word
// count are dropped.
func (l *Loader) Load(ctx context.Context, filePath string, urls []string) ([]Document, error) {
	var docs []Document

	if filePath != "" {
		fileDocs, err := l.loadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", filePath, err)
		}
		docs = append(docs, fileDocs...)
	}

	if len(urls) > 0 {
		docs = append(docs, l.loadURLs(ctx, urls)...)
	}

	kept := docs[:0]
	for _, d := range docs {
		d.Content = l.cleaner.Clean(d.Content)
		if !l.cleaner.Keep(d) {
			l.logger.Debug("dropping near-empty document",
				"source", d.Source(), "words", d.WordCount())
			continue
		}
		kept = append(kept, d)
	}

	return kept, nil
}

// loadFile dispatches on the file extension.
func (l *Loader) loadFile(path string) ([]Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return l.loadPDF(path)
	case ".json":
		return l.loadStructured(path, "json")
	case ".yaml", ".yml":
		return l.loadStructured(path, "yaml")
	default:
		return l.loadText(path)
	}
}

func (l *Loader) loadText(path string) ([]Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return []Document{New(string(raw), path, "text")}, nil
}
