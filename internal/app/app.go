// Package app provides application initialization and dependency injection.
//
// App is the container that wires the retrieval pipeline: it initializes
// Genkit with the configured AI provider, opens the persisted vector index,
// and assembles the RAG system from its parts.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/anserhq/anser/internal/config"
	"github.com/anserhq/anser/internal/index"
	"github.com/anserhq/anser/internal/log"
	"github.com/anserhq/anser/internal/rag"
)

// App is the core application container.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Index    *index.Store
	RAG      *rag.System

	logger log.Logger
	cancel context.CancelFunc
}

// Close releases application resources.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.logger != nil {
		a.logger.Debug("application shut down")
	}
	return nil
}
