package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
	anthropiccompleter "github.com/becomeliminal/nim-memory/memory/completer/anthropic"
	openaicompleter "github.com/becomeliminal/nim-memory/memory/completer/openai"
	"github.com/becomeliminal/nim-memory/memory/embedder/cache"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	openaiembedder "github.com/becomeliminal/nim-memory/memory/embedder/openai"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/postgres"
	"github.com/becomeliminal/nim-memory/memory/store/sqlite"
)

// app holds the wired components of one process.
type app struct {
	cfg        *config.Config
	manager    *memory.Manager
	index      *chromem.Index // nil unless store.index-path is set
	dispatcher *memory.Dispatcher
	engine     *engine.Engine

	closers []func() error
}

type store interface {
	memory.ProfileStore
	memory.EpisodeStore
	Migrate(ctx context.Context) error
	Close() error
}

// newApp wires stores and the embedder. withModels also wires the reply and
// extraction models, which need API credentials.
func newApp(ctx context.Context, cfg *config.Config, withModels bool) (*app, error) {
	a := &app{cfg: cfg}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	var episodes memory.EpisodeStore = st
	if cfg.Store.IndexPath != "" {
		path := cfg.Store.IndexPath
		if path == "memory" {
			path = ""
		}
		a.index, err = chromem.New(st, path)
		if err != nil {
			a.Close()
			return nil, err
		}
		episodes = a.index
	}

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Embedding.CacheSize > 0 {
		cached, err := cache.New(embedder, cfg.Embedding.Provider+"/"+cfg.Embedding.Model, cfg.Embedding.CacheSize)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { cached.Close(); return nil })
		embedder = cached
	}

	a.manager = memory.NewManager(st, episodes, embedder, cfg.Memory,
		memory.WithMetrics(memory.NewMetrics(prometheus.DefaultRegisterer)),
	)

	if !withModels {
		return a, nil
	}

	chat, err := newChatModel(cfg.Completion, cfg.Completion.Model)
	if err != nil {
		a.Close()
		return nil, err
	}
	extractor, err := newChatModel(cfg.Completion, cfg.Completion.ExtractionModel)
	if err != nil {
		a.Close()
		return nil, err
	}

	var opts []memory.PipelineOption
	if cfg.Completion.ExtractionRPS > 0 {
		opts = append(opts, memory.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.Completion.ExtractionRPS), 2)))
	}
	a.dispatcher = memory.NewDispatcher(memory.NewPipeline(a.manager, extractor, opts...))
	a.engine = engine.NewEngine(chat,
		engine.WithMemory(a.manager),
		engine.WithDispatcher(a.dispatcher),
	)
	return a, nil
}

// Close drains background extraction and releases resources in reverse order.
func (a *app) Close() {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Memory.ExtractionTimeout+5*time.Second)
		if err := a.dispatcher.Close(ctx); err != nil {
			slog.Warn("extraction jobs still running at shutdown", "component", "companion", "error", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "component", "companion", "error", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	var (
		st  store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = sqlite.Open(cfg.Store.DSN)
	case "postgres":
		st, err = postgres.Open(cfg.Store.DSN, cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newEmbedder(cfg config.Embedding) (memory.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return openaiembedder.New(openaiembedder.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "onnx":
		return newONNXEmbedder(cfg)
	case "mock":
		return mock.New(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// chatModel is what both completion providers implement.
type chatModel interface {
	memory.Completer
	engine.ChatModel
}

func newChatModel(cfg config.Completion, model string) (chatModel, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropiccompleter.New(anthropiccompleter.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   model,
		}), nil
	case "openai":
		return openaicompleter.New(openaicompleter.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   model,
		})
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}
