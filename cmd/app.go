package cmd

import (
	"context"
	"fmt"

	"github.com/smartedupay/aicore/internal/config"
	"github.com/smartedupay/aicore/internal/embed"
	"github.com/smartedupay/aicore/internal/gateway"
	"github.com/smartedupay/aicore/internal/log"
	"github.com/smartedupay/aicore/internal/ratelimit"
	"github.com/smartedupay/aicore/internal/retrieval"
	"github.com/smartedupay/aicore/internal/store"
)

// app bundles the wired components every command draws from.
type app struct {
	cfg      *config.Config
	logger   log.Logger
	embedder *embed.Service
	stores   map[string]*store.Store
	answerer *retrieval.Answerer
}

// buildApp wires configuration into live components. Nothing dials out here;
// clients initialize lazily on first use.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSON: cfg.Log.JSON})

	embedder := embed.NewService(embedFactory(cfg), logger)

	stores := map[string]*store.Store{
		"project": store.New(cfg.Index.ProjectDir, logger),
		"user":    store.New(cfg.Index.UserDir, logger),
	}

	svc := retrieval.NewService(embedder, logger, stores)
	gw := buildGateway(cfg, logger)
	answerer := retrieval.NewAnswerer(svc, gw, logger, cfg.Index.TopK)

	return &app{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		stores:   stores,
		answerer: answerer,
	}, nil
}

func embedFactory(cfg *config.Config) embed.Factory {
	return func(ctx context.Context) (embed.Backend, error) {
		switch cfg.Embedding.Provider {
		case "openai":
			return embed.NewOpenAIBackend(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL,
				cfg.Embedding.Model, cfg.Embedding.Dimension)
		case "hash":
			return embed.NewHashBackend(cfg.Embedding.Dimension), nil
		default:
			return embed.NewGeminiBackend(ctx, cfg.Gemini.APIKey,
				cfg.Embedding.Model, cfg.Embedding.Dimension)
		}
	}
}

// buildGateway assembles the provider chain in fallback order: Vertex,
// hosted Gemini, Azure, OpenAI, then the local model.
func buildGateway(cfg *config.Config, logger log.Logger) *gateway.Gateway {
	temperature := float32(cfg.Provider.Temperature)
	policy := gateway.RetryPolicy{
		MaxRetries:  cfg.Provider.MaxRetries,
		BackoffBase: cfg.Provider.BackoffBase,
	}

	var window ratelimit.Window
	if cfg.Rate.WindowPath != "" && cfg.Rate.WindowLimit > 0 {
		window = ratelimit.NewFileWindow(cfg.Rate.WindowPath, cfg.Rate.WindowLimit, logger)
	}
	governor := ratelimit.NewGovernor(ratelimit.NewPacer(cfg.PacerInterval()), window, logger)

	providers := []gateway.Provider{
		gateway.NewVertexProvider(gateway.VertexOptions{
			Project:     cfg.Vertex.Project,
			Location:    cfg.Vertex.Location,
			Model:       cfg.Vertex.Model,
			Temperature: &temperature,
			MaxTokens:   int32(cfg.Provider.MaxTokens),
		}, logger),
		gateway.NewGeminiProvider(gateway.GeminiOptions{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			Temperature: &temperature,
			MaxTokens:   int32(cfg.Provider.MaxTokens),
		}, logger),
		gateway.NewAzureProvider(gateway.AzureOptions{
			Endpoint:    cfg.Azure.Endpoint,
			APIKey:      cfg.Azure.APIKey,
			Deployment:  cfg.Azure.Deployment,
			APIVersion:  cfg.Azure.APIVersion,
			Timeout:     cfg.Provider.Timeout,
			Policy:      policy,
			Limiter:     governor,
			Temperature: &temperature,
			MaxTokens:   cfg.Provider.MaxTokens,
		}, logger),
		gateway.NewOpenAIProvider(gateway.OpenAIOptions{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Timeout:     cfg.Provider.Timeout,
			Policy:      policy,
			Limiter:     governor,
			Temperature: &temperature,
			MaxTokens:   cfg.Provider.MaxTokens,
		}, logger),
		gateway.NewOllamaProvider(gateway.OllamaOptions{
			Host:      cfg.Local.Host,
			Model:     cfg.Local.Model,
			Timeout:   cfg.Provider.Timeout,
			MaxTokens: cfg.Local.MaxTokens,
		}, logger),
	}

	return gateway.New(governor, logger, providers...)
}
