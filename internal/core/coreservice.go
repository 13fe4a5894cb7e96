package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/ocrdesk/internal/cache"
	"github.com/jo-hoe/ocrdesk/internal/capture"
	"github.com/jo-hoe/ocrdesk/internal/clipboard"
	"github.com/jo-hoe/ocrdesk/internal/database"
	"github.com/jo-hoe/ocrdesk/internal/imageprocessing"
	"github.com/jo-hoe/ocrdesk/internal/markdown"
	"github.com/jo-hoe/ocrdesk/internal/ocrapi"
)

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	cache           cache.Cache
	engine          ocrapi.Engine
	capturer        *capture.Capturer
	clipboard       clipboard.Clipboard
	markdown        *markdown.Manager
	pipeline        *imageprocessing.Pipeline
}

// Option replaces one of the collaborators built from the configuration.
type Option func(*CoreService)

func WithEngine(engine ocrapi.Engine) Option {
	return func(s *CoreService) { s.engine = engine }
}

func WithDatabase(databaseService database.DatabaseService) Option {
	return func(s *CoreService) { s.databaseService = databaseService }
}

func WithCache(c cache.Cache) Option {
	return func(s *CoreService) { s.cache = c }
}

func WithCapturer(capturer *capture.Capturer) Option {
	return func(s *CoreService) { s.capturer = capturer }
}

func WithClipboard(cb clipboard.Clipboard) Option {
	return func(s *CoreService) { s.clipboard = cb }
}

// WithHTTPClient sets the client used to download result images.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *CoreService) { s.markdown = markdown.NewManager(httpClient) }
}

func NewCoreService(ctx context.Context, config *ServiceConfig, opts ...Option) (*CoreService, error) {
	service := &CoreService{config: config}
	for _, opt := range opts {
		opt(service)
	}

	var err error
	if service.pipeline, err = getPipeline(config); err != nil {
		return nil, err
	}
	if service.engine == nil {
		if service.engine, err = getEngine(config); err != nil {
			return nil, err
		}
	}
	if service.cache == nil {
		if service.cache, err = getCache(ctx, config); err != nil {
			return nil, err
		}
	}
	if service.databaseService == nil {
		if service.databaseService, err = getDatabaseService(config); err != nil {
			_ = service.cache.Close()
			return nil, err
		}
	}
	if service.capturer == nil {
		service.capturer = capture.NewCapturer(nil)
	}
	if service.clipboard == nil {
		service.clipboard = clipboard.Default()
	}
	if service.markdown == nil {
		service.markdown = markdown.NewManager(nil)
	}

	slog.Info("core service ready",
		"engine", service.engine.Name(),
		"database", config.Database.Type,
		"cache", config.Cache.Type,
		"pipeline_commands", service.pipeline.Len())
	return service, nil
}

// Config returns the configuration the service was built from.
func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// DefaultOptions returns the recognition flags configured in the YAML file.
func (service *CoreService) DefaultOptions() ocrapi.Options {
	return ocrapi.Options{
		UseDocOrientationClassify: service.config.UseDocOrientationClassify,
		UseDocUnwarping:           service.config.UseDocUnwarping,
		UseChartRecognition:       service.config.UseChartRecognition,
		PrettifyMarkdown:          service.config.PrettifyMarkdown,
		Visualize:                 service.config.Visualize,
	}
}

func (service *CoreService) Close() error {
	return errors.Join(service.cache.Close(), service.databaseService.Close())
}

func getDatabaseService(DatabaseConfig *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(DatabaseConfig.Database.Type, DatabaseConfig.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", DatabaseConfig.Database.Type)
	return databaseService, nil
}

func getEngine(config *ServiceConfig) (ocrapi.Engine, error) {
	switch config.Engine {
	case EngineTesseract:
		engine, err := ocrapi.NewTesseractEngine(config.Tesseract.Languages...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tesseract engine: %w", err)
		}
		return engine, nil
	default:
		if config.APIKey == "" {
			slog.Warn("no api key configured, requests are sent without authorization", "env", EnvAPIKey)
		}
		return ocrapi.NewClient(config.APIURL, config.APIKey,
			ocrapi.WithTimeout(time.Duration(config.TimeoutSeconds)*time.Second),
			ocrapi.WithRetry(config.Retry.MaxRetries, time.Duration(config.Retry.InitialIntervalMs)*time.Millisecond),
		), nil
	}
}

func getCache(ctx context.Context, config *ServiceConfig) (cache.Cache, error) {
	c, err := cache.New(ctx, cache.Options{
		Type:     config.Cache.Type,
		Address:  config.Cache.Address,
		Password: config.Cache.Password,
		DB:       config.Cache.DB,
		TTL:      time.Duration(config.Cache.TTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return c, nil
}

func getPipeline(config *ServiceConfig) (*imageprocessing.Pipeline, error) {
	configs := make([]imageprocessing.CommandConfig, 0, len(config.Commands))
	for _, cmd := range config.Commands {
		configs = append(configs, imageprocessing.CommandConfig{Name: cmd.Name, Params: cmd.Params})
	}
	pipeline, err := imageprocessing.NewPipelineFromConfig(imageprocessing.DefaultRegistry, configs)
	if err != nil {
		return nil, fmt.Errorf("failed to build image pipeline: %w", err)
	}
	return pipeline, nil
}
