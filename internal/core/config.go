package core

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/jo-hoe/ocrdesk/internal/imageprocessing"
	"github.com/jo-hoe/ocrdesk/internal/logging"
	"gopkg.in/yaml.v3"
)

// Version is shown in the about section and printed by the CLI.
const Version = "v0.5"

const (
	EnvAPIKey = "OCRDESK_API_KEY"
	EnvAPIURL = "OCRDESK_API_URL"

	EnginePaddle    = "paddle"
	EngineTesseract = "tesseract"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

// Cache configures the OCR response cache. Type "none" disables it.
type Cache struct {
	Type       string `yaml:"type"`
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

type Retry struct {
	MaxRetries        int `yaml:"maxRetries"`
	InitialIntervalMs int `yaml:"initialIntervalMs"`
}

type Log struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type Paths struct {
	Output    string `yaml:"output"`
	Images    string `yaml:"images"`
	Templates string `yaml:"templates"`
}

type Tesseract struct {
	Languages []string `yaml:"languages"`
}

type ServiceConfig struct {
	Port           int    `yaml:"port"`
	ThumbnailWidth int    `yaml:"thumbnailWidth"`
	Engine         string `yaml:"engine"`

	APIKey                    string `yaml:"api_key"`
	APIURL                    string `yaml:"api_url"`
	UseDocOrientationClassify bool   `yaml:"use_doc_orientation_classify"`
	UseDocUnwarping           bool   `yaml:"use_doc_unwarping"`
	UseChartRecognition       bool   `yaml:"use_chart_recognition"`
	PrettifyMarkdown          bool   `yaml:"prettifyMarkdown"`
	Visualize                 bool   `yaml:"visualize"`
	TimeoutSeconds            int    `yaml:"timeoutSeconds"`

	Retry     Retry           `yaml:"retry"`
	Database  Database        `yaml:"database"`
	Cache     Cache           `yaml:"cache"`
	Log       Log             `yaml:"log"`
	Paths     Paths           `yaml:"paths"`
	Tesseract Tesseract       `yaml:"tesseract"`
	Commands  []CommandConfig `yaml:"commands"`
}

// DefaultConfig returns the values used for keys missing from the YAML file.
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:             8080,
		ThumbnailWidth:   240,
		Engine:           EnginePaddle,
		PrettifyMarkdown: true,
		Visualize:        true,
		TimeoutSeconds:   120,
		Retry: Retry{
			MaxRetries:        2,
			InitialIntervalMs: 500,
		},
		Database: Database{
			Type:             "sqlite",
			ConnectionString: "ocrdesk.db",
		},
		Cache: Cache{
			Type:       "none",
			TTLSeconds: 86400,
		},
		Log: Log{
			Level: "DEBUG",
			Dir:   "logs",
		},
		Paths: Paths{
			Output:    "output",
			Images:    "imgs",
			Templates: "template",
		},
		Tesseract: Tesseract{
			Languages: []string{"eng"},
		},
	}
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	return config, nil
}

// ParseConfig parses YAML on top of the defaults, applies environment overrides and validates the result.
func ParseConfig(data []byte) (*ServiceConfig, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault behaves like LoadConfig but falls back to the defaults
// and environment overrides when the file does not exist.
func LoadConfigOrDefault(configPath string) (*ServiceConfig, error) {
	config, err := LoadConfig(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return ParseConfig(nil)
	}
	return config, err
}

// LoggingOptions maps the log section onto the logger setup. The configured
// level applies to the console; the file keeps INFO and above.
func (c *ServiceConfig) LoggingOptions() (logging.Options, error) {
	opts := logging.DefaultOptions()
	if c.Log.Dir != "" {
		opts.Dir = c.Log.Dir
	}
	if c.Log.Level != "" {
		level, err := logging.ParseLevel(c.Log.Level)
		if err != nil {
			return opts, fmt.Errorf("invalid log level: %w", err)
		}
		opts.ConsoleLevel = level
	}
	return opts, nil
}

func applyEnvOverrides(config *ServiceConfig) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		config.APIKey = key
	}
	if apiURL := strings.TrimSpace(os.Getenv(EnvAPIURL)); apiURL != "" {
		config.APIURL = apiURL
	}
}

// Validate checks the ranges and cross-field rules of the configuration.
func (c *ServiceConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.ThumbnailWidth <= 0 {
		return fmt.Errorf("thumbnailWidth must be positive, got %d", c.ThumbnailWidth)
	}
	switch c.Engine {
	case EnginePaddle:
		if err := validateAPIURL(c.APIURL); err != nil {
			return err
		}
	case EngineTesseract:
	default:
		return fmt.Errorf("unsupported engine: %s", c.Engine)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeoutSeconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.maxRetries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log configuration: %w", err)
	}
	switch c.Cache.Type {
	case "none", "":
	case "redis":
		if c.Cache.Address == "" {
			return fmt.Errorf("cache.address is required for redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}

	// Validate commands
	if err := validateCommands(c.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	return nil
}

func validateAPIURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("api_url is required for engine %s", EnginePaddle)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid api_url %q: %w", raw, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("api_url must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true

		if !imageprocessing.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command: %s", cmd.Name)
		}
	}

	return nil
}
