package kgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bbiangul/kgraph/chunker"
	"github.com/bbiangul/kgraph/graph"
	"github.com/bbiangul/kgraph/llm"
)

// Config holds all configuration for the extraction engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.kgraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set: "home" (default) uses ~/.kgraph/, "local"
	// uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// NoStore runs the pipeline without persistence or response caching.
	NoStore bool `json:"no_store" yaml:"no_store"`

	// CacheResponses answers repeated identical LLM requests from the store.
	CacheResponses bool `json:"cache_responses" yaml:"cache_responses"`

	Chat    llm.Config           `json:"chat" yaml:"chat"`
	Service graph.ServiceOptions `json:"service" yaml:"service"`

	// Segmentation
	MaxChars int `json:"max_chars" yaml:"max_chars"`

	// Concurrency caps in-flight extraction calls. 1 is strictly sequential.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// RequestTimeout bounds each per-segment extraction call and the
	// consolidation call.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// Output is the default HTML artifact path.
	Output string `json:"output" yaml:"output"`
}

// Defaults applied to zero-valued fields.
const (
	DefaultConcurrency    = 4
	DefaultRequestTimeout = 90 * time.Second
	DefaultOutput         = "knowledge_graph.html"
)

// DefaultConfig returns a Config targeting OpenAI's gpt-4 with the database
// in ~/.kgraph/kgraph.db.
func DefaultConfig() Config {
	return Config{
		DBName:         "kgraph",
		StorageDir:     "home",
		CacheResponses: true,
		Chat: llm.Config{
			Provider:   "openai",
			Model:      llm.DefaultOpenAIModel,
			MaxRetries: llm.DefaultMaxRetries,
		},
		Service: graph.ServiceOptions{
			MaxTokens:                graph.DefaultMaxTokens,
			ExtractionTemperature:    graph.DefaultExtractionTemperature,
			ConsolidationTemperature: graph.DefaultConsolidationTemperature,
		},
		MaxChars:       chunker.DefaultMaxChars,
		Concurrency:    DefaultConcurrency,
		RequestTimeout: DefaultRequestTimeout,
		Output:         DefaultOutput,
	}
}

// LoadConfig reads a YAML or JSON file over DefaultConfig. Durations are
// written as strings such as "90s".
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// providerKeyEnv names the conventional API key variable per provider.
var providerKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"xai":        "XAI_API_KEY",
	"gemini":     "GEMINI_API_KEY",
}

// ApplyEnv overrides fields from KGRAPH_* environment variables. When no
// API key is configured it falls back to the provider's usual variable.
func (c *Config) ApplyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	str("KGRAPH_PROVIDER", &c.Chat.Provider)
	str("KGRAPH_MODEL", &c.Chat.Model)
	str("KGRAPH_BASE_URL", &c.Chat.BaseURL)
	str("KGRAPH_API_KEY", &c.Chat.APIKey)
	str("KGRAPH_DB_PATH", &c.DBPath)
	str("KGRAPH_OUTPUT", &c.Output)

	ints := []struct {
		name string
		dst  *int
	}{
		{"KGRAPH_CONCURRENCY", &c.Concurrency},
		{"KGRAPH_MAX_CHARS", &c.MaxChars},
		{"KGRAPH_MAX_RETRIES", &c.Chat.MaxRetries},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, e.name, v)
		}
		*e.dst = n
	}

	if v := os.Getenv("KGRAPH_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: KGRAPH_REQUEST_TIMEOUT=%q", ErrInvalidConfig, v)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("KGRAPH_NO_STORE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: KGRAPH_NO_STORE=%q", ErrInvalidConfig, v)
		}
		c.NoStore = b
	}

	if c.Chat.APIKey == "" {
		if name, ok := providerKeyEnv[strings.ToLower(c.Chat.Provider)]; ok {
			c.Chat.APIKey = os.Getenv(name)
		}
	}
	return nil
}

var knownProviders = map[string]bool{
	"openai": true, "anthropic": true, "ollama": true, "lmstudio": true,
	"openrouter": true, "groq": true, "xai": true, "gemini": true, "custom": true,
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Chat.Provider == "" {
		problems = append(problems, "chat.provider is required")
	} else if !knownProviders[strings.ToLower(c.Chat.Provider)] {
		problems = append(problems, fmt.Sprintf("unknown chat.provider %q", c.Chat.Provider))
	}
	if c.Chat.Provider == "custom" && c.Chat.BaseURL == "" {
		problems = append(problems, "chat.base_url is required for the custom provider")
	}
	if c.Concurrency < 0 {
		problems = append(problems, "concurrency must not be negative")
	}
	if c.MaxChars < 0 {
		problems = append(problems, "max_chars must not be negative")
	}
	if c.RequestTimeout < 0 {
		problems = append(problems, "request_timeout must not be negative")
	}
	switch c.StorageDir {
	case "", "home", "local", "cwd":
	default:
		problems = append(problems, fmt.Sprintf("unknown storage_dir %q", c.StorageDir))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// withDefaults fills zero-valued tuning fields.
func (c Config) withDefaults() Config {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxChars == 0 {
		c.MaxChars = chunker.DefaultMaxChars
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	return c
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "kgraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".kgraph", name+".db")
	}
}
