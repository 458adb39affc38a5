package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"care-companion/internal/domain"
	"care-companion/internal/usecase"
)

const (
	RuntimeHTTP   = "http"
	RuntimeLambda = "lambda"

	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendMock   = "mock"
)

type Config struct {
	Runtime    string           `yaml:"runtime"`
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Generation GenerationConfig `yaml:"generation"`
	Prompt     PromptConfig     `yaml:"prompt"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelConfig selects the inference backend and the model it serves. Dir is
// the local fine-tuned checkpoint; when empty the artifact check is skipped.
type ModelConfig struct {
	Backend  string        `yaml:"backend"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	Dir      string        `yaml:"dir"`
	Name     string        `yaml:"name"`
	Fallback string        `yaml:"fallback"`
}

type GenerationConfig struct {
	MaxNewTokens      int     `yaml:"max_new_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
}

type PromptConfig struct {
	Preamble          []string `yaml:"preamble"`
	UserLabel         string   `yaml:"user_label"`
	Cue               string   `yaml:"cue"`
	DisclaimerKeyword string   `yaml:"disclaimer_keyword"`
	Disclaimer        string   `yaml:"disclaimer"`
}

// OpenAIConfig holds credentials for the openai backend. APIKey is only read
// from the environment.
type OpenAIConfig struct {
	APIKey      string `yaml:"-"`
	ParamPrefix string `yaml:"param_prefix"`
}

// ExchangeConfig enables the DynamoDB exchange log when Table is set.
type ExchangeConfig struct {
	Table string `yaml:"table"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Defaults() *Config {
	return &Config{
		Runtime: RuntimeHTTP,
		Server: ServerConfig{
			Addr:            ":5001",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    150 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Backend:  BackendOllama,
			Timeout:  120 * time.Second,
			Name:     "flan-t5-healthcare",
			Fallback: "flan-t5-base",
		},
		Generation: GenerationConfig{
			MaxNewTokens:      usecase.DefaultMaxNewTokens,
			Temperature:       usecase.DefaultTemperature,
			TopP:              usecase.DefaultTopP,
			RepetitionPenalty: usecase.DefaultRepetitionPenalty,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the optional YAML file at path over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

type lookupFunc func(key string) (string, bool)

func load(path string, lookup lookupFunc) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup lookupFunc) error {
	envString(lookup, "RUNTIME", &c.Runtime)
	envString(lookup, "SERVER_ADDR", &c.Server.Addr)
	envString(lookup, "MODEL_BACKEND", &c.Model.Backend)
	envString(lookup, "MODEL_BASE_URL", &c.Model.BaseURL)
	envString(lookup, "MODEL_DIR", &c.Model.Dir)
	envString(lookup, "MODEL_NAME", &c.Model.Name)
	envString(lookup, "MODEL_FALLBACK", &c.Model.Fallback)
	envString(lookup, "OPENAI_API_KEY", &c.OpenAI.APIKey)
	envString(lookup, "PARAM_PREFIX", &c.OpenAI.ParamPrefix)
	envString(lookup, "EXCHANGE_TABLE", &c.Exchange.Table)
	envString(lookup, "LOG_LEVEL", &c.Log.Level)
	envString(lookup, "LOG_FORMAT", &c.Log.Format)

	if err := envDuration(lookup, "MODEL_TIMEOUT", &c.Model.Timeout); err != nil {
		return err
	}
	if err := envInt(lookup, "MAX_NEW_TOKENS", &c.Generation.MaxNewTokens); err != nil {
		return err
	}
	if err := envFloat(lookup, "TEMPERATURE", &c.Generation.Temperature); err != nil {
		return err
	}
	if err := envFloat(lookup, "TOP_P", &c.Generation.TopP); err != nil {
		return err
	}
	return envFloat(lookup, "REPETITION_PENALTY", &c.Generation.RepetitionPenalty)
}

func (c *Config) validate() error {
	c.Runtime = strings.ToLower(strings.TrimSpace(c.Runtime))
	switch c.Runtime {
	case RuntimeHTTP:
		if err := validateAddr(c.Server.Addr); err != nil {
			return fmt.Errorf("server.addr: %w", err)
		}
	case RuntimeLambda:
	default:
		return fmt.Errorf("runtime: must be %q or %q, got %q", RuntimeHTTP, RuntimeLambda, c.Runtime)
	}

	c.Model.Backend = strings.ToLower(strings.TrimSpace(c.Model.Backend))
	switch c.Model.Backend {
	case BackendOllama, BackendMock:
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" && c.OpenAI.ParamPrefix == "" {
			return errors.New("openai: OPENAI_API_KEY or openai.param_prefix is required for the openai backend")
		}
	default:
		return fmt.Errorf("model.backend: unsupported backend %q", c.Model.Backend)
	}
	if c.Model.BaseURL != "" {
		if err := validateBaseURL(c.Model.BaseURL); err != nil {
			return fmt.Errorf("model.base_url: %w", err)
		}
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return errors.New("model.name: must not be empty")
	}
	if c.Model.Timeout < 0 {
		return errors.New("model.timeout: must not be negative")
	}

	g := c.Generation
	if g.MaxNewTokens <= 0 {
		return fmt.Errorf("generation.max_new_tokens: must be positive, got %d", g.MaxNewTokens)
	}
	if g.Temperature <= 0 || g.Temperature > 2 {
		return fmt.Errorf("generation.temperature: must be in (0, 2], got %v", g.Temperature)
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return fmt.Errorf("generation.top_p: must be in (0, 1], got %v", g.TopP)
	}
	if g.RepetitionPenalty <= 0 {
		return fmt.Errorf("generation.repetition_penalty: must be positive, got %v", g.RepetitionPenalty)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// GenerationParams converts the generation section for the chat service.
func (c *Config) GenerationParams() domain.GenerationParams {
	return domain.GenerationParams{
		MaxNewTokens:      c.Generation.MaxNewTokens,
		Temperature:       c.Generation.Temperature,
		TopP:              c.Generation.TopP,
		RepetitionPenalty: c.Generation.RepetitionPenalty,
	}
}

// TemplateConfig converts the prompt section for usecase.NewPromptTemplate.
func (c *Config) TemplateConfig() usecase.TemplateConfig {
	return usecase.TemplateConfig{
		Preamble:          c.Prompt.Preamble,
		UserLabel:         c.Prompt.UserLabel,
		Cue:               c.Prompt.Cue,
		DisclaimerKeyword: c.Prompt.DisclaimerKeyword,
		Disclaimer:        c.Prompt.Disclaimer,
	}
}

func validateAddr(addr string) error {
	if addr == "" {
		return errors.New("must not be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}
	return nil
}

func validateBaseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func envString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(lookup lookupFunc, key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(lookup lookupFunc, key string, dst *float64) error {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envDuration(lookup lookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
