// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete dxchat configuration.
type Config struct {
	// Endpoint is the chat-completion server
	Endpoint EndpointConfig `toml:"endpoint" json:"endpoint"`

	// Conversation tunes each request cycle
	Conversation ConversationConfig `toml:"conversation" json:"conversation"`

	// Server configures the HTTP bridge used by browser front ends
	Server ServerConfig `toml:"server" json:"server"`

	// UI configures the terminal front ends
	UI UIConfig `toml:"ui" json:"ui"`
}

// EndpointConfig describes the inference endpoint.
type EndpointConfig struct {
	// URL is the Ollama base URL; /api/chat is appended
	URL string `toml:"url" json:"url" validate:"required,url"`
	// Model is the model identifier sent with every request
	Model string `toml:"model" json:"model" validate:"required"`
	// TimeoutSecs bounds a whole request (0 = no timeout)
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" validate:"min=0,max=3600"`
	// ResponseSchema selects how reply text is read: "ollama" or "openai"
	ResponseSchema string `toml:"response_schema" json:"response_schema" validate:"oneof=ollama openai"`
}

// ConversationConfig contains request cycle settings.
type ConversationConfig struct {
	// HistoryWindow is the number of transcript entries sent with each request
	HistoryWindow int `toml:"history_window" json:"history_window" validate:"min=1,max=1000"`
	// Streaming reads replies as NDJSON chunks
	Streaming bool `toml:"streaming" json:"streaming"`
	// FailurePolicy is "alert" (block until cleared) or "message" (error reply)
	FailurePolicy string `toml:"failure_policy" json:"failure_policy" validate:"oneof=alert message"`
}

// ServerConfig contains HTTP bridge settings.
type ServerConfig struct {
	Host string `toml:"host" json:"host" validate:"required"`
	Port int    `toml:"port" json:"port" validate:"min=1,max=65535"`
	// RateLimitPerMin caps requests per client IP (0 = unlimited)
	RateLimitPerMin int `toml:"rate_limit_per_min" json:"rate_limit_per_min" validate:"min=0"`
	// AllowedOrigins lists CORS origins; "*" allows any
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" validate:"dive,required"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is "dark", "light" or "auto"
	Theme string `toml:"theme" json:"theme" validate:"oneof=dark light auto"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			URL:            "http://127.0.0.1:11434",
			Model:          "llama3.2",
			TimeoutSecs:    0,
			ResponseSchema: "ollama",
		},
		Conversation: ConversationConfig{
			HistoryWindow: 10,
			Streaming:     false,
			FailurePolicy: "alert",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8787,
			RateLimitPerMin: 60,
			AllowedOrigins:  []string{"http://localhost:4200", "http://localhost:3000"},
		},
		UI: UIConfig{
			Theme: "auto",
		},
	}
}

// Timeout returns the endpoint timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Endpoint.TimeoutSecs) * time.Second
}

// Addr returns the HTTP bridge listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the dxchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".dxchat"), nil
}

// DefaultPath returns the path to the default TOML config file.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default file if it exists, otherwise
// from defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full validation.
// Files ending in .json are read as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	// Lists replace rather than merge.
	cfg.Server.AllowedOrigins = nil

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	} else {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = Default().Server.AllowedOrigins
	}
	return finish(cfg)
}

// finish applies env overrides, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values that have no meaning with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Endpoint.URL == "" {
		c.Endpoint.URL = defaults.Endpoint.URL
	}
	c.Endpoint.URL = strings.TrimRight(c.Endpoint.URL, "/")
	if c.Endpoint.Model == "" {
		c.Endpoint.Model = defaults.Endpoint.Model
	}
	c.Endpoint.ResponseSchema = strings.ToLower(c.Endpoint.ResponseSchema)
	if c.Endpoint.ResponseSchema == "" {
		c.Endpoint.ResponseSchema = defaults.Endpoint.ResponseSchema
	}

	if c.Conversation.HistoryWindow == 0 {
		c.Conversation.HistoryWindow = defaults.Conversation.HistoryWindow
	}
	c.Conversation.FailurePolicy = strings.ToLower(c.Conversation.FailurePolicy)
	if c.Conversation.FailurePolicy == "" {
		c.Conversation.FailurePolicy = defaults.Conversation.FailurePolicy
	}

	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "DXCHAT"

// envOverrides lists the supported variables. Unset variables stay nil.
type envOverrides struct {
	Endpoint       *string  `split_words:"true"`
	Model          *string  `split_words:"true"`
	TimeoutSecs    *int     `split_words:"true"`
	ResponseSchema *string  `split_words:"true"`
	HistoryWindow  *int     `split_words:"true"`
	Streaming      *bool    `split_words:"true"`
	FailurePolicy  *string  `split_words:"true"`
	ServerHost     *string  `split_words:"true"`
	ServerPort     *int     `split_words:"true"`
	RateLimit      *int     `split_words:"true"`
	AllowedOrigins []string `split_words:"true"`
	Theme          *string  `split_words:"true"`
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - DXCHAT_ENDPOINT: overrides endpoint.url
//   - DXCHAT_MODEL: overrides endpoint.model
//   - DXCHAT_TIMEOUT_SECS: overrides endpoint.timeout_secs
//   - DXCHAT_RESPONSE_SCHEMA: overrides endpoint.response_schema
//   - DXCHAT_HISTORY_WINDOW: overrides conversation.history_window
//   - DXCHAT_STREAMING: overrides conversation.streaming
//   - DXCHAT_FAILURE_POLICY: overrides conversation.failure_policy
//   - DXCHAT_SERVER_HOST, DXCHAT_SERVER_PORT: override server.host and server.port
//   - DXCHAT_RATE_LIMIT: overrides server.rate_limit_per_min
//   - DXCHAT_ALLOWED_ORIGINS: comma-separated, overrides server.allowed_origins
//   - DXCHAT_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}

	setString(&c.Endpoint.URL, env.Endpoint)
	setString(&c.Endpoint.Model, env.Model)
	setInt(&c.Endpoint.TimeoutSecs, env.TimeoutSecs)
	setString(&c.Endpoint.ResponseSchema, env.ResponseSchema)
	setInt(&c.Conversation.HistoryWindow, env.HistoryWindow)
	if env.Streaming != nil {
		c.Conversation.Streaming = *env.Streaming
	}
	setString(&c.Conversation.FailurePolicy, env.FailurePolicy)
	setString(&c.Server.Host, env.ServerHost)
	setInt(&c.Server.Port, env.ServerPort)
	setInt(&c.Server.RateLimitPerMin, env.RateLimit)
	if len(env.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = env.AllowedOrigins
	}
	setString(&c.UI.Theme, env.Theme)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to path atomically.
// Files ending in .json are written as JSON, anything else as TOML.
func Save(cfg *Config, path string) error {
	data, err := cfg.Encode(strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return err
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML with a header, or as JSON.
func (c *Config) Encode(asJSON bool) ([]byte, error) {
	if asJSON {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		return append(data, '\n'), nil
	}

	var buf bytes.Buffer
	buf.WriteString("# dxchat configuration file\n")
	buf.WriteString("# Environment variables DXCHAT_* override these values.\n\n")
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// String returns the configuration as TOML.
func (c *Config) String() string {
	data, err := c.Encode(false)
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validate = newValidator()

// newValidator reports fields by their TOML names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate validates the configuration and returns ValidateErrors if any
// field is out of range.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make(ValidateErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return errs
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return fmt.Sprintf("invalid URL '%v'", fe.Value())
	case "oneof":
		return fmt.Sprintf("invalid value '%v', must be one of: %s", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("must be at least %s (got %v)", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s (got %v)", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed '%s' check", fe.Tag())
	}
}
