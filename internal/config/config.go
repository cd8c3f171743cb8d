// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for stockchat.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/locale"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/util"
)

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete stockchat configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	// Model is the selected model id; must be on the allow-list
	Model string `toml:"model" json:"model" yaml:"model" env:"STOCKCHAT_MODEL"`

	// APIKey is the Gemini credential sent to the backend
	APIKey string `toml:"api_key" json:"api_key" yaml:"api_key" env:"GEMINI_API_KEY"`

	Backend     BackendConfig    `toml:"backend" json:"backend" yaml:"backend"`
	Stream      StreamConfig     `toml:"stream" json:"stream" yaml:"stream"`
	Attachments AttachmentConfig `toml:"attachments" json:"attachments" yaml:"attachments"`
	UI          UIConfig         `toml:"ui" json:"ui" yaml:"ui"`
	Log         LogConfig        `toml:"log" json:"log" yaml:"log"`
	Relay       RelayConfig      `toml:"relay" json:"relay" yaml:"relay"`
}

// BackendConfig locates the chat backend.
type BackendConfig struct {
	URL string `toml:"url" json:"url" yaml:"url" env:"STOCKCHAT_BACKEND_URL"`
	// ResponseTimeoutSecs bounds the wait for response headers
	ResponseTimeoutSecs int `toml:"response_timeout_secs" json:"response_timeout_secs" yaml:"response_timeout_secs" env:"STOCKCHAT_RESPONSE_TIMEOUT_SECS"`
}

// StreamConfig controls response decoding.
type StreamConfig struct {
	// LenientUTF8 substitutes U+FFFD for invalid bytes instead of failing
	LenientUTF8 bool `toml:"lenient_utf8" json:"lenient_utf8" yaml:"lenient_utf8" env:"STOCKCHAT_LENIENT_UTF8"`
	ReadBuffer  int  `toml:"read_buffer" json:"read_buffer" yaml:"read_buffer" env:"STOCKCHAT_READ_BUFFER"`
}

// AttachmentConfig limits image attachments.
type AttachmentConfig struct {
	MaxBytes int64 `toml:"max_bytes" json:"max_bytes" yaml:"max_bytes" env:"STOCKCHAT_ATTACHMENT_MAX_BYTES"`
}

// UIConfig holds display preferences. None of these affect requests.
type UIConfig struct {
	// Theme is "auto", "dark" or "light"
	Theme  string `toml:"theme" json:"theme" yaml:"theme" env:"STOCKCHAT_THEME"`
	Locale string `toml:"locale" json:"locale" yaml:"locale" env:"STOCKCHAT_LOCALE"`
	// Plain forces the line REPL instead of the full-screen UI
	Plain    bool `toml:"plain" json:"plain" yaml:"plain" env:"STOCKCHAT_PLAIN"`
	WordWrap int  `toml:"word_wrap" json:"word_wrap" yaml:"word_wrap"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `toml:"level" json:"level" yaml:"level" env:"STOCKCHAT_LOG_LEVEL"`
	File        string `toml:"file" json:"file" yaml:"file" env:"STOCKCHAT_LOG_FILE"`
	Development bool   `toml:"development" json:"development" yaml:"development" env:"STOCKCHAT_LOG_DEV"`
}

// RelayConfig configures the relay server started by "stockchat serve".
type RelayConfig struct {
	Addr              string `toml:"addr" json:"addr" yaml:"addr" env:"STOCKCHAT_RELAY_ADDR"`
	SystemInstruction string `toml:"system_instruction" json:"system_instruction" yaml:"system_instruction" env:"STOCKCHAT_SYSTEM_INSTRUCTION"`
	// RequestsPerMinute is the per-key rate limit (0 = unlimited)
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute" env:"STOCKCHAT_RELAY_RPM"`
	Burst             int `toml:"burst" json:"burst" yaml:"burst"`
	// KnowledgeDB is the SQLite file for ingested documents (empty = disabled)
	KnowledgeDB      string `toml:"knowledge_db" json:"knowledge_db" yaml:"knowledge_db" env:"STOCKCHAT_KNOWLEDGE_DB"`
	KnowledgeResults int    `toml:"knowledge_results" json:"knowledge_results" yaml:"knowledge_results"`
	EmbeddingModel   string `toml:"embedding_model" json:"embedding_model" yaml:"embedding_model"`
	// MCPURL is an MCP server whose tools the model may call (empty = no tools)
	MCPURL        string `toml:"mcp_url" json:"mcp_url" yaml:"mcp_url" env:"STOCKCHAT_MCP_URL"`
	MCPAPIKey     string `toml:"mcp_api_key" json:"mcp_api_key" yaml:"mcp_api_key" env:"STOCKCHAT_MCP_API_KEY"`
	MaxToolRounds int    `toml:"max_tool_rounds" json:"max_tool_rounds" yaml:"max_tool_rounds"`
}

// DefaultSystemInstruction is the relay's assistant persona.
const DefaultSystemInstruction = "You are a financial expert. Use the data you are given about stocks and markets. " +
	"Present suggestions and forward-looking predictions for prices, and suggest what may be worth investing in."

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Model:   model.DefaultModel,
		Backend: BackendConfig{
			URL:                 "http://127.0.0.1:8000",
			ResponseTimeoutSecs: 60,
		},
		Stream: StreamConfig{
			ReadBuffer: 4096,
		},
		Attachments: AttachmentConfig{
			MaxBytes: 10 << 20,
		},
		UI: UIConfig{
			Theme:    "auto",
			Locale:   locale.Default,
			WordWrap: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Relay: RelayConfig{
			Addr:              ":8000",
			SystemInstruction: DefaultSystemInstruction,
			RequestsPerMinute: 30,
			Burst:             5,
			KnowledgeResults:  3,
			EmbeddingModel:    "text-embedding-004",
			MaxToolRounds:     5,
		},
	}
}

// ResponseTimeout returns the response header timeout as a duration.
func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.Backend.ResponseTimeoutSecs) * time.Second
}

// =============================================================================
// PATHS
// =============================================================================

// configNames are tried in order when no explicit path is given.
var configNames = []string{"config.toml", "config.json", "config.yaml", "config.yml"}

// ConfigDir returns the stockchat configuration directory (~/.stockchat).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".stockchat"), nil
}

// DefaultPath returns the first existing config file in ConfigDir, or the
// TOML path if none exists yet.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range configNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(dir, configNames[0]), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config at path (or DefaultPath if empty), applies
// environment overrides, fills defaults and validates. A missing file is
// not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads only the file at path, without environment overrides.
// It is used when the file is rewritten so overrides are not persisted.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

// decodeFile decodes path into cfg based on its extension.
func decodeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Backend.URL == "" {
		c.Backend.URL = d.Backend.URL
	}
	if c.Backend.ResponseTimeoutSecs == 0 {
		c.Backend.ResponseTimeoutSecs = d.Backend.ResponseTimeoutSecs
	}
	if c.Stream.ReadBuffer == 0 {
		c.Stream.ReadBuffer = d.Stream.ReadBuffer
	}
	if c.Attachments.MaxBytes == 0 {
		c.Attachments.MaxBytes = d.Attachments.MaxBytes
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.Locale == "" {
		c.UI.Locale = d.UI.Locale
	}
	if c.UI.WordWrap == 0 {
		c.UI.WordWrap = d.UI.WordWrap
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Relay.Addr == "" {
		c.Relay.Addr = d.Relay.Addr
	}
	if c.Relay.SystemInstruction == "" {
		c.Relay.SystemInstruction = d.Relay.SystemInstruction
	}
	if c.Relay.Burst == 0 {
		c.Relay.Burst = d.Relay.Burst
	}
	if c.Relay.KnowledgeResults == 0 {
		c.Relay.KnowledgeResults = d.Relay.KnowledgeResults
	}
	if c.Relay.EmbeddingModel == "" {
		c.Relay.EmbeddingModel = d.Relay.EmbeddingModel
	}
	if c.Relay.MaxToolRounds == 0 {
		c.Relay.MaxToolRounds = d.Relay.MaxToolRounds
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to path in the format given by its extension.
// The file is written atomically with 0600 permissions since it may hold
// the API key.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		buf.Write(data)
	case ".yaml", ".yml":
		if err := yaml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		fmt.Fprintln(&buf, "# stockchat configuration file")
		fmt.Fprintln(&buf, "")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns all problems found.
// A missing API key is not a validation error: it is reported when the
// user tries to send.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if !model.IsAllowedModel(c.Model) {
		errs = append(errs, ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("unknown model '%s', must be one of: %s", c.Model, strings.Join(model.ModelIDs(), ", ")),
		})
	}

	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Field: "backend.url", Message: fmt.Sprintf("invalid URL '%s'", c.Backend.URL)})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{Field: "backend.url", Message: "scheme must be http or https"})
	}

	if c.Backend.ResponseTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "backend.response_timeout_secs", Message: "must not be negative"})
	}
	if c.Stream.ReadBuffer < 0 {
		errs = append(errs, ValidationError{Field: "stream.read_buffer", Message: "must not be negative"})
	}
	if c.Attachments.MaxBytes < 0 {
		errs = append(errs, ValidationError{Field: "attachments.max_bytes", Message: "must not be negative"})
	}

	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light":
	default:
		errs = append(errs, ValidationError{Field: "ui.theme", Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)})
	}

	if !locale.IsSupported(c.UI.Locale) {
		errs = append(errs, ValidationError{
			Field:   "ui.locale",
			Message: fmt.Sprintf("unsupported locale '%s', must be one of: %s", c.UI.Locale, strings.Join(locale.Supported, ", ")),
		})
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}

	if c.Relay.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "relay.requests_per_minute", Message: "must not be negative"})
	}

	if c.Relay.MCPURL != "" {
		if u, err := url.Parse(c.Relay.MCPURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Field: "relay.mcp_url", Message: fmt.Sprintf("invalid URL '%s'", c.Relay.MCPURL)})
		}
	}
	if c.Relay.MaxToolRounds < 0 {
		errs = append(errs, ValidationError{Field: "relay.max_tool_rounds", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by its file key (e.g. "ui.theme").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by its file key, converting from string.
func (c *Config) Set(key string, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %w", key, err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("cannot set %s: unsupported type %s", key, field.Type())
	}
	return nil
}

// lookup walks the toml tags of Config to find key.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	parts := strings.Split(key, ".")
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown key: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("key %s is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key %s is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}

// Keys returns all settable keys in dot notation, sorted.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tomlName(f)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy safe to print, with API keys masked.
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	clone.APIKey = mask(clone.APIKey)
	clone.Relay.MCPAPIKey = mask(clone.Relay.MCPAPIKey)
	return clone
}

// mask keeps the last four characters of keys longer than four.
func mask(key string) string {
	n := len(key)
	if n > 4 {
		return strings.Repeat("*", n-4) + key[n-4:]
	}
	return strings.Repeat("*", n)
}

// =============================================================================
// SHARED CONFIG (THREAD-SAFE)
// =============================================================================

// Store holds the live configuration shared between the UI and the config
// watcher. Readers get a copy.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewStore creates a store holding cfg.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg.Clone()}
}

// Get returns a copy of the current configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Set replaces the current configuration.
func (s *Store) Set(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
}

// Update applies fn to a copy of the configuration and stores the result
// if it validates.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	fn(next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	return nil
}
