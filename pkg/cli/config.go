package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/lifeline/pkg/storage"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".lifeline"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Config represents the main configuration structure for a CLI app
type Config struct {
	// AppName is the application name
	AppName string `yaml:"-"`

	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	// configPath is the path to the config file
	configPath string
}

// Context is one environment: where tokens come from, which voice to use,
// and where exams are stored.
type Context struct {
	// Name is the context name
	Name string `yaml:"name"`

	// TokenEndpoint is the application backend issuing realtime credentials,
	// e.g. http://localhost:3000/api/session
	TokenEndpoint string `yaml:"token_endpoint,omitempty"`

	// CredentialPath is a jq path to the credential in the token response
	// (default .client_secret.value)
	CredentialPath string `yaml:"credential_path,omitempty"`

	// RealtimeURL overrides the SDP exchange endpoint
	RealtimeURL string `yaml:"realtime_url,omitempty"`

	// APIKey is the OpenAI API key, used by "serve" to mint sessions
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the OpenAI API base URL for "serve"
	BaseURL string `yaml:"base_url,omitempty"`

	// Voice is the default assistant voice
	Voice string `yaml:"voice,omitempty"`

	// Model is the default realtime model
	Model string `yaml:"model,omitempty"`

	// ToolsFile is a YAML file of tool declarations
	ToolsFile string `yaml:"tools_file,omitempty"`

	// Store selects the exam database
	Store *StoreConfig `yaml:"store,omitempty"`

	// Extra stores free-form settings
	Extra map[string]string `yaml:"extra,omitempty"`
}

// Store kinds.
const (
	StoreBadger = "badger"
	StoreMemory = "memory"
	StoreLocal  = "local"
	StoreS3     = "s3"
)

// StoreConfig selects where exams live.
type StoreConfig struct {
	// Kind is one of badger, memory, local, s3 (default badger)
	Kind string `yaml:"kind,omitempty"`

	// Dir is the badger or local directory (default: the app data dir)
	Dir string `yaml:"dir,omitempty"`

	// S3 configures the s3 kind
	S3 *storage.S3Config `yaml:"s3,omitempty"`
}

// LoadConfig loads or creates configuration for the specified app
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	var configPath string

	if customPath != "" {
		configPath = customPath
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	cfg.AppName = appName
	cfg.configPath = configPath

	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// The file may hold API keys.
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// AddContext adds or replaces a context
func (c *Config) AddContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// GetCurrentContext returns the current context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ResolveContext returns the context by name, or current context if name is empty
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		return c.GetCurrentContext()
	}
	return c.GetContext(name)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetExtra returns an extra value for the context
func (ctx *Context) GetExtra(key string) string {
	if ctx.Extra == nil {
		return ""
	}
	return ctx.Extra[key]
}

// SetExtra sets an extra value for the context
func (ctx *Context) SetExtra(key, value string) {
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}

// Masked returns a copy of ctx safe to print.
func (ctx *Context) Masked() *Context {
	cp := *ctx
	cp.APIKey = MaskAPIKey(cp.APIKey)
	if ctx.Store != nil && ctx.Store.S3 != nil {
		store := *ctx.Store
		s3 := *ctx.Store.S3
		s3.SecretAccessKey = MaskAPIKey(s3.SecretAccessKey)
		store.S3 = &s3
		cp.Store = &store
	}
	return &cp
}

// MaskAPIKey masks the API key for display
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
