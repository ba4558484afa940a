// Package config loads the modcast configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/daikw/modcast/internal/orchestrator"
	"github.com/daikw/modcast/internal/persona"
	"github.com/daikw/modcast/internal/session"
	"github.com/rs/zerolog/log"
)

// FileName is the name of the configuration file inside persona.ModcastDir.
const FileName = "modcast.json"

// DefaultProvider is used when neither flags nor the file name a provider.
const DefaultProvider = "openai"

// File represents the configuration file structure
type File struct {
	DefaultProvider string                    `json:"defaultProvider,omitempty"`
	Providers       map[string]ProviderConfig `json:"providers,omitempty"`

	// Cast is the path of the cast file. Relative paths are resolved
	// against the working directory.
	Cast      string `json:"cast,omitempty"`
	HumanName string `json:"humanName,omitempty"`

	Conversation ConversationConfig `json:"conversation,omitempty"`
}

// ProviderConfig represents provider-specific configuration
type ProviderConfig struct {
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`

	// URL overrides the websocket endpoint
	URL string `json:"url,omitempty"`

	// Azure OpenAI options
	Endpoint   string `json:"endpoint,omitempty"`
	Deployment string `json:"deployment,omitempty"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// ConversationConfig holds orchestration timings in milliseconds and limits.
// Unset values keep the orchestrator defaults.
type ConversationConfig struct {
	ChunkDurationMs        int  `json:"chunkDurationMs,omitempty"`
	BufferMs               *int `json:"bufferMs,omitempty"` // 0 means no buffer
	HumanTimeoutMs         int  `json:"humanTimeoutMs,omitempty"`
	MaxConsecutiveFailures int  `json:"maxConsecutiveFailures,omitempty"`
	MaxTurns               *int `json:"maxTurns,omitempty"` // 0 means unlimited
	ContextTurns           int  `json:"contextTurns,omitempty"`
	HistoryLimit           int  `json:"historyLimit,omitempty"`
}

// Loader handles loading configuration from files
type Loader struct {
	projectPath string
	globalPath  string
}

// NewLoader creates a new config loader
func NewLoader() *Loader {
	homeDir, _ := os.UserHomeDir()
	return &Loader{
		projectPath: filepath.Join(persona.ModcastDir, FileName),
		globalPath:  filepath.Join(homeDir, persona.ModcastDir, FileName),
	}
}

// LoadConfig loads configuration with priority:
// 1. Project-local config (.modcast/modcast.json)
// 2. Global config (~/.modcast/modcast.json)
// Returns nil if no config file found
func (l *Loader) LoadConfig(workDir string) (*File, error) {
	projectConfigPath := filepath.Join(workDir, l.projectPath)
	config, err := l.loadFromFile(projectConfigPath)
	if err == nil {
		log.Debug().Str("path", projectConfigPath).Msg("Loaded project config")
		return config, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	config, err = l.loadFromFile(l.globalPath)
	if err == nil {
		log.Debug().Str("path", l.globalPath).Msg("Loaded global config")
		return config, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	log.Debug().Msg("No config file found")
	return nil, nil
}

// LoadFromPath loads configuration from a specific path
func (l *Loader) LoadFromPath(path string) (*File, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}
	return l.loadFromFile(path)
}

// validateConfigPath checks that the config path is safe to use
func validateConfigPath(path string) error {
	// Checked before cleaning so hidden traversal is caught too
	if strings.Contains(path, "..") {
		return fmt.Errorf("invalid config path: path traversal not allowed")
	}
	if filepath.Ext(filepath.Clean(path)) != ".json" {
		return fmt.Errorf("invalid config path: must be a .json file")
	}
	return nil
}

func (l *Loader) loadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))

	var config File
	if err := json.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	l.checkFilePermissions(path)
	return &config, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := match[2 : len(match)-1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Variable names are not logged, they may hint at secrets
		log.Debug().Msg("Referenced environment variable not set in config")
		return ""
	})
}

func (l *Loader) checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		log.Warn().
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Config file may contain API keys but has permissive permissions. Consider: chmod 600")
	}
}

// EffectiveProvider returns the provider to use (explicit, file default,
// then DefaultProvider).
func (c *File) EffectiveProvider(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c != nil && c.DefaultProvider != "" {
		return c.DefaultProvider
	}
	return DefaultProvider
}

// ProviderSettings returns the session settings for a provider. Missing
// entries yield zero settings, leaving environment fallbacks to the factory.
func (c *File) ProviderSettings(providerName string) session.ProviderSettings {
	if c == nil || c.Providers == nil {
		return session.ProviderSettings{}
	}
	p, ok := c.Providers[providerName]
	if !ok {
		return session.ProviderSettings{}
	}
	return session.ProviderSettings{
		APIKey:     p.APIKey,
		URL:        p.URL,
		Endpoint:   p.Endpoint,
		Deployment: p.Deployment,
		APIVersion: p.APIVersion,
		Model:      p.Model,
	}
}

// OrchestratorConfig applies the conversation section over
// orchestrator.DefaultConfig.
func (c *File) OrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	if c == nil {
		return cfg
	}

	conv := c.Conversation
	if conv.ChunkDurationMs > 0 {
		cfg.ChunkDuration = time.Duration(conv.ChunkDurationMs) * time.Millisecond
	}
	if conv.BufferMs != nil && *conv.BufferMs >= 0 {
		cfg.CompletionBuffer = time.Duration(*conv.BufferMs) * time.Millisecond
	}
	if conv.HumanTimeoutMs > 0 {
		cfg.HumanTimeout = time.Duration(conv.HumanTimeoutMs) * time.Millisecond
	}
	if conv.MaxConsecutiveFailures > 0 {
		cfg.MaxConsecutiveFailures = conv.MaxConsecutiveFailures
	}
	if conv.MaxTurns != nil && *conv.MaxTurns >= 0 {
		cfg.MaxTurns = *conv.MaxTurns
	}
	if conv.ContextTurns > 0 {
		cfg.ContextTurns = conv.ContextTurns
	}
	if conv.HistoryLimit > 0 {
		cfg.HistoryLimit = conv.HistoryLimit
	}
	return cfg
}

// Validate validates the configuration
func (c *File) Validate() []string {
	var errors []string

	if c == nil {
		return errors
	}

	known := session.NewFactory().ListProviders()
	if c.DefaultProvider != "" && !slices.Contains(known, c.DefaultProvider) {
		errors = append(errors, fmt.Sprintf("defaultProvider: unknown provider '%s'", c.DefaultProvider))
	}

	for name, provider := range c.Providers {
		errors = append(errors, validateProviderConfig(name, &provider, known)...)
	}

	conv := c.Conversation
	for field, value := range map[string]int{
		"chunkDurationMs":        conv.ChunkDurationMs,
		"humanTimeoutMs":         conv.HumanTimeoutMs,
		"maxConsecutiveFailures": conv.MaxConsecutiveFailures,
		"contextTurns":           conv.ContextTurns,
		"historyLimit":           conv.HistoryLimit,
	} {
		if value < 0 {
			errors = append(errors, fmt.Sprintf("conversation.%s must not be negative", field))
		}
	}
	if conv.BufferMs != nil && *conv.BufferMs < 0 {
		errors = append(errors, "conversation.bufferMs must not be negative")
	}
	if conv.MaxTurns != nil && *conv.MaxTurns < 0 {
		errors = append(errors, "conversation.maxTurns must not be negative")
	}

	if c.HumanName != "" && strings.TrimSpace(c.HumanName) == "" {
		errors = append(errors, "humanName must not be blank")
	}

	slices.Sort(errors)
	return errors
}

func validateProviderConfig(name string, config *ProviderConfig, known []string) []string {
	var errors []string

	switch name {
	case "openai":
		if config.APIKey == "" {
			errors = append(errors, fmt.Sprintf("%s: apiKey is required (use ${OPENAI_API_KEY} for env var)", name))
		}
	case "azure":
		if config.APIKey == "" {
			errors = append(errors, fmt.Sprintf("%s: apiKey is required (use ${AZURE_OPENAI_API_KEY} for env var)", name))
		}
		if config.Endpoint == "" && config.URL == "" {
			errors = append(errors, fmt.Sprintf("%s: endpoint is required (use ${AZURE_OPENAI_ENDPOINT} for env var)", name))
		}
	default:
		if !slices.Contains(known, name) {
			errors = append(errors, fmt.Sprintf("%s: unknown provider", name))
		}
	}

	if config.URL != "" && !strings.HasPrefix(config.URL, "ws://") && !strings.HasPrefix(config.URL, "wss://") {
		errors = append(errors, fmt.Sprintf("%s: url must start with ws:// or wss://", name))
	}

	return errors
}

// GenerateExampleConfig generates an example configuration
func GenerateExampleConfig() string {
	maxTurns := orchestrator.DefaultMaxTurns
	buffer := 100
	example := File{
		DefaultProvider: "openai",
		Providers: map[string]ProviderConfig{
			"openai": {
				APIKey: "${OPENAI_API_KEY}",
				Model:  session.DefaultRealtimeModel,
			},
			"azure": {
				APIKey:     "${AZURE_OPENAI_API_KEY}",
				Endpoint:   "${AZURE_OPENAI_ENDPOINT}",
				Deployment: "gpt-4o-realtime-preview",
				APIVersion: session.DefaultAzureAPIVersion,
			},
		},
		Cast:      filepath.Join(persona.ModcastDir, persona.CastFileName),
		HumanName: persona.HumanName,
		Conversation: ConversationConfig{
			ChunkDurationMs:        430,
			BufferMs:               &buffer,
			HumanTimeoutMs:         30000,
			MaxConsecutiveFailures: orchestrator.DefaultMaxConsecutiveFailures,
			MaxTurns:               &maxTurns,
			ContextTurns:           orchestrator.DefaultContextTurns,
		},
	}

	data, _ := json.MarshalIndent(example, "", "  ")
	return string(data)
}

// MaskSecrets masks sensitive values in config for display
// For security, only shows that a key is present, not its contents
func (c *File) MaskSecrets() *File {
	if c == nil {
		return nil
	}

	masked := *c
	masked.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for name, provider := range c.Providers {
		maskedProvider := provider
		if provider.APIKey != "" {
			maskedProvider.APIKey = fmt.Sprintf("[set, %d chars]", len(provider.APIKey))
		}
		masked.Providers[name] = maskedProvider
	}

	return &masked
}
