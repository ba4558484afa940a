package session

import (
	"fmt"
	"os"
)

// ProviderSettings carries the provider-specific values of the config file.
type ProviderSettings struct {
	APIKey     string
	URL        string
	Endpoint   string
	Deployment string
	APIVersion string
	Model      string
}

// DefaultFactory is the default provider factory
type DefaultFactory struct{}

// NewFactory creates a new provider factory
func NewFactory() *DefaultFactory {
	return &DefaultFactory{}
}

// ListProviders returns available provider names
func (f *DefaultFactory) ListProviders() []string {
	return []string{"openai", "azure", "scripted"}
}

// CreateProvider creates a provider instance by name
func (f *DefaultFactory) CreateProvider(providerName string, settings ProviderSettings) (Provider, error) {
	switch providerName {
	case "openai":
		return f.createOpenAIProvider(settings)
	case "azure":
		return f.createAzureProvider(settings)
	case "scripted":
		scripted := NewScripted()
		scripted.Generate = DemoTurn
		return scripted, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
}

func (f *DefaultFactory) createOpenAIProvider(settings ProviderSettings) (Provider, error) {
	apiKey := settings.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key not found in config or OPENAI_API_KEY environment variable")
		}
	}

	return NewRealtime(RealtimeConfig{
		APIKey: apiKey,
		URL:    settings.URL,
		Model:  settings.Model,
	}), nil
}

func (f *DefaultFactory) createAzureProvider(settings ProviderSettings) (Provider, error) {
	apiKey := settings.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("azure API key not found in config or AZURE_OPENAI_API_KEY environment variable")
		}
	}

	endpoint := settings.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if endpoint == "" && settings.URL == "" {
		return nil, fmt.Errorf("azure endpoint not found in config or AZURE_OPENAI_ENDPOINT environment variable")
	}

	deployment := settings.Deployment
	if deployment == "" {
		deployment = getEnvWithDefault("AZURE_OPENAI_DEPLOYMENT_NAME", DefaultRealtimeModel)
	}
	apiVersion := settings.APIVersion
	if apiVersion == "" {
		apiVersion = getEnvWithDefault("AZURE_OPENAI_API_VERSION", DefaultAzureAPIVersion)
	}

	return NewRealtime(RealtimeConfig{
		Azure:      true,
		APIKey:     apiKey,
		URL:        settings.URL,
		Endpoint:   endpoint,
		Deployment: deployment,
		APIVersion: apiVersion,
		Model:      settings.Model,
	}), nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
