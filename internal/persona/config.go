package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	CastFileName = "cast.json"
	ModcastDir   = ".modcast"

	// File permissions
	DirPermission  = 0755 // Directory permission (rwxr-xr-x)
	FilePermission = 0644 // File permission (rw-r--r--)
)

// DefaultTopic seeds the first turn when neither the cast nor the caller gives one.
const DefaultTopic = "Welcome to our AI podcast! Let's have an engaging discussion about technology and society."

// LoadCast reads a cast file. The format follows the extension:
// .yaml/.yml are parsed as YAML, everything else as JSON.
func LoadCast(path string) (*Cast, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cast file: %w", err)
	}

	var cast Cast
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &cast); err != nil {
			return nil, fmt.Errorf("failed to parse cast file: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &cast); err != nil {
			return nil, fmt.Errorf("failed to parse cast file: %w", err)
		}
	}

	for i := range cast.Personas {
		cast.Personas[i] = cast.Personas[i].WithDefaults()
	}

	log.Debug().Str("path", path).Int("personas", len(cast.Personas)).Msg("Loaded cast")
	return &cast, nil
}

// FindCast looks for a cast file in the project, then in the home directory.
// It returns an empty path when neither exists.
func FindCast(projectPath string) (string, error) {
	candidates := []string{
		filepath.Join(projectPath, ModcastDir, CastFileName),
		filepath.Join(projectPath, ModcastDir, "cast.yaml"),
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	candidates = append(candidates,
		filepath.Join(homeDir, ModcastDir, CastFileName),
		filepath.Join(homeDir, ModcastDir, "cast.yaml"),
	)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			log.Debug().Str("path", path).Msg("Found cast file")
			return path, nil
		}
	}
	log.Debug().Msg("No cast file found")
	return "", nil
}

// SaveCast writes cast to path, creating parent directories.
func SaveCast(path string, cast *Cast) error {
	if err := os.MkdirAll(filepath.Dir(path), DirPermission); err != nil {
		return fmt.Errorf("failed to create cast directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cast)
	} else {
		data, err = json.MarshalIndent(cast, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal cast: %w", err)
	}

	if err := os.WriteFile(path, data, FilePermission); err != nil {
		return fmt.Errorf("failed to write cast file: %w", err)
	}

	log.Debug().Str("path", path).Msg("Saved cast")
	return nil
}

// DefaultCast returns the three-host demo cast.
func DefaultCast() *Cast {
	return &Cast{
		Topic: "Welcome everyone! Today we're discussing the future of AI in software development.",
		Personas: []Config{
			{
				Name:              "Alex",
				Voice:             "ballad",
				Instructions:      "You are Alex, an enthusiastic tech podcaster. Keep responses to 1-2 sentences and be engaging.",
				Temperature:       0.8,
				MaxResponseTokens: DefaultMaxResponseTokens,
			},
			{
				Name:              "Sam",
				Voice:             "ash",
				Instructions:      "You are Sam, a thoughtful researcher. Provide analytical perspectives in 1-2 sentences.",
				Temperature:       0.7,
				MaxResponseTokens: DefaultMaxResponseTokens,
			},
			{
				Name:              "Jordan",
				Voice:             "shimmer",
				Instructions:      "You are Jordan, a practical developer. Give real-world insights in 1-2 sentences.",
				Temperature:       0.6,
				MaxResponseTokens: DefaultMaxResponseTokens,
			},
		},
	}
}

// ValidateConfig checks a single persona
func ValidateConfig(config Config) error {
	if strings.TrimSpace(config.Name) == "" {
		return fmt.Errorf("%w: persona name cannot be empty", ErrConfig)
	}
	if config.Temperature < MinTemperature || config.Temperature > MaxTemperature {
		return fmt.Errorf("%w: %s: temperature must be between %.1f and %.1f",
			ErrConfig, config.Name, MinTemperature, MaxTemperature)
	}
	if config.MaxResponseTokens < 0 {
		return fmt.Errorf("%w: %s: max_response_tokens cannot be negative", ErrConfig, config.Name)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
