package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/daikw/modcast/internal/config"
	"github.com/daikw/modcast/internal/persona"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

// loadConfigFile loads --config, or the project/global config file.
// It returns nil when no file exists.
func loadConfigFile(c *cli.Command) (*config.File, error) {
	loader := config.NewLoader()
	if path := c.String("config"); path != "" {
		return loader.LoadFromPath(path)
	}
	return loader.LoadConfig(".")
}

// loadCast resolves the cast from --cast, the config file, a cast file in
// the project or home directory, and finally the built-in default cast.
func loadCast(c *cli.Command, cfg *config.File) (*persona.Cast, string, error) {
	path := c.String("cast")
	if path == "" && cfg != nil && cfg.Cast != "" {
		path = cfg.Cast
	}
	if path == "" {
		found, err := persona.FindCast(".")
		if err != nil {
			return nil, "", err
		}
		path = found
	}
	if path == "" {
		log.Debug().Msg("Using the built-in cast")
		return persona.DefaultCast(), "", nil
	}

	cast, err := persona.LoadCast(path)
	if err != nil {
		return nil, "", err
	}
	return cast, path, nil
}

func defaultCastPath() string {
	return filepath.Join(persona.ModcastDir, persona.CastFileName)
}

func handleConfigShow(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfigFile(c)
	if err != nil {
		return err
	}
	if cfg == nil {
		fmt.Println("No config file found. Generate one with 'modcast config example'")
		return nil
	}

	data, err := json.MarshalIndent(cfg.MaskSecrets(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}
	fmt.Println(string(data))

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Println("")
		fmt.Println("Problems:")
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

func handleConfigExample(ctx context.Context, c *cli.Command) error {
	fmt.Println(config.GenerateExampleConfig())
	return nil
}
