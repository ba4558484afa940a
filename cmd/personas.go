package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/daikw/modcast/internal/persona"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func loadRegistry(c *cli.Command) (*persona.Registry, *persona.Cast, string, error) {
	cfg, err := loadConfigFile(c)
	if err != nil {
		return nil, nil, "", err
	}
	cast, path, err := loadCast(c, cfg)
	if err != nil {
		return nil, nil, "", err
	}

	humanName := persona.HumanName
	if cfg != nil && cfg.HumanName != "" {
		humanName = cfg.HumanName
	}
	registry, err := persona.NewRegistryWithHuman(cast.Personas, humanName)
	if err != nil {
		return nil, nil, "", err
	}
	return registry, cast, path, nil
}

func handlePersonasList(ctx context.Context, c *cli.Command) error {
	registry, cast, path, err := loadRegistry(c)
	if err != nil {
		return err
	}

	if path == "" {
		fmt.Println("Built-in cast (create your own with 'modcast personas init'):")
	} else {
		fmt.Printf("Cast from %s:\n", path)
	}
	for i, name := range registry.Names() {
		p := registry.At(i)
		fmt.Printf("  %d. %s (voice: %s, temperature: %.1f)\n", i+1, name, p.Voice, p.Temperature)
	}
	fmt.Printf("  +  %s (human participant)\n", registry.HumanName())

	if cast.Topic != "" {
		fmt.Printf("\nTopic: %s\n", cast.Topic)
	}
	return nil
}

func handlePersonasShow(ctx context.Context, c *cli.Command) error {
	name := c.Args().Get(0)
	if name == "" {
		return fmt.Errorf("persona name is required")
	}

	registry, _, _, err := loadRegistry(c)
	if err != nil {
		return err
	}

	p, err := registry.Get(name)
	if err != nil {
		resolved, ok := registry.Resolve(name)
		if !ok {
			return err
		}
		p = resolved
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to format persona: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func handlePersonasInit(ctx context.Context, c *cli.Command) error {
	path := c.Args().Get(0)
	if path == "" {
		path = defaultCastPath()
	}

	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		log.Warn().Str("path", path).Msg("Cast file already exists")
		fmt.Println("Use --force to overwrite it")
		return nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check cast file: %w", err)
	}

	if err := persona.SaveCast(path, persona.DefaultCast()); err != nil {
		return err
	}

	log.Info().Str("path", path).Msg("Cast file created")
	fmt.Printf("Created %s with the default cast\n", path)
	return nil
}

func handlePersonasValidate(ctx context.Context, c *cli.Command) error {
	path := c.Args().Get(0)
	if path == "" {
		path = c.String("cast")
	}
	if path == "" {
		found, err := persona.FindCast(".")
		if err != nil {
			return err
		}
		path = found
	}
	if path == "" {
		return fmt.Errorf("no cast file found, create one with 'modcast personas init'")
	}

	cast, err := persona.LoadCast(path)
	if err != nil {
		return err
	}
	registry, err := persona.NewRegistry(cast.Personas)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s: %d personas OK (%v)\n", path, registry.Len(), registry.Names())
	return nil
}
