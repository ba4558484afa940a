package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/daikw/modcast/internal/hook"
	"github.com/daikw/modcast/internal/orchestrator"
	"github.com/daikw/modcast/internal/persona"
	"github.com/daikw/modcast/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func handleRun(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfigFile(c)
	if err != nil {
		return err
	}
	for _, problem := range cfg.Validate() {
		log.Warn().Str("problem", problem).Msg("Config file has problems")
	}

	cast, castPath, err := loadCast(c, cfg)
	if err != nil {
		return err
	}

	humanName := c.String("human-name")
	if humanName == "" && cfg != nil {
		humanName = cfg.HumanName
	}
	if humanName == "" {
		humanName = persona.HumanName
	}
	registry, err := persona.NewRegistryWithHuman(cast.Personas, humanName)
	if err != nil {
		return err
	}

	providerName := cfg.EffectiveProvider(c.String("provider"))
	provider, err := session.NewFactory().CreateProvider(providerName, cfg.ProviderSettings(providerName))
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	orchConfig := cfg.OrchestratorConfig()
	if c.IsSet("max-turns") {
		orchConfig.MaxTurns = int(c.Int("max-turns"))
	}
	if c.IsSet("human-timeout") {
		orchConfig.HumanTimeout = c.Duration("human-timeout")
	}
	orchConfig.NoHuman = c.Bool("no-human")

	orch, err := orchestrator.New(registry, provider, orchConfig)
	if err != nil {
		return err
	}

	bus := orch.Events()
	bus.OnAll(newConsole(os.Stdout, registry.Names(), humanName).handle)

	if dir := c.String("output"); dir != "" {
		bus.OnAll(newTurnAudio(dir).handle)
	}

	if path := c.String("events"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create events file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		bus.OnAll(hook.JSONLSink(f))
	}

	if !orchConfig.NoHuman {
		bus.OnAll(newHumanInput(os.Stdin, os.Stdout, orch).handle)
	}

	topic := c.String("topic")
	if topic == "" {
		topic = cast.Topic
	}

	log.Debug().
		Str("provider", provider.Name()).
		Str("cast", castPath).
		Strs("participants", orch.Participants()).
		Int("max_turns", orchConfig.MaxTurns).
		Msg("Starting conversation")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx, topic); err != nil {
		return err
	}

	select {
	case <-orch.Done():
	case <-ctx.Done():
		orch.Stop()
		<-orch.Done()
	}

	failed := 0
	for _, rec := range orch.History() {
		if rec.Failed {
			failed++
		}
	}
	if failed > 0 {
		log.Warn().Int("failed_turns", failed).Msg("Some turns failed")
	}
	return nil
}

func handleReplay(ctx context.Context, c *cli.Command) error {
	path := c.Args().Get(0)
	if path == "" {
		return fmt.Errorf("events file is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	events, err := hook.ReadEvents(f)
	if err != nil {
		return err
	}

	var speakers []string
	seen := map[string]bool{}
	human := persona.HumanName
	for _, e := range events {
		if e.Kind == hook.HumanTurnStarted {
			human = e.Speaker
		}
		if e.Kind == hook.TurnStarted && !seen[e.Speaker] {
			seen[e.Speaker] = true
			speakers = append(speakers, e.Speaker)
		}
	}

	out := newConsole(os.Stdout, speakers, human)
	for _, e := range events {
		_ = out.handle(e)
	}
	return nil
}
