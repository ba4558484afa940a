package persona

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
)

var (
	// ErrConfig reports a persona setup that cannot be registered.
	ErrConfig = errors.New("invalid persona configuration")
	// ErrNotFound reports a lookup of an unregistered persona.
	ErrNotFound = errors.New("persona not found")
)

// Registry holds the personas of one conversation in registration order.
// It is read-only after Register succeeds.
type Registry struct {
	personas  []Config
	byName    map[string]int
	byFolded  map[string]int
	humanName string
}

// NewRegistry creates a registry and registers personas in one step.
func NewRegistry(personas []Config) (*Registry, error) {
	r := &Registry{humanName: HumanName}
	if err := r.Register(personas); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRegistryWithHuman is NewRegistry with a custom reserved human name.
func NewRegistryWithHuman(personas []Config, humanName string) (*Registry, error) {
	if humanName == "" {
		humanName = HumanName
	}
	r := &Registry{humanName: humanName}
	if err := r.Register(personas); err != nil {
		return nil, err
	}
	return r, nil
}

// Register validates and stores personas. It can only succeed once.
func (r *Registry) Register(personas []Config) error {
	if r.personas != nil {
		return fmt.Errorf("%w: registry already populated", ErrConfig)
	}
	if len(personas) == 0 {
		return fmt.Errorf("%w: at least one persona is required", ErrConfig)
	}
	if r.humanName == "" {
		r.humanName = HumanName
	}

	byName := make(map[string]int, len(personas))
	byFolded := make(map[string]int, len(personas))
	human := foldName(r.humanName)

	for i, p := range personas {
		if err := ValidateConfig(p); err != nil {
			return fmt.Errorf("persona #%d: %w", i+1, err)
		}
		folded := foldName(p.Name)
		if folded == human {
			return fmt.Errorf("%w: name %q is reserved for the human participant", ErrConfig, p.Name)
		}
		if j, exists := byFolded[folded]; exists {
			return fmt.Errorf("%w: duplicate persona name %q (also #%d)", ErrConfig, p.Name, j+1)
		}
		byName[p.Name] = i
		byFolded[folded] = i
	}

	r.personas = make([]Config, len(personas))
	copy(r.personas, personas)
	r.byName = byName
	r.byFolded = byFolded

	log.Debug().Int("count", len(personas)).Strs("personas", r.Names()).Msg("Registered personas")
	return nil
}

// Get returns the persona registered under exactly name.
func (r *Registry) Get(name string) (Config, error) {
	i, ok := r.byName[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.personas[i], nil
}

// Resolve looks a persona up ignoring case.
func (r *Registry) Resolve(name string) (Config, bool) {
	if r.byFolded == nil {
		return Config{}, false
	}
	i, ok := r.byFolded[foldName(name)]
	if !ok {
		return Config{}, false
	}
	return r.personas[i], true
}

// Index returns the registration position of the named persona, or -1.
func (r *Registry) Index(name string) int {
	if i, ok := r.byName[name]; ok {
		return i
	}
	return -1
}

// IsHuman reports whether name designates the human participant.
func (r *Registry) IsHuman(name string) bool {
	return foldName(name) == foldName(r.humanName)
}

// HumanName returns the reserved name of the human participant.
func (r *Registry) HumanName() string {
	return r.humanName
}

// Len returns the number of registered personas.
func (r *Registry) Len() int {
	return len(r.personas)
}

// At returns the persona at registration position i.
func (r *Registry) At(i int) Config {
	return r.personas[i]
}

// Names returns persona names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.personas))
	for i, p := range r.personas {
		names[i] = p.Name
	}
	return names
}

// Participants returns persona names followed by the human participant.
func (r *Registry) Participants() []string {
	return append(r.Names(), r.humanName)
}

// foldName normalizes a name for case-insensitive comparison.
// A Caser is stateful, so each call gets its own.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
