package persona

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPersonas() []Config {
	return []Config{
		{Name: "Alex", Voice: "ballad", Instructions: "host", Temperature: 0.8, MaxResponseTokens: 1000},
		{Name: "Sam", Voice: "ash", Instructions: "researcher", Temperature: 0.7, MaxResponseTokens: 800},
		{Name: "Jordan", Voice: "shimmer", Instructions: "developer", Temperature: 0.6, MaxResponseTokens: 600},
	}
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry(testPersonas())
	require.NoError(t, err)

	assert.Equal(t, 3, registry.Len())
	assert.Equal(t, []string{"Alex", "Sam", "Jordan"}, registry.Names())
	assert.Equal(t, []string{"Alex", "Sam", "Jordan", HumanName}, registry.Participants())
	assert.Equal(t, HumanName, registry.HumanName())
}

func TestRegistry_GetReturnsExactConfig(t *testing.T) {
	personas := testPersonas()
	registry, err := NewRegistry(personas)
	require.NoError(t, err)

	for _, p := range personas {
		got, err := registry.Get(p.Name)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	registry, err := NewRegistry(testPersonas())
	require.NoError(t, err)

	_, err = registry.Get("Nobody")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Get is exact, Resolve folds case
	_, err = registry.Get("alex")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistry_RegisterFailures(t *testing.T) {
	tests := []struct {
		name     string
		personas []Config
		contains string
	}{
		{"empty sequence", nil, "at least one persona"},
		{"duplicate name", []Config{{Name: "Alex"}, {Name: "Alex"}}, "duplicate persona name"},
		{"duplicate name ignoring case", []Config{{Name: "Alex"}, {Name: "ALEX"}}, "duplicate persona name"},
		{"empty name", []Config{{Name: " "}}, "name cannot be empty"},
		{"reserved human name", []Config{{Name: "human"}}, "reserved"},
		{"temperature too high", []Config{{Name: "Alex", Temperature: 2.5}}, "temperature"},
		{"negative temperature", []Config{{Name: "Alex", Temperature: -0.1}}, "temperature"},
		{"negative token budget", []Config{{Name: "Alex", MaxResponseTokens: -1}}, "max_response_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.personas)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestRegistry_RegisterTwice(t *testing.T) {
	registry, err := NewRegistry(testPersonas())
	require.NoError(t, err)

	err = registry.Register(testPersonas())
	assert.True(t, errors.Is(err, ErrConfig))
	assert.Equal(t, 3, registry.Len())
}

func TestRegistry_DoesNotAliasInput(t *testing.T) {
	personas := testPersonas()
	registry, err := NewRegistry(personas)
	require.NoError(t, err)

	personas[0].Instructions = "changed"

	got, err := registry.Get("Alex")
	require.NoError(t, err)
	assert.Equal(t, "host", got.Instructions)
}

func TestRegistry_Resolve(t *testing.T) {
	registry, err := NewRegistry(testPersonas())
	require.NoError(t, err)

	p, ok := registry.Resolve("  jordan ")
	assert.True(t, ok)
	assert.Equal(t, "Jordan", p.Name)

	_, ok = registry.Resolve("Taylor")
	assert.False(t, ok)

	assert.True(t, registry.IsHuman("HUMAN"))
	assert.False(t, registry.IsHuman("Sam"))
	assert.Equal(t, 1, registry.Index("Sam"))
	assert.Equal(t, -1, registry.Index("sam"))
	assert.Equal(t, "Jordan", registry.At(2).Name)
}

func TestNewRegistryWithHuman(t *testing.T) {
	registry, err := NewRegistryWithHuman(testPersonas(), "Listener")
	require.NoError(t, err)

	assert.Equal(t, "Listener", registry.HumanName())
	assert.True(t, registry.IsHuman("listener"))
	assert.False(t, registry.IsHuman(HumanName))

	// The default human name becomes an ordinary persona name
	_, err = NewRegistryWithHuman([]Config{{Name: HumanName}}, "Listener")
	assert.NoError(t, err)

	_, err = NewRegistryWithHuman([]Config{{Name: "listener"}}, "Listener")
	assert.True(t, errors.Is(err, ErrConfig))
}
