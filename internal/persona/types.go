package persona

// Config describes one AI conversation participant.
// Values are immutable once handed to a Registry.
type Config struct {
	Name              string  `json:"name" yaml:"name"`
	Voice             string  `json:"voice,omitempty" yaml:"voice,omitempty"`
	Instructions      string  `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Temperature       float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxResponseTokens int     `json:"max_response_tokens,omitempty" yaml:"max_response_tokens,omitempty"`
}

// Cast is the on-disk description of a conversation: who takes part and
// what they talk about first.
type Cast struct {
	Topic    string   `json:"topic,omitempty" yaml:"topic,omitempty"`
	Personas []Config `json:"personas" yaml:"personas"`
}

// Defaults applied by WithDefaults
const (
	DefaultVoice             = "alloy"
	DefaultInstructions      = "You are a friendly AI assistant in a podcast conversation."
	DefaultTemperature       = 0.8
	DefaultMaxResponseTokens = 1000

	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// HumanName is the reserved participant name of the live user.
const HumanName = "Human"

// WithDefaults returns a copy of c with empty fields filled in.
func (c Config) WithDefaults() Config {
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.Instructions == "" {
		c.Instructions = DefaultInstructions
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxResponseTokens == 0 {
		c.MaxResponseTokens = DefaultMaxResponseTokens
	}
	return c
}
