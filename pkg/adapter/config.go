package adapter

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// GenerationConfig holds generation parameters shared by the generator adapters
type GenerationConfig struct {
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	MaxOutputTokens   int32   `yaml:"max_output_tokens"`
	SystemInstruction string  `yaml:"system_instruction"`
}

// DefaultGenerationConfig returns the built-in generation parameters
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:       0.7,
		MaxOutputTokens:   1024,
		SystemInstruction: defaultSystemInstruction,
	}
}

// LoadGenerationConfig reads a YAML file. Fields missing from the file keep their defaults.
func LoadGenerationConfig(path string) (GenerationConfig, error) {
	cfg := DefaultGenerationConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, goerr.Wrap(err, "failed to read generation config", goerr.V("file", path))
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, goerr.Wrap(err, "failed to parse YAML config", goerr.V("file", path))
	}

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return cfg, goerr.New("temperature must be between 0 and 2", goerr.V("temperature", cfg.Temperature))
	}

	return cfg, nil
}
