package adapter_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/nova/pkg/adapter"
)

func TestLoadGenerationConfig(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := adapter.LoadGenerationConfig("")
		gt.NoError(t, err)
		gt.Equal(t, cfg.Temperature, float32(0.7))
		gt.S(t, cfg.SystemInstruction).Contains("Nova")
	})

	t.Run("file overrides fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "generation.yaml")
		gt.NoError(t, os.WriteFile(path, []byte("temperature: 0.2\nsystem_instruction: be brief\n"), 0600))

		cfg, err := adapter.LoadGenerationConfig(path)
		gt.NoError(t, err)
		gt.Equal(t, cfg.Temperature, float32(0.2))
		gt.Equal(t, cfg.SystemInstruction, "be brief")
		gt.Equal(t, cfg.MaxOutputTokens, int32(1024))
	})

	t.Run("out of range temperature", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "generation.yaml")
		gt.NoError(t, os.WriteFile(path, []byte("temperature: 3\n"), 0600))

		_, err := adapter.LoadGenerationConfig(path)
		gt.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := adapter.LoadGenerationConfig(filepath.Join(t.TempDir(), "none.yaml"))
		gt.Error(t, err)
	})
}
