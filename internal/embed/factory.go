package embed

import (
	"fmt"

	"github.com/abelbrown/chorus/internal/config"
)

// FromConfig builds the configured Embedder. It does not probe
// availability: callers check Available() at use time so a service that
// comes up later is picked up without a restart.
func FromConfig(cfg config.EmbedConfig) (Embedder, error) {
	switch cfg.Provider {
	case "http":
		return NewClient(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Dimensions, cfg.RequestsPerMinute), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaEndpoint, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", cfg.Provider)
	}
}
