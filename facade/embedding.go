package facade

import (
	"fmt"

	"knowledgefabric/fabricerr"
	"knowledgefabric/memory"
)

// buildEmbeddingProvider resolves the configured embedding_provider
// option into a memory.EmbeddingProvider. "none" (the default) disables
// semantic similarity entirely; any other name is rejected since no
// concrete provider ships with this module. A caller-supplied provider
// is wired via memory.WithEmbeddingProvider instead.
func buildEmbeddingProvider(name string) (memory.EmbeddingProvider, error) {
	switch name {
	case "", "none":
		return nil, nil
	default:
		return nil, fabricerr.New(fabricerr.ConfigurationError,
			fmt.Sprintf("unsupported embedding_provider %q (only \"none\" ships with this core; wire a provider via memory.WithEmbeddingProvider in a caller-supplied build)", name))
	}
}
