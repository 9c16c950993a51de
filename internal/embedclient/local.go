package embedclient

import (
	"context"
	"sort"
)

// LocalEmbedder produces a deterministic hash-derived vector without
// calling any external service. It exists for local development and
// tests where no embedding provider is configured; the vectors it
// produces are not semantically meaningful, only stable and
// fixed-dimension, which is all the storage/similarity contract
// requires of an Embedder.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder builds a LocalEmbedder producing vectors of the given
// dimension.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalEmbedder{dimension: dimension}
}

func (e *LocalEmbedder) Embed(_ context.Context, text string, reqContext map[string]string) ([]float32, error) {
	seed := uint32(2166136261) // FNV offset basis
	hashString := func(s string) {
		for _, c := range s {
			seed ^= uint32(c)
			seed *= 16777619 // FNV prime
		}
	}
	hashString(text)
	keys := make([]string, 0, len(reqContext))
	for k := range reqContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		hashString(k)
		hashString(reqContext[k])
	}

	vec := make([]float32, e.dimension)
	state := seed
	for i := range vec {
		state = state*1103515245 + 12345
		vec[i] = float32(state%2000)/1000.0 - 1.0
	}
	return vec, nil
}
