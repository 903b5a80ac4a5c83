package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder turns natural-language text into a fixed-dimension vector.
// The catalog uses it once per descriptor at registration time; the
// selector uses it once per turn for the query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds several texts in one round trip where the
	// provider supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// HashEmbedder is a deterministic, offline embedder based on feature
// hashing of word tokens. It is not semantically meaningful the way a
// model embedding is, but it is stable, fast, and good enough for tests
// and for deployments that cannot reach an embedding API: identical
// descriptions map to identical vectors and shared vocabulary still
// produces nonzero similarity.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a feature-hashing embedder with the given
// dimension. Dimensions below 8 are clamped to 8.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim < 8 {
		dim = 8
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimensions() int { return h.dim }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, tok := range tokenize(text) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		sum := f.Sum32()
		idx := int(sum % uint32(h.dim))
		// Sign bit from the hash keeps colliding tokens from only
		// reinforcing each other.
		if sum&0x80000000 != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched or empty vectors score zero rather than erroring; a missing
// embedding simply never ranks.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}

// NewFromConfig builds an embedder by provider name. Recognized providers
// are "openai" and "hash".
func NewFromConfig(provider, apiKey, model string, dim int) (Embedder, error) {
	switch strings.ToLower(provider) {
	case "", "hash":
		return NewHashEmbedder(dim), nil
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai embedder requires an API key")
		}
		return NewOpenAIEmbedder(apiKey, model, dim), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}
