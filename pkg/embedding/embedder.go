// Package embedding turns text into fixed-length vectors for nearest-neighbour
// routing.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/zen-systems/switchboard/pkg/config"
)

// Embedder converts text into a vector of Dimensions() float32 values.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// ErrEmptyText is returned for blank input.
var ErrEmptyText = errors.New("embedding: empty text")

// New builds the embedder selected by cfg.Embedding.
func New(cfg *config.Config) (Embedder, error) {
	ec := cfg.Embedding
	switch strings.ToLower(ec.Provider) {
	case "openai":
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, ec.Model, ec.Dimensions)
	case "google":
		return NewGoogleEmbedder(context.Background(), cfg.GoogleAPIKey, ec.Model, ec.Dimensions)
	case "hash", "":
		return NewHashEmbedder(ec.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}
}

// Normalize scales vec to unit length so cosine similarity reduces to a dot
// product. A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	magnitude := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / magnitude)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func checkDimensions(name string, vec []float32, want int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%s returned an empty embedding", name)
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%s returned %d dimensions, expected %d", name, len(vec), want)
	}
	return nil
}
