package selector

import (
	"toolgate/internal/embedding"
	"toolgate/pkg/models"
)

// ScoreFunc rates how well an entry matches the embedded query. Higher is
// better; a non-positive score drops the entry from ranking.
type ScoreFunc func(queryVec []float32, entry models.CatalogEntry) float64

// Scorer is a named scoring strategy. The name shows up in debug logs so
// a swapped-in strategy is visible in the field.
type Scorer struct {
	Name  string
	Score ScoreFunc
}

// CosineScorer is the default strategy: cosine similarity between the
// query vector and the entry's description embedding. Entries without an
// embedding score zero and never rank.
func CosineScorer() Scorer {
	return Scorer{
		Name: "cosine",
		Score: func(queryVec []float32, entry models.CatalogEntry) float64 {
			return float64(embedding.CosineSimilarity(queryVec, entry.Vector()))
		},
	}
}
