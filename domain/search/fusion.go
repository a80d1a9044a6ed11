package search

import "sort"

// Fusion combines semantic and keyword result lists into one ranking using
// weighted score combination.
type Fusion struct {
	semanticWeight float64
	keywordWeight  float64
}

// NewFusion creates a Fusion with the default weights.
func NewFusion() Fusion {
	return Fusion{
		semanticWeight: DefaultSemanticWeight,
		keywordWeight:  DefaultKeywordWeight,
	}
}

// NewFusionWithWeights creates a Fusion with custom weights. Non-positive
// weight pairs fall back to the defaults. The weights are applied as given,
// without normalizing their sum.
func NewFusionWithWeights(semanticWeight, keywordWeight float64) Fusion {
	if semanticWeight <= 0 && keywordWeight <= 0 {
		return NewFusion()
	}
	return Fusion{
		semanticWeight: semanticWeight,
		keywordWeight:  keywordWeight,
	}
}

// SemanticWeight returns the weight applied to semantic scores.
func (f Fusion) SemanticWeight() float64 { return f.semanticWeight }

// KeywordWeight returns the weight applied to keyword scores.
func (f Fusion) KeywordWeight() float64 { return f.keywordWeight }

// Fuse combines a semantic and a keyword result list. Semantic scores are
// cosine similarities already in [0, 1]; keyword BM25 scores are unbounded
// and are min-max scaled into [0, 1] before weighting. A chunk appearing in
// both lists gets both weighted contributions. The fused list is sorted by
// combined score descending with ties broken by chunk ID so the ranking is
// stable across runs.
func (f Fusion) Fuse(semantic, keyword []Result) []Result {
	scaled := scaleScores(keyword)

	combined := make(map[string]Result, len(semantic)+len(keyword))
	scores := make(map[string]float64, len(semantic)+len(keyword))

	for _, r := range semantic {
		combined[r.ChunkID] = r
		scores[r.ChunkID] += f.semanticWeight * r.Score
	}
	for i, r := range keyword {
		if _, seen := combined[r.ChunkID]; !seen {
			combined[r.ChunkID] = r
		}
		scores[r.ChunkID] += f.keywordWeight * scaled[i]
	}

	results := make([]Result, 0, len(combined))
	for id, r := range combined {
		r.Score = scores[id]
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results
}

// FuseTopK combines the lists and returns at most topK results.
func (f Fusion) FuseTopK(topK int, semantic, keyword []Result) []Result {
	results := f.Fuse(semantic, keyword)
	if topK <= 0 || topK >= len(results) {
		return results
	}
	return results[:topK]
}

// scaleScores min-max scales the scores of a ranked list into [0, 1]. A
// single-element or constant-score list scales to 1.
func scaleScores(results []Result) []float64 {
	if len(results) == 0 {
		return nil
	}

	minScore := results[0].Score
	maxScore := results[0].Score
	for _, r := range results[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	scaled := make([]float64, len(results))
	spread := maxScore - minScore
	for i, r := range results {
		if spread == 0 {
			scaled[i] = 1
			continue
		}
		scaled[i] = (r.Score - minScore) / spread
	}
	return scaled
}
