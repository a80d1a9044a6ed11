package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(chunkID string, score float64) Result {
	return Result{ChunkID: chunkID, DocumentID: "doc-" + chunkID, Content: "content " + chunkID, Score: score}
}

func TestFusion_WeightsApplied(t *testing.T) {
	f := NewFusionWithWeights(0.5, 0.5)

	semantic := []Result{result("a", 0.8)}
	keyword := []Result{result("b", 4.0), result("c", 2.0)}

	fused := f.Fuse(semantic, keyword)
	require.Len(t, fused, 3)

	scores := map[string]float64{}
	for _, r := range fused {
		scores[r.ChunkID] = r.Score
	}
	// Keyword scores scale to b=1, c=0.
	assert.InDelta(t, 0.4, scores["a"], 1e-9)
	assert.InDelta(t, 0.5, scores["b"], 1e-9)
	assert.InDelta(t, 0.0, scores["c"], 1e-9)
	assert.Equal(t, "b", fused[0].ChunkID)
}

func TestFusion_OverlappingChunkGetsBothContributions(t *testing.T) {
	f := NewFusionWithWeights(0.7, 0.3)

	semantic := []Result{result("a", 0.5), result("b", 0.9)}
	keyword := []Result{result("a", 3.0)}

	fused := f.Fuse(semantic, keyword)
	require.Len(t, fused, 2)

	// a: 0.7*0.5 + 0.3*1.0 = 0.65, b: 0.7*0.9 = 0.63.
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.InDelta(t, 0.65, fused[0].Score, 1e-9)
	assert.Equal(t, "b", fused[1].ChunkID)
	assert.InDelta(t, 0.63, fused[1].Score, 1e-9)
}

func TestFusion_TieBreaksByChunkID(t *testing.T) {
	f := NewFusion()

	semantic := []Result{result("z", 0.5), result("a", 0.5), result("m", 0.5)}

	fused := f.Fuse(semantic, nil)
	require.Len(t, fused, 3)
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.Equal(t, "m", fused[1].ChunkID)
	assert.Equal(t, "z", fused[2].ChunkID)
}

func TestFusion_ConstantKeywordScoresScaleToOne(t *testing.T) {
	f := NewFusionWithWeights(0.7, 0.3)

	keyword := []Result{result("a", 2.5), result("b", 2.5)}

	fused := f.Fuse(nil, keyword)
	require.Len(t, fused, 2)
	for _, r := range fused {
		assert.InDelta(t, 0.3, r.Score, 1e-9)
	}
}

func TestFusion_EmptyLists(t *testing.T) {
	f := NewFusion()
	assert.Empty(t, f.Fuse(nil, nil))
}

func TestFusion_TopK(t *testing.T) {
	f := NewFusion()

	semantic := []Result{result("a", 0.9), result("b", 0.8), result("c", 0.7)}

	fused := f.FuseTopK(2, semantic, nil)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.Equal(t, "b", fused[1].ChunkID)
}

func TestNewFusionWithWeights_Defaults(t *testing.T) {
	f := NewFusionWithWeights(0, 0)
	assert.Equal(t, DefaultSemanticWeight, f.SemanticWeight())
	assert.Equal(t, DefaultKeywordWeight, f.KeywordWeight())
}
