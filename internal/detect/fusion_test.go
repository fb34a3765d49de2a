package detect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func maskWith(w, h int, points map[[2]int]float32) *ScoreMask {
	m := NewScoreMask(w, h)
	for p, s := range points {
		m.Set(p[0], p[1], s)
	}
	return m
}

func TestFuseUnionTakesMaxScore(t *testing.T) {
	motion := maskWith(4, 4, map[[2]int]float32{{0, 0}: 0.8, {1, 1}: 0.3})
	color := maskWith(4, 4, map[[2]int]float32{{1, 1}: 0.6, {2, 2}: 0.5})

	out := Fuse(motion, color, FusionUnion, 0.5)
	require.InDelta(t, 0.8, out.At(0, 0), 1e-6)
	require.InDelta(t, 0.6, out.At(1, 1), 1e-6)
	require.InDelta(t, 0.5, out.At(2, 2), 1e-6)
	require.Zero(t, out.At(3, 3))
}

func TestFuseIntersectionRequiresBoth(t *testing.T) {
	motion := maskWith(4, 4, map[[2]int]float32{{0, 0}: 0.8, {1, 1}: 0.3})
	color := maskWith(4, 4, map[[2]int]float32{{1, 1}: 0.6, {2, 2}: 0.5})

	out := Fuse(motion, color, FusionIntersection, 0.5)
	require.Zero(t, out.At(0, 0))
	require.InDelta(t, 0.3, out.At(1, 1), 1e-6)
	require.Zero(t, out.At(2, 2))
}

func TestFuseWeightedBlendsDisjointRegions(t *testing.T) {
	motion := maskWith(4, 4, map[[2]int]float32{{0, 0}: 1.0})
	color := maskWith(4, 4, map[[2]int]float32{{3, 3}: 1.0})

	out := Fuse(motion, color, FusionWeighted, 0.6)
	require.InDelta(t, 0.6, out.At(0, 0), 1e-6)
	require.InDelta(t, 0.4, out.At(3, 3), 1e-6)
	require.Zero(t, out.At(1, 1))
}

func TestFuseFallsBackWhenOneStageIsSilent(t *testing.T) {
	color := maskWith(4, 4, map[[2]int]float32{{2, 2}: 0.5})

	// Motion suppressed: every mode degrades to color-only
	for _, mode := range []FusionMode{FusionUnion, FusionIntersection, FusionWeighted} {
		out := Fuse(nil, color, mode, 0.5)
		require.Same(t, color, out, "mode %s", mode)
	}

	motion := maskWith(4, 4, map[[2]int]float32{{1, 1}: 0.7})
	out := Fuse(motion, nil, FusionIntersection, 0.5)
	require.Same(t, motion, out)

	require.Nil(t, Fuse(nil, nil, FusionUnion, 0.5))
}

func TestParseFusionMode(t *testing.T) {
	for _, valid := range []string{"union", "intersection", "weighted"} {
		mode, err := ParseFusionMode(valid)
		require.NoError(t, err)
		require.Equal(t, FusionMode(valid), mode)
	}

	_, err := ParseFusionMode("average")
	require.Error(t, err)
}
