package detect

// ScoreMask is a per-pixel anomaly score map in [0, 1]. Zero means the
// pixel is unremarkable; anything above zero is a candidate anomaly pixel.
type ScoreMask struct {
	W, H  int
	Score []float32
}

// NewScoreMask allocates a zeroed mask for the given dimensions.
func NewScoreMask(w, h int) *ScoreMask {
	return &ScoreMask{W: w, H: h, Score: make([]float32, w*h)}
}

func (m *ScoreMask) At(x, y int) float32 {
	return m.Score[y*m.W+x]
}

func (m *ScoreMask) Set(x, y int, v float32) {
	m.Score[y*m.W+x] = v
}

// ActivePixels counts pixels with a nonzero score.
func (m *ScoreMask) ActivePixels() int {
	n := 0
	for _, v := range m.Score {
		if v > 0 {
			n++
		}
	}
	return n
}
