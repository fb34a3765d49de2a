package detect

import "fmt"

// FusionMode selects how the motion and color masks are combined.
type FusionMode string

const (
	// FusionUnion keeps a pixel if either stage flagged it, taking the
	// higher score.
	FusionUnion FusionMode = "union"
	// FusionIntersection keeps a pixel only if both stages flagged it,
	// taking the lower score.
	FusionIntersection FusionMode = "intersection"
	// FusionWeighted blends the two scores linearly with MotionWeight.
	FusionWeighted FusionMode = "weighted"
)

// ParseFusionMode validates a mode string from config.
func ParseFusionMode(s string) (FusionMode, error) {
	switch FusionMode(s) {
	case FusionUnion, FusionIntersection, FusionWeighted:
		return FusionMode(s), nil
	}
	return "", fmt.Errorf("unknown fusion mode %q", s)
}

// Fuse combines the two stage masks into one. Either input may be nil: a
// suppressed or still-learning stage contributes nothing, and fusion falls
// back to the surviving mask regardless of mode. Both masks nil yields nil.
func Fuse(motion, color *ScoreMask, mode FusionMode, motionWeight float64) *ScoreMask {
	if motion == nil && color == nil {
		return nil
	}
	if motion == nil {
		return color
	}
	if color == nil {
		return motion
	}

	out := NewScoreMask(motion.W, motion.H)
	w := float32(motionWeight)

	switch mode {
	case FusionIntersection:
		for i := range out.Score {
			m, c := motion.Score[i], color.Score[i]
			if m > 0 && c > 0 {
				if m < c {
					out.Score[i] = m
				} else {
					out.Score[i] = c
				}
			}
		}
	case FusionWeighted:
		for i := range out.Score {
			out.Score[i] = w*motion.Score[i] + (1-w)*color.Score[i]
		}
	default: // union
		for i := range out.Score {
			m, c := motion.Score[i], color.Score[i]
			if m > c {
				out.Score[i] = m
			} else {
				out.Score[i] = c
			}
		}
	}
	return out
}
