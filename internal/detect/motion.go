package detect

import (
	"image"
	"log"
	"sync"
)

// MotionConfig controls the background-subtraction stage.
type MotionConfig struct {
	// LearningRate is the per-frame blend factor for the running
	// background model, in (0, 1].
	LearningRate float64
	// Threshold is the minimum grayscale deviation a pixel must show
	// before it counts as changed. The effective per-pixel threshold
	// adapts upward in noisy regions but never drops below this floor.
	Threshold float64
	// LearnFrames is the number of initial frames used purely to build
	// the background model. No motion output is produced during this
	// window.
	LearnFrames int
	// GlobalCeiling is the fraction of changed pixels above which the
	// frame is treated as global camera movement rather than scene
	// motion, suppressing output for that frame.
	GlobalCeiling float64
}

// MotionStage maintains a per-pixel running-average background model and
// flags pixels whose grayscale value deviates from it. Aerial platforms
// move, so a frame where most of the scene changed at once is attributed
// to camera motion and produces no output.
type MotionStage struct {
	mu  sync.Mutex
	cfg MotionConfig

	w, h   int
	mean   []float32
	dev    []float32
	frames int
}

const devGain = 2.5 // deviation multiplier for the adaptive threshold

func NewMotionStage(cfg MotionConfig) *MotionStage {
	return &MotionStage{cfg: cfg}
}

// SetConfig swaps in new parameters. Model state is kept; only the
// thresholds change.
func (m *MotionStage) SetConfig(cfg MotionConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Reset discards the background model. The next frames re-enter the
// learning period.
func (m *MotionStage) Reset() {
	m.mu.Lock()
	m.resetLocked(0, 0)
	m.mu.Unlock()
}

func (m *MotionStage) resetLocked(w, h int) {
	m.w, m.h = w, h
	m.mean = nil
	m.dev = nil
	m.frames = 0
	if w > 0 && h > 0 {
		m.mean = make([]float32, w*h)
		m.dev = make([]float32, w*h)
	}
}

// Learning reports whether the stage is still inside its warm-up window.
func (m *MotionStage) Learning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames <= m.cfg.LearnFrames
}

// Process updates the background model with the frame and returns a score
// mask of deviating pixels. The mask is nil while the model is still
// learning, or with suppressed=true when the frame looks like global
// camera movement.
func (m *MotionStage) Process(img *image.RGBA) (mask *ScoreMask, suppressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w != m.w || h != m.h {
		if m.w != 0 {
			log.Printf("[Motion] Resolution changed %dx%d -> %dx%d, resetting model", m.w, m.h, w, h)
		}
		m.resetLocked(w, h)
	}

	gray := grayPlane(img)
	m.frames++

	if m.frames == 1 {
		copy(m.mean, gray)
		return nil, false
	}

	lr := float32(m.cfg.LearningRate)
	floor := float32(m.cfg.Threshold)

	if m.frames <= m.cfg.LearnFrames {
		m.updateModel(gray, lr)
		return nil, false
	}

	// First pass: count deviating pixels to estimate global motion.
	changed := 0
	for i, g := range gray {
		d := g - m.mean[i]
		if d < 0 {
			d = -d
		}
		thr := devGain * m.dev[i]
		if thr < floor {
			thr = floor
		}
		if d > thr {
			changed++
		}
	}

	ratio := float64(changed) / float64(len(gray))
	if m.cfg.GlobalCeiling > 0 && ratio > m.cfg.GlobalCeiling {
		// Camera moved. Relearn faster so the model catches up with
		// the new viewpoint instead of flagging everything.
		boost := lr * 5
		if boost > 1 {
			boost = 1
		}
		m.updateModel(gray, boost)
		return nil, true
	}

	mask = NewScoreMask(w, h)
	for i, g := range gray {
		d := g - m.mean[i]
		if d < 0 {
			d = -d
		}
		thr := devGain * m.dev[i]
		if thr < floor {
			thr = floor
		}
		if d > thr {
			s := (d - thr) / thr
			if s > 1 {
				s = 1
			}
			mask.Score[i] = s
		}
	}

	m.updateModel(gray, lr)
	return mask, false
}

func (m *MotionStage) updateModel(gray []float32, lr float32) {
	for i, g := range gray {
		m.mean[i] += lr * (g - m.mean[i])
		d := g - m.mean[i]
		if d < 0 {
			d = -d
		}
		m.dev[i] += lr * (d - m.dev[i])
	}
}

// grayPlane converts RGBA pixels to a luma plane using the BT.601 weights.
func grayPlane(img *image.RGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			r := float32(row[x*4])
			g := float32(row[x*4+1])
			bb := float32(row[x*4+2])
			out[y*w+x] = 0.299*r + 0.587*g + 0.114*bb
		}
	}
	return out
}
