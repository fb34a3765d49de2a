package detect

import (
	"image"
	"sort"
	"sync"

	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// ColorConfig controls the color rarity stage.
type ColorConfig struct {
	// Bins is the number of quantization levels per RGB channel. The
	// histogram has Bins^3 cells.
	Bins int
	// Percentile picks the rarity cutoff: bins whose population falls
	// below this quantile of occupied-bin populations are rare.
	// Expressed in (0, 1), e.g. 0.02.
	Percentile float64
	// LearningRate is the per-frame decay applied to the rolling
	// histogram, in (0, 1].
	LearningRate float64
	// MinPopulation is the smallest bin population that is still
	// trusted. Bins below it are treated as sensor noise, not anomalies.
	MinPopulation float64
	// CapFraction bounds the rarity cutoff at this fraction of the
	// total population, so a near-uniform scene cannot flag half its
	// own pixels as rare.
	CapFraction float64
	// Downsample is the integer factor applied before histogramming.
	Downsample int
}

// ColorStage maintains a decayed histogram of quantized RGB values over
// recent frames and flags pixels whose color bin is rare relative to the
// rest of the scene. Rarity is relative, so it adapts to terrain: orange
// is anomalous over forest and unremarkable over autumn scrub.
type ColorStage struct {
	mu  sync.Mutex
	cfg ColorConfig

	model  []float64 // decayed per-bin population
	total  float64
	frames int
	sw, sh int // downsampled dimensions the model was built at
}

func NewColorStage(cfg ColorConfig) *ColorStage {
	if cfg.Downsample < 1 {
		cfg.Downsample = 1
	}
	return &ColorStage{cfg: cfg}
}

func (c *ColorStage) SetConfig(cfg ColorConfig) {
	if cfg.Downsample < 1 {
		cfg.Downsample = 1
	}
	c.mu.Lock()
	if cfg.Bins != c.cfg.Bins || cfg.Downsample != c.cfg.Downsample {
		c.resetLocked()
	}
	c.cfg = cfg
	c.mu.Unlock()
}

// Reset discards the histogram model.
func (c *ColorStage) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *ColorStage) resetLocked() {
	c.model = nil
	c.total = 0
	c.frames = 0
}

// Process folds the frame into the rolling histogram and returns a
// full-resolution score mask of rare-color pixels. The mask is nil until
// the model has seen at least two frames.
func (c *ColorStage) Process(img *image.RGBA) *ScoreMask {
	c.mu.Lock()
	defer c.mu.Unlock()

	small := downsample(img, c.cfg.Downsample)
	sb := small.Bounds()
	sw, sh := sb.Dx(), sb.Dy()

	bins := c.cfg.Bins
	nCells := bins * bins * bins
	if c.model == nil || sw != c.sw || sh != c.sh || len(c.model) != nCells {
		c.model = make([]float64, nCells)
		c.total = 0
		c.frames = 0
		c.sw, c.sh = sw, sh
	}

	// Quantize once, reusing the indices for both the histogram update
	// and the mask pass.
	idx := make([]int, sw*sh)
	cur := make([]float64, nCells)
	for y := 0; y < sh; y++ {
		row := small.Pix[y*small.Stride : y*small.Stride+sw*4]
		for x := 0; x < sw; x++ {
			r := int(row[x*4])
			g := int(row[x*4+1])
			b := int(row[x*4+2])
			bin := (r*bins/256)*bins*bins + (g*bins/256)*bins + b*bins/256
			idx[y*sw+x] = bin
			cur[bin]++
		}
	}

	c.frames++
	if c.frames == 1 {
		copy(c.model, cur)
		c.total = float64(sw * sh)
		return nil
	}

	lr := c.cfg.LearningRate
	for i := range c.model {
		c.model[i] = c.model[i]*(1-lr) + cur[i]*lr
	}

	cutoff := c.rarityCutoff()
	smallMask := NewScoreMask(sw, sh)
	if cutoff <= 0 {
		// Too few occupied bins to rank; nothing is rare
		return upscale(smallMask, c.cfg.Downsample, img.Bounds().Dx(), img.Bounds().Dy())
	}

	for i, bin := range idx {
		if bin == 0 {
			// Bin zero absorbs dropouts and dead pixels, never rare.
			continue
		}
		pop := c.model[bin]
		if pop < c.cfg.MinPopulation || pop >= cutoff {
			continue
		}
		s := 1 - float32(pop/c.total)
		if s < 0 {
			s = 0
		}
		smallMask.Score[i] = s
	}

	return upscale(smallMask, c.cfg.Downsample, img.Bounds().Dx(), img.Bounds().Dy())
}

// rarityCutoff derives the population threshold below which an occupied
// bin counts as rare. The quantile is weighted by bin population, so it is
// the population level under which Percentile of all observed pixels lie,
// then capped at CapFraction of the total population so a near-uniform
// scene cannot flag a large share of its own pixels.
func (c *ColorStage) rarityCutoff() float64 {
	occupied := make([]float64, 0, 256)
	for _, pop := range c.model {
		if pop > 0 {
			occupied = append(occupied, pop)
		}
	}
	if len(occupied) < 2 {
		return 0
	}
	sort.Float64s(occupied)
	cutoff := stat.Quantile(c.cfg.Percentile, stat.Empirical, occupied, occupied)

	if maxCutoff := c.cfg.CapFraction * c.total; cutoff > maxCutoff {
		cutoff = maxCutoff
	}
	return cutoff
}

func downsample(img *image.RGBA, factor int) *image.RGBA {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	small := image.NewRGBA(image.Rect(0, 0, b.Dx()/factor, b.Dy()/factor))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), img, b, xdraw.Src, nil)
	return small
}

// upscale maps a downsampled mask back onto full resolution with nearest
// neighbor so component extraction sees original coordinates.
func upscale(small *ScoreMask, factor, w, h int) *ScoreMask {
	if factor <= 1 && small.W == w && small.H == h {
		return small
	}
	full := NewScoreMask(w, h)
	for y := 0; y < h; y++ {
		sy := y / factor
		if sy >= small.H {
			sy = small.H - 1
		}
		for x := 0; x < w; x++ {
			sx := x / factor
			if sx >= small.W {
				sx = small.W - 1
			}
			full.Score[y*w+x] = small.Score[sy*small.W+sx]
		}
	}
	return full
}
