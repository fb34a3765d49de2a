package source

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"
)

// Synthetic generates frames programmatically. It backs the demo mode and
// the end-to-end tests: a flat background with an optional per-frame render
// callback painting moving targets on top.
type Synthetic struct {
	Width      int
	Height     int
	Frames     int           // Total frames before end of stream, 0 = unbounded
	Interval   time.Duration // Pacing between frames, 0 = no pacing
	Background color.RGBA
	Render     func(seq int, img *image.RGBA) // Optional overlay, called per frame

	mu     sync.Mutex
	seq    int
	closed bool
}

// NewSynthetic returns a generator producing a uniform mid-gray scene.
func NewSynthetic(width, height, frames int) *Synthetic {
	return &Synthetic{
		Width:      width,
		Height:     height,
		Frames:     frames,
		Background: color.RGBA{R: 96, G: 96, B: 96, A: 255},
	}
}

func (s *Synthetic) Read() (*image.RGBA, time.Time, error) {
	s.mu.Lock()
	if s.closed || (s.Frames > 0 && s.seq >= s.Frames) {
		s.mu.Unlock()
		return nil, time.Time{}, ErrSourceClosed
	}
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	if s.Interval > 0 && seq > 0 {
		time.Sleep(s.Interval)
	}

	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	draw.Draw(img, img.Rect, &image.Uniform{C: s.Background}, image.Point{}, draw.Src)
	if s.Render != nil {
		s.Render(seq, img)
	}
	return img, time.Now(), nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ FrameSource = (*Synthetic)(nil)
