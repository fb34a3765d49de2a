package source

import (
	"errors"
	"image"
	"time"
)

// ErrSourceClosed is returned by Read after the source reaches its end or
// Close has been called. It marks a terminal condition: the caller should
// stop reading and release the source.
var ErrSourceClosed = errors.New("frame source closed")

// Frame is one decoded image sample flowing through the pipeline.
// A Frame is owned exclusively by whichever stage currently holds it:
// every Read allocates a fresh pixel buffer, capture hands it to the
// queue and never touches it again, so thread isolation across the
// capture/processing boundary holds by ownership transfer with no copy.
type Frame struct {
	Image     *image.RGBA // Pixel data
	Seq       uint64      // Monotonic sequence number, stamped by capture
	Timestamp time.Time   // Capture timestamp
}

// Bounds returns the pixel bounds of the frame image.
func (f *Frame) Bounds() image.Rectangle {
	return f.Image.Bounds()
}

// FrameSource is the pull-based contract for anything that yields video
// frames: an ffmpeg-wrapped network stream, a file, or a synthetic
// generator. Camera, file, and network streams are interchangeable behind
// this interface.
//
// Read blocks until the next frame is available and returns it together
// with the source-side timestamp. A terminal failure (disconnect, EOF,
// decode error on a dead stream) is reported as a non-nil error;
// ErrSourceClosed indicates a clean end of stream.
//
// A FrameSource is not safe for concurrent Read calls: it is owned by a
// single capture worker. Close is safe to call from any goroutine and
// unblocks a pending Read.
type FrameSource interface {
	Read() (*image.RGBA, time.Time, error)
	Close() error
}

// ToRGBA converts an arbitrary decoded image to RGBA, avoiding a copy when
// the decoder already produced one.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba
}
