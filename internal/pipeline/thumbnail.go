package pipeline

import (
	"bytes"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

const (
	thumbMaxSide = 96
	thumbMargin  = 8
)

// renderThumbnail crops the track region out of the frame with a small
// margin of context and scales it down to at most thumbMaxSide pixels on
// the long edge, returning it JPEG-encoded. Returns nil when the region
// falls outside the frame or encoding fails.
func renderThumbnail(frame *image.RGBA, box image.Rectangle) []byte {
	crop := box.Inset(-thumbMargin).Intersect(frame.Bounds())
	if crop.Empty() {
		return nil
	}

	w, h := crop.Dx(), crop.Dy()
	tw, th := w, h
	if long := max(w, h); long > thumbMaxSide {
		tw = w * thumbMaxSide / long
		th = h * thumbMaxSide / long
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.ApproxBiLinear.Scale(dst, dst.Rect, frame, crop, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil
	}
	return buf.Bytes()
}
