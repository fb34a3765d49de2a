package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderThumbnailCropsAndScales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(img, img.Rect, &image.Uniform{C: color.RGBA{70, 110, 70, 255}}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(100, 100, 300, 250), &image.Uniform{C: color.RGBA{240, 100, 30, 255}}, image.Point{}, draw.Src)

	data := renderThumbnail(img, image.Rect(100, 100, 300, 250))
	require.NotEmpty(t, data)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	b := decoded.Bounds()
	require.LessOrEqual(t, b.Dx(), thumbMaxSide)
	require.LessOrEqual(t, b.Dy(), thumbMaxSide)
	require.Greater(t, b.Dx(), b.Dy(), "aspect of a wide region should survive scaling")
}

func TestRenderThumbnailSmallRegionKeepsSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))

	data := renderThumbnail(img, image.Rect(50, 50, 70, 70))
	require.NotEmpty(t, data)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// 20x20 box plus the margin, no upscale
	require.Equal(t, 36, decoded.Bounds().Dx())
	require.Equal(t, 36, decoded.Bounds().Dy())
}

func TestRenderThumbnailOutsideFrameIsNil(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	require.Nil(t, renderThumbnail(img, image.Rect(500, 500, 600, 600)))
}
