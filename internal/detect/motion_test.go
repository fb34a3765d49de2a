package detect

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/require"
)

func testMotionConfig() MotionConfig {
	return MotionConfig{
		LearningRate:  0.1,
		Threshold:     25,
		LearnFrames:   5,
		GlobalCeiling: 0.5,
	}
}

func flatFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func paint(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func TestMotionLearningPeriodProducesNoMask(t *testing.T) {
	m := NewMotionStage(testMotionConfig())
	bg := color.RGBA{100, 100, 100, 255}

	for i := 0; i < 5; i++ {
		mask, suppressed := m.Process(flatFrame(64, 48, bg))
		require.Nil(t, mask, "frame %d inside learning window", i)
		require.False(t, suppressed)
		require.True(t, m.Learning())
	}
}

func TestMotionStaticSceneStaysQuiet(t *testing.T) {
	m := NewMotionStage(testMotionConfig())
	bg := color.RGBA{100, 100, 100, 255}

	for i := 0; i < 5; i++ {
		m.Process(flatFrame(64, 48, bg))
	}

	for i := 0; i < 10; i++ {
		mask, suppressed := m.Process(flatFrame(64, 48, bg))
		require.False(t, suppressed)
		require.NotNil(t, mask)
		require.Equal(t, 0, mask.ActivePixels())
	}
}

func TestMotionFlagsMovingBlock(t *testing.T) {
	m := NewMotionStage(testMotionConfig())
	bg := color.RGBA{100, 100, 100, 255}

	for i := 0; i < 6; i++ {
		m.Process(flatFrame(64, 48, bg))
	}

	frame := flatFrame(64, 48, bg)
	block := image.Rect(20, 20, 28, 28)
	paint(frame, block, color.RGBA{250, 250, 250, 255})

	mask, suppressed := m.Process(frame)
	require.False(t, suppressed)
	require.NotNil(t, mask)
	require.Greater(t, mask.ActivePixels(), 0)

	// Every flagged pixel lies inside the block
	for y := 0; y < mask.H; y++ {
		for x := 0; x < mask.W; x++ {
			if mask.At(x, y) > 0 {
				require.True(t, image.Pt(x, y).In(block), "flagged pixel (%d,%d) outside block", x, y)
			}
		}
	}
}

func TestMotionSuppressesGlobalChange(t *testing.T) {
	m := NewMotionStage(testMotionConfig())

	for i := 0; i < 6; i++ {
		m.Process(flatFrame(64, 48, color.RGBA{100, 100, 100, 255}))
	}

	// Whole scene brightens at once, as when the camera pans
	mask, suppressed := m.Process(flatFrame(64, 48, color.RGBA{220, 220, 220, 255}))
	require.True(t, suppressed)
	require.Nil(t, mask)
}

func TestMotionResetsOnResolutionChange(t *testing.T) {
	m := NewMotionStage(testMotionConfig())
	bg := color.RGBA{100, 100, 100, 255}

	for i := 0; i < 10; i++ {
		m.Process(flatFrame(64, 48, bg))
	}
	require.False(t, m.Learning())

	mask, suppressed := m.Process(flatFrame(32, 24, bg))
	require.Nil(t, mask)
	require.False(t, suppressed)
	require.True(t, m.Learning())
}

func TestMotionScoresWithinRange(t *testing.T) {
	m := NewMotionStage(testMotionConfig())
	bg := color.RGBA{100, 100, 100, 255}

	for i := 0; i < 6; i++ {
		m.Process(flatFrame(64, 48, bg))
	}

	frame := flatFrame(64, 48, bg)
	paint(frame, image.Rect(0, 0, 8, 8), color.RGBA{255, 255, 255, 255})

	mask, _ := m.Process(frame)
	require.NotNil(t, mask)
	for _, s := range mask.Score {
		require.GreaterOrEqual(t, s, float32(0))
		require.LessOrEqual(t, s, float32(1))
	}
}
