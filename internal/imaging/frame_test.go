package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame(t *testing.T) {
	f := NewFrame(4, 3, 7)
	require.Len(t, f.Pix, 12)
	for _, v := range f.Pix {
		assert.Equal(t, 7.0, v)
	}

	f.Set(3, 2, 99)
	assert.Equal(t, 99.0, f.At(3, 2))
	assert.Equal(t, 99.0, f.Pix[11])

	assert.True(t, f.Contains(0, 0))
	assert.True(t, f.Contains(3, 2))
	assert.False(t, f.Contains(4, 2))
	assert.False(t, f.Contains(0, -1))
}

func TestToFrame_Grayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	img.Set(1, 0, color.RGBA{0, 0, 0, 255})
	img.Set(2, 0, color.RGBA{100, 100, 100, 255})

	f, err := ToFrame(img, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Width)
	assert.Equal(t, 1, f.Height)
	assert.InDelta(t, 255, f.At(0, 0), 1)
	assert.InDelta(t, 0, f.At(1, 0), 1)
	assert.InDelta(t, 100, f.At(2, 0), 1)
}

func TestToFrame_RebasesBounds(t *testing.T) {
	img := image.NewGray(image.Rect(10, 20, 14, 22))
	img.SetGray(13, 21, color.Gray{Y: 200})

	f, err := ToFrame(img, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 2, f.Height)
	assert.InDelta(t, 200, f.At(3, 1), 1)
}

func TestToFrame_Blur(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 21, 21))
	img.SetGray(10, 10, color.Gray{Y: 255})

	sharp, err := ToFrame(img, 0)
	require.NoError(t, err)
	blurred, err := ToFrame(img, 1.5)
	require.NoError(t, err)

	assert.Less(t, blurred.At(10, 10), sharp.At(10, 10))
	assert.Greater(t, blurred.At(11, 10), 0.0)
}

func TestToFrame_Invalid(t *testing.T) {
	_, err := ToFrame(nil, 0)
	assert.Error(t, err)

	_, err = ToFrame(image.NewGray(image.Rect(0, 0, 0, 5)), 0)
	assert.Error(t, err)
}

func TestFrameFromGray_SubImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(y*8 + x)})
		}
	}
	sub := img.SubImage(image.Rect(2, 3, 5, 6)).(*image.Gray)

	f := FrameFromGray(sub)
	assert.Equal(t, 3, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Equal(t, float64(3*8+2), f.At(0, 0))
	assert.Equal(t, float64(5*8+4), f.At(2, 2))
}
