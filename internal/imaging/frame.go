package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Frame is a grayscale image plane used by the pupil detectors.
//
// Pixels are stored row-major with intensities in [0, 255]. The probe search
// addresses Pix with linear offsets (y*Width + x), so a Frame always has
// exactly Width*Height entries and its origin is (0, 0).
type Frame struct {
	// Width is the frame width in pixels.
	Width int

	// Height is the frame height in pixels.
	Height int

	// Pix holds Width*Height intensities, row by row.
	Pix []float64
}

// NewFrame allocates a frame of the given size filled with value.
func NewFrame(width, height int, value float64) *Frame {
	f := &Frame{Width: width, Height: height, Pix: make([]float64, width*height)}
	if value != 0 {
		for i := range f.Pix {
			f.Pix[i] = value
		}
	}
	return f
}

// At returns the intensity at (x, y). No bounds checking is performed.
func (f *Frame) At(x, y int) float64 {
	return f.Pix[y*f.Width+x]
}

// Set stores an intensity at (x, y). No bounds checking is performed.
func (f *Frame) Set(x, y int, v float64) {
	f.Pix[y*f.Width+x] = v
}

// Contains reports whether (x, y) lies inside the frame.
func (f *Frame) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}

// ToFrame converts an arbitrary image into a grayscale Frame.
//
// Parameters:
//   - img: Source image (color or grayscale). Its bounds may have any origin;
//     the resulting frame is always rebased to (0, 0).
//   - blurSigma: Standard deviation of an optional Gaussian blur applied after
//     grayscale conversion. Zero or negative disables blurring. Eye-camera
//     frames with sensor noise usually benefit from 0.8-1.5.
//
// Returns:
//   - *Frame: The grayscale frame.
//   - error: Non-nil if the image is nil or empty.
//
// Grayscale conversion uses imaging.Grayscale (luminance weights
// 0.299/0.587/0.114), so color eye images and already-gray IR frames are
// handled the same way.
func ToFrame(img image.Image, blurSigma float64) (*Frame, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty image bounds %v", b)
	}

	gray := imaging.Grayscale(img)
	if blurSigma > 0 {
		gray = imaging.Blur(gray, blurSigma)
	}

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	f := &Frame{Width: w, Height: h, Pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w*4]
		for x := 0; x < w; x++ {
			// R, G and B are equal after Grayscale; R is enough.
			f.Pix[y*w+x] = float64(row[x*4])
		}
	}
	return f, nil
}

// FrameFromGray copies an *image.Gray into a Frame without any filtering.
func FrameFromGray(g *image.Gray) *Frame {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &Frame{Width: w, Height: h, Pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		off := (y+b.Min.Y-g.Rect.Min.Y)*g.Stride + (b.Min.X - g.Rect.Min.X)
		for x := 0; x < w; x++ {
			f.Pix[y*w+x] = float64(g.Pix[off+x])
		}
	}
	return f
}
