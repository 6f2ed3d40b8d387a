package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultOutlineColor is used when an overlay color cannot be parsed.
const DefaultOutlineColor = "#00FF00"

// MaxThickness is the widest stroke DrawOutlines draws.
const MaxThickness = 16

// maxAxisDiagonals bounds an outline's semi-axes, in image diagonals.
const maxAxisDiagonals = 4

// Outline is an ellipse to draw, in pixel coordinates. Angle is the direction
// of the Major semi-axis in radians.
type Outline struct {
	X, Y         float64
	Major, Minor float64
	Angle        float64
}

// OverlayOptions controls how outlines are drawn.
type OverlayOptions struct {
	// Color is a hex color such as "#FF0000". Invalid or empty values fall
	// back to DefaultOutlineColor.
	Color string

	// Thickness is the stroke width in pixels, clamped to [1, MaxThickness].
	Thickness int

	// Region, when not empty, is drawn as a rectangle in a lighter shade of
	// Color. The server uses it to show the search area of interest.
	Region image.Rectangle
}

// OverlayResult contains the annotated image.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Outlines    int    `json:"outlines"`
}

// DrawOutlines draws each outline with a small cross at its center and
// returns the result as a base64 PNG. The source image is not modified.
//
// Parameters:
//   - img: The eye image to annotate.
//   - outlines: Ellipses to draw; entries with non-positive axes are skipped.
//   - opts: Stroke color, thickness and optional region rectangle.
//
// Returns:
//   - *OverlayResult: The encoded image.
//   - error: Non-nil if an outline is not finite, a semi-axis exceeds four
//     image diagonals, or PNG encoding fails.
func DrawOutlines(img image.Image, outlines []Outline, opts OverlayOptions) (*OverlayResult, error) {
	stroke, err := colorful.Hex(opts.Color)
	if err != nil {
		stroke, _ = colorful.Hex(DefaultOutlineColor)
	}
	thickness := opts.Thickness
	if thickness < 1 {
		thickness = 1
	}
	if thickness > MaxThickness {
		thickness = MaxThickness
	}

	b := img.Bounds()
	limit := maxAxisDiagonals * math.Hypot(float64(b.Dx()), float64(b.Dy()))
	for i, o := range outlines {
		for _, v := range []float64{o.X, o.Y, o.Major, o.Minor, o.Angle} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("outline %d is not finite: %+v", i, o)
			}
		}
		if o.Major > limit || o.Minor > limit {
			return nil, fmt.Errorf("outline %d: semi-axes %g/%g exceed the %g px limit for a %dx%d image",
				i, o.Major, o.Minor, limit, b.Dx(), b.Dy())
		}
	}

	canvas := imaging.Clone(img)

	if !opts.Region.Empty() {
		white := colorful.Color{R: 1, G: 1, B: 1}
		drawRect(canvas, opts.Region, toNRGBA(stroke.BlendLab(white, 0.5).Clamped()), 1)
	}

	fg := toNRGBA(stroke)
	drawn := 0
	for _, o := range outlines {
		if !(o.Major > 0 && o.Minor > 0) {
			continue
		}
		drawEllipse(canvas, o, fg, thickness)
		drawCross(canvas, o.X, o.Y, fg)
		drawn++
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &OverlayResult{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
		Outlines:    drawn,
	}, nil
}

func toNRGBA(c colorful.Color) color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// drawEllipse walks the perimeter in steps of at most half a pixel.
func drawEllipse(img *image.NRGBA, o Outline, c color.NRGBA, thickness int) {
	n := int(math.Ceil(4 * math.Pi * o.Major))
	if n < 16 {
		n = 16
	}
	cos, sin := math.Cos(o.Angle), math.Sin(o.Angle)
	for i := 0; i < n; i++ {
		th := 2 * math.Pi * float64(i) / float64(n)
		u, v := o.Major*math.Cos(th), o.Minor*math.Sin(th)
		x := o.X + u*cos - v*sin
		y := o.Y + u*sin + v*cos
		plot(img, int(math.Round(x)), int(math.Round(y)), c, thickness)
	}
}

func drawCross(img *image.NRGBA, x, y float64, c color.NRGBA) {
	cx, cy := int(math.Round(x)), int(math.Round(y))
	for d := -3; d <= 3; d++ {
		plot(img, cx+d, cy, c, 1)
		plot(img, cx, cy+d, c, 1)
	}
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, thickness int) {
	for x := r.Min.X; x < r.Max.X; x++ {
		plot(img, x, r.Min.Y, c, thickness)
		plot(img, x, r.Max.Y-1, c, thickness)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		plot(img, r.Min.X, y, c, thickness)
		plot(img, r.Max.X-1, y, c, thickness)
	}
}

// plot sets a thickness x thickness square around (x, y), clipped to img.
func plot(img *image.NRGBA, x, y int, c color.NRGBA, thickness int) {
	lo := -(thickness - 1) / 2
	for dy := lo; dy < lo+thickness; dy++ {
		for dx := lo; dx < lo+thickness; dx++ {
			p := image.Pt(x+dx, y+dy)
			if p.In(img.Rect) {
				img.SetNRGBA(p.X, p.Y, c)
			}
		}
	}
}
