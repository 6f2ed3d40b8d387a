package probe

import (
	"fmt"
	"image"
)

// AreaOfInterest holds the margins trimmed from each image edge before
// candidate centers are searched. Start margins are added to 0, stop margins
// are subtracted from the image size.
type AreaOfInterest struct {
	StartX int `yaml:"startX" json:"start_x"`
	StopX  int `yaml:"stopX" json:"stop_x"`
	StartY int `yaml:"startY" json:"start_y"`
	StopY  int `yaml:"stopY" json:"stop_y"`
}

// DefaultAreaOfInterest trims 10 pixels from every edge.
func DefaultAreaOfInterest() AreaOfInterest {
	return AreaOfInterest{StartX: 10, StopX: 10, StartY: 10, StopY: 10}
}

// Rect returns the candidate-center rectangle for a width x height image, or
// an ErrConfiguration when the margins leave no positive area.
func (a AreaOfInterest) Rect(width, height int) (image.Rectangle, error) {
	if a.StartX < 0 || a.StopX < 0 || a.StartY < 0 || a.StopY < 0 {
		return image.Rectangle{}, fmt.Errorf("%w: negative area-of-interest margin %+v", ErrConfiguration, a)
	}
	// image.Rect would swap inverted corners; build the rectangle as is.
	r := image.Rectangle{Min: image.Pt(a.StartX, a.StartY), Max: image.Pt(width-a.StopX, height-a.StopY)}
	if r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y {
		return image.Rectangle{}, fmt.Errorf("%w: area of interest %+v leaves no area in %dx%d image",
			ErrConfiguration, a, width, height)
	}
	return r, nil
}
