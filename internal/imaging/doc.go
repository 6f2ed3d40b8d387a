// Package imaging turns eye images into the grayscale frames the pupil
// detectors search, and draws detection results back onto images.
//
// Decoding, grayscale conversion, blurring and PNG encoding go through
// github.com/disintegration/imaging; overlay colors are parsed with
// github.com/lucasb-eyer/go-colorful.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - Angles are measured from the +X axis towards +Y, so a positive angle
//     turns clockwise on screen.
//
// A Frame is always rebased so its top-left pixel is (0, 0), whatever the
// bounds of the source image.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. Frames are plain values; the
// detectors only read them, so one frame can be searched by several
// detectors at once as long as nobody writes to it.
//
// # Error Handling
//
// Functions return errors for unreadable or undecodable files, empty images
// and encoding failures. Overlay colors that cannot be parsed fall back to
// DefaultOutlineColor instead of failing.
package imaging
