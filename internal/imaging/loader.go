package imaging

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// ImageCache provides thread-safe caching of eye images and the grayscale
// frames derived from them.
//
// Decoded images are keyed by file path. Frames are keyed by path and blur
// sigma, so the same image can be searched with different preprocessing
// without decoding it again. Frames handed out by the cache are shared and
// must be treated as read-only.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Cached images and frames remain in memory until removed via Evict() or
// Clear(). A frame holds 8 bytes per pixel, so a session working through a
// long recording should evict frames it has finished with.
//
// # Example Usage
//
//	cache := imaging.NewImageCache()
//	frame, err := cache.Frame("/data/eye/000123.png", 1.0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	est, err := detector.Detect(frame)
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
	frames map[frameKey]*Frame
}

type frameKey struct {
	path string
	blur float64
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
		frames: make(map[frameKey]*Frame),
	}
}

// Load retrieves an image from the cache or decodes it from disk.
//
// Parameters:
//   - path: File path of the image. PNG, JPEG, GIF, TIFF and BMP are
//     supported. EXIF orientation of JPEG files is applied on load.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: Non-nil if the file cannot be opened or decoded.
//
// The image is cached using the exact path string provided. Different paths
// to the same file result in separate cache entries.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Frame returns the grayscale frame of the image at path, blurred with
// blurSigma (see ToFrame). Frames are built once per (path, sigma) pair.
func (c *ImageCache) Frame(path string, blurSigma float64) (*Frame, error) {
	if blurSigma < 0 {
		blurSigma = 0
	}
	key := frameKey{path: path, blur: blurSigma}

	c.mu.RLock()
	if f, ok := c.frames[key]; ok {
		c.mu.RUnlock()
		return f, nil
	}
	c.mu.RUnlock()

	img, err := c.Load(path)
	if err != nil {
		return nil, err
	}
	f, err := ToFrame(img, blurSigma)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", path, err)
	}

	c.mu.Lock()
	c.frames[key] = f
	c.mu.Unlock()

	return f, nil
}

// Clear removes all images and frames from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.frames = make(map[frameKey]*Frame)
	c.mu.Unlock()
}

// Evict removes an image and every frame derived from it. Unknown paths are
// ignored.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	for k := range c.frames {
		if k.path == path {
			delete(c.frames, k)
		}
	}
	c.mu.Unlock()
}

// ImageInfo describes an eye image file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is "png", "jpeg", "gif", "tiff", "bmp" or "unknown", derived
	// from the file extension.
	Format string `json:"format"`

	// Grayscale is true for single-channel images, the usual output of IR
	// eye cameras.
	Grayscale bool `json:"grayscale"`

	// MeanIntensity and IntensityStdDev summarize the unblurred grayscale
	// frame. A low deviation usually means a closed eye or a blank frame.
	MeanIntensity   float64 `json:"mean_intensity"`
	IntensityStdDev float64 `json:"intensity_std_dev"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image through the cache and describes it.
//
// Parameters:
//   - cache: The image cache to use for loading. Must not be nil.
//   - path: Path to the image file.
//
// Returns:
//   - *ImageInfo: Metadata and intensity statistics.
//   - error: Non-nil if the image cannot be loaded or the file cannot be stat'd.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}
	frame, err := cache.Frame(path, 0)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	if f, err := imaging.FormatFromFilename(path); err == nil {
		format = strings.ToLower(f.String())
	}

	grayscale := false
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		grayscale = true
	}

	// The unbiased deviation is NaN for a single pixel, which JSON cannot carry.
	mean, std := frame.Pix[0], 0.0
	if len(frame.Pix) > 1 {
		mean, std = stat.MeanStdDev(frame.Pix, nil)
	}
	b := img.Bounds()
	return &ImageInfo{
		Width:           b.Dx(),
		Height:          b.Dy(),
		Format:          format,
		Grayscale:       grayscale,
		MeanIntensity:   mean,
		IntensityStdDev: std,
		FileSizeBytes:   st.Size(),
	}, nil
}

// DimensionsResult contains the width and height of an image.
type DimensionsResult struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`
}

// GetDimensions returns the dimensions of an image, loading it into the cache
// if needed.
func GetDimensions(cache *ImageCache, path string) (*DimensionsResult, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &DimensionsResult{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
