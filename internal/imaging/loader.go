package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ImageCache provides thread-safe caching of decoded image files.
//
// The cache stores decoded image.Image values keyed by their file path so that
// loading the same file again (for example after a reset) skips disk I/O and
// decoding. Cached images are never handed out directly: LoadBuffer always
// returns a freshly allocated Buffer owned by the caller, so a history engine
// can release it without affecting the cache.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Cached images remain in memory until explicitly removed via Evict() or
// Clear(). Each entry remembers the file's size and modification time, and
// Load decodes the file again when either has changed on disk.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]cachedImage
}

type cachedImage struct {
	img     image.Image
	size    int64
	modTime time.Time
}

func (e cachedImage) matches(fi os.FileInfo) bool {
	return e.size == fi.Size() && e.modTime.Equal(fi.ModTime())
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]cachedImage),
	}
}

// Load retrieves a decoded image from the cache or decodes it from disk.
//
// Supported formats are PNG, JPEG, GIF, BMP, TIFF and WebP. The image is
// cached using the exact path string provided. A cached image is reused only
// while the file's size and modification time are unchanged.
//
// The returned image is shared with the cache and must be treated as
// read-only.
func (c *ImageCache) Load(path string) (image.Image, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	c.mu.RLock()
	if e, ok := c.images[path]; ok && e.matches(fi) {
		c.mu.RUnlock()
		return e.img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	c.mu.Lock()
	c.images[path] = cachedImage{img: img, size: fi.Size(), modTime: fi.ModTime()}
	c.mu.Unlock()

	return img, nil
}

// LoadBuffer decodes the file at path (through the cache) into a new 4-channel
// buffer owned by the caller.
func (c *ImageCache) LoadBuffer(path string, tracker *Tracker) (*Buffer, error) {
	img, err := c.Load(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img, tracker)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]cachedImage)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// DecodeBuffer decodes encoded image bytes (any registered format) into a new
// 4-channel buffer owned by the caller.
func DecodeBuffer(data []byte, tracker *Tracker) (*Buffer, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	buf, err := FromImage(img, tracker)
	if err != nil {
		return nil, "", err
	}
	return buf, format, nil
}

// DecodeBase64Buffer is DecodeBuffer for standard base64 text. A data URL
// prefix ("data:image/png;base64,") is accepted and stripped.
func DecodeBase64Buffer(encoded string, tracker *Tracker) (*Buffer, string, error) {
	if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image data: %w", err)
	}
	return DecodeBuffer(data, tracker)
}

// ImageInfo contains metadata about a loaded image file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the detected image format from the file extension: "png",
	// "jpeg", "gif", "bmp", "tiff", "webp", or "unknown".
	Format string `json:"format"`

	// HasAlpha indicates whether the decoded image has an alpha channel.
	HasAlpha bool `json:"has_alpha"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image through the cache and returns its metadata.
//
// # Format Detection
//
// The format is determined by file extension:
//   - ".png" -> "png"
//   - ".jpg", ".jpeg" -> "jpeg"
//   - ".gif" -> "gif"
//   - ".bmp" -> "bmp"
//   - ".tif", ".tiff" -> "tiff"
//   - ".webp" -> "webp"
//   - Other extensions -> "unknown"
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	hasAlpha := false
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		hasAlpha = true
	}

	bounds := img.Bounds()
	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        formatFromExt(path),
		HasAlpha:      hasAlpha,
		FileSizeBytes: stat.Size(),
	}, nil
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".bmp":
		return "bmp"
	case ".tif", ".tiff":
		return "tiff"
	case ".webp":
		return "webp"
	default:
		return "unknown"
	}
}
