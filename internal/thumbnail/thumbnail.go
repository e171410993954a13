// Package thumbnail renders small JPEG previews of uploaded images into a
// gallery's thumbs directory.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support

	"github.com/darbyjahn/smallphot0-backend/internal/filesystem"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediatypes"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
)

const (
	// DefaultMaxDimension bounds the longer thumbnail edge.
	DefaultMaxDimension = 400

	// DefaultQuality is the JPEG quality of thumbnails.
	DefaultQuality = 80

	// MaxImagePixels is the largest source we'll decode. A 20MP image uses
	// roughly 80MB as RGBA.
	MaxImagePixels = 20_000_000
)

var (
	// ErrUnsupported marks formats the decoders cannot read (HEIC, for one).
	ErrUnsupported = errors.New("unsupported image format")
	// ErrTooLarge marks sources above MaxImagePixels.
	ErrTooLarge = errors.New("image too large for thumbnail")
)

// decodable lists extensions with a registered decoder. imaging brings in
// BMP and TIFF.
var decodable = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true, ".tif": true,
}

// Supported reports whether a thumbnail can be made for the file name.
func Supported(name string) bool {
	return decodable[mediatypes.Ext(name)]
}

// Generator creates thumbnails.
type Generator struct {
	maxDimension int
	quality      int
}

// New returns a Generator with the default size and quality.
func New() *Generator {
	return &Generator{maxDimension: DefaultMaxDimension, quality: DefaultQuality}
}

// Generate decodes src with EXIF orientation applied, fits it within the
// configured bounds and writes a JPEG to dst atomically.
func (g *Generator) Generate(src, dst string) error {
	start := time.Now()
	err := g.generate(src, dst)
	metrics.ThumbnailGenerationDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ThumbnailGenerationsTotal.WithLabelValues("success").Inc()
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrTooLarge):
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error_decode").Inc()
	default:
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error").Inc()
	}
	return err
}

func (g *Generator) generate(src, dst string) error {
	if !Supported(src) {
		return fmt.Errorf("%w: %s", ErrUnsupported, mediatypes.Ext(src))
	}

	dims, err := GetImageDimensions(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	if dims.Width*dims.Height > MaxImagePixels {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, dims.Width, dims.Height)
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	thumb := imaging.Fit(img, g.maxDimension, g.maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := filesystem.WriteFileAtomic(dst, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}

	logging.Debug("Thumbnail %s: %dx%d -> %dx%d", dst, dims.Width, dims.Height, thumb.Bounds().Dx(), thumb.Bounds().Dy())
	return nil
}

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}
