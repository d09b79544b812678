package decoder

import (
	"image"
	"io"
	"math"

	"peekraw/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension is the largest width or height a full decode returns.
	MaxImageDimension = 4096

	// MaxImagePixels bounds width*height of a full decode (~80MB as RGBA).
	MaxImagePixels = 20_000_000
)

// constrainedSize returns the size an image of width x height is scaled to
// so that it satisfies both limits. ok is false when no scaling is needed.
func constrainedSize(width, height, maxDimension, maxPixels int) (w, h int, ok bool) {
	if width <= 0 || height <= 0 {
		return width, height, false
	}
	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return width, height, false
	}

	w, h = width, height
	if w > maxDimension || h > maxDimension {
		if w > h {
			h = h * maxDimension / w
			w = maxDimension
		} else {
			w = w * maxDimension / h
			h = maxDimension
		}
	}

	if w*h > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(w*h))
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
	}
	return max(w, 1), max(h, 1), true
}

// loadConstrained decodes a rendered image from r, downscaling it when it
// exceeds the limits.
func loadConstrained(r io.ReadSeeker, path string, maxDimension, maxPixels int) (image.Image, error) {
	cfg, _, cfgErr := image.DecodeConfig(r)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if cfgErr != nil {
		logging.Debug("Could not get image dimensions for %s: %v", path, cfgErr)
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	if cfgErr != nil {
		return img, nil
	}
	w, h, ok := constrainedSize(cfg.Width, cfg.Height, maxDimension, maxPixels)
	if !ok {
		return img, nil
	}

	logging.Info("Constraining large image %s from %dx%d to %dx%d", path, cfg.Width, cfg.Height, w, h)
	// AutoOrientation may have swapped the axes.
	if img.Bounds().Dx() == cfg.Height && img.Bounds().Dy() == cfg.Width && cfg.Width != cfg.Height {
		w, h = h, w
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}
