package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"peekraw/internal/filesystem"
	"peekraw/internal/logging"
	"peekraw/internal/mediatypes"
	"peekraw/internal/metrics"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// DefaultThumbnailSize is the bounding box of generated thumbnails.
const DefaultThumbnailSize = 400

// maxEmbeddedPreview bounds the size of an embedded preview we are willing
// to read into memory.
const maxEmbeddedPreview = 32 << 20

// Options configures a Raw decoder.
type Options struct {
	// ThumbnailSize is the bounding box thumbnails are fitted into.
	ThumbnailSize int
	// MaxDimension and MaxPixels bound full decodes.
	MaxDimension int
	MaxPixels    int
	// UseVips routes full decodes through libvips when it is initialized.
	UseVips bool
	// Retry is used when opening source files.
	Retry filesystem.RetryConfig
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		ThumbnailSize: DefaultThumbnailSize,
		MaxDimension:  MaxImageDimension,
		MaxPixels:     MaxImagePixels,
		Retry:         filesystem.DefaultRetryConfig(),
	}
}

// Raw decodes camera RAW files through their embedded previews and rendered
// image formats directly.
type Raw struct {
	opts Options
}

// NewRaw creates a decoder. Zero option fields take their defaults.
func NewRaw(opts Options) *Raw {
	def := DefaultOptions()
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = def.ThumbnailSize
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = def.MaxPixels
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		opts.Retry = def.Retry
	}
	return &Raw{opts: opts}
}

// ThumbnailSize returns the bounding box thumbnails are fitted into.
func (r *Raw) ThumbnailSize() int {
	return r.opts.ThumbnailSize
}

// DecodeThumbnail returns the embedded preview of a RAW file, or a
// downscaled rendering of an ordinary image, fitted into ThumbnailSize.
func (r *Raw) DecodeThumbnail(path string) (image.Image, error) {
	start := time.Now()
	img, err := r.thumbnail(path)
	observe("thumbnail", start, err)
	if err != nil {
		return nil, err
	}
	return imaging.Fit(img, r.opts.ThumbnailSize, r.opts.ThumbnailSize, imaging.Lanczos), nil
}

// Decode returns the full image, bounded by MaxDimension and MaxPixels. RAW
// files without a rendered container yield their largest embedded preview.
func (r *Raw) Decode(path string) (image.Image, error) {
	start := time.Now()
	img, err := r.full(path)
	observe("full", start, err)
	return img, err
}

func observe(kind string, start time.Time, err error) {
	metrics.DecodeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues(kind, reason(err)).Inc()
	}
}

func (r *Raw) open(path string) (*os.File, container, error) {
	f, err := filesystem.OpenWithRetry(path, r.opts.Retry)
	if err != nil {
		return nil, containerUnknown, &DecodeError{Kind: IOError, Path: path, Err: err}
	}
	c, err := sniff(f)
	if err != nil {
		f.Close()
		return nil, containerUnknown, &DecodeError{Kind: IOError, Path: path, Err: err}
	}
	return f, c, nil
}

// renderable reports whether a file should be decoded as an ordinary image.
// TIFF-based RAW files share the TIFF magic but their first IFD is not the
// photo.
func renderable(path string, c container) bool {
	if !c.rendered() {
		return false
	}
	if c == containerTIFF {
		return mediatypes.GetFileType(mediatypes.Ext(path)) == mediatypes.FileTypeImage
	}
	return true
}

func (r *Raw) thumbnail(path string) (image.Image, error) {
	f, c, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if c == containerUnknown || c == containerHEIF || c == containerCR3 {
		return nil, &DecodeError{Kind: UnsupportedFormat, Path: path, Err: fmt.Errorf("container %s", c)}
	}

	img, err := embeddedPreview(f, c, path)
	if err == nil {
		return img, nil
	}
	if !errors.Is(err, ErrNoThumbnail) {
		return nil, err
	}

	if renderable(path, c) {
		logging.Debug("No embedded thumbnail in %s, decoding image", filepath.Base(path))
		return r.rendered(f, path)
	}
	return nil, err
}

func (r *Raw) full(path string) (image.Image, error) {
	f, c, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if r.opts.UseVips && IsVipsAvailable() {
		img, err := LoadImageWithVips(path, r.opts.MaxDimension, r.opts.MaxDimension)
		if err == nil {
			return img, nil
		}
		logging.Debug("vips could not decode %s: %v", filepath.Base(path), err)
	}

	if renderable(path, c) {
		return r.rendered(f, path)
	}

	if c == containerUnknown || c == containerHEIF || c == containerCR3 {
		return nil, &DecodeError{Kind: UnsupportedFormat, Path: path, Err: fmt.Errorf("container %s", c)}
	}

	img, err := embeddedPreview(f, c, path)
	if errors.Is(err, ErrNoThumbnail) {
		return nil, &DecodeError{Kind: UnsupportedFormat, Path: path, Err: err}
	}
	return img, err
}

func (r *Raw) rendered(f *os.File, path string) (image.Image, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, &DecodeError{Kind: IOError, Path: path, Err: err}
	}
	img, err := loadConstrained(f, path, r.opts.MaxDimension, r.opts.MaxPixels)
	if err != nil {
		return nil, classify(path, err)
	}
	return img, nil
}

// classify wraps an error from an image decoder in a DecodeError.
func classify(path string, err error) error {
	var pathErr *fs.PathError
	switch {
	case errors.As(err, &pathErr):
		return &DecodeError{Kind: IOError, Path: path, Err: err}
	case errors.Is(err, image.ErrFormat):
		return &DecodeError{Kind: UnsupportedFormat, Path: path, Err: err}
	default:
		return &DecodeError{Kind: CorruptData, Path: path, Err: err}
	}
}

// embeddedPreview extracts the preview JPEG a camera stores alongside the
// sensor data, rotated per the EXIF orientation.
func embeddedPreview(f *os.File, c container, path string) (image.Image, error) {
	if c == containerRAF {
		return rafPreview(f, path)
	}
	if !c.exifCapable() {
		return nil, ErrNoThumbnail
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, &DecodeError{Kind: IOError, Path: path, Err: err}
	}
	x, err := exif.Decode(f)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		if c == containerJPEG {
			// A JPEG without EXIF is still a valid image.
			return nil, ErrNoThumbnail
		}
		return nil, &DecodeError{Kind: CorruptData, Path: path, Err: err}
	}

	data, err := x.JpegThumbnail()
	if err != nil || len(data) == 0 {
		return nil, ErrNoThumbnail
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Kind: CorruptData, Path: path, Err: fmt.Errorf("embedded thumbnail: %w", err)}
	}
	return applyOrientation(img, orientationOf(x)), nil
}

// rafPreview reads the JPEG whose offset and length are stored big-endian at
// byte 84 of a Fujifilm RAF header.
func rafPreview(f *os.File, path string) (image.Image, error) {
	var hdr [8]byte
	if _, err := f.ReadAt(hdr[:], 84); err != nil {
		return nil, &DecodeError{Kind: CorruptData, Path: path, Err: fmt.Errorf("raf header: %w", err)}
	}
	offset := int64(binary.BigEndian.Uint32(hdr[0:4]))
	length := int64(binary.BigEndian.Uint32(hdr[4:8]))
	if offset == 0 || length == 0 {
		return nil, ErrNoThumbnail
	}
	if length > maxEmbeddedPreview {
		return nil, &DecodeError{Kind: CorruptData, Path: path, Err: fmt.Errorf("raf preview of %d bytes", length)}
	}

	img, err := imaging.Decode(io.NewSectionReader(f, offset, length), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Kind: CorruptData, Path: path, Err: fmt.Errorf("raf preview: %w", err)}
	}
	return img, nil
}
