package thumbcache

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is the quality thumbnails are stored at on disk.
const DefaultJPEGQuality = 85

// Codec converts thumbnails to and from the bytes stored in the disk tier.
type Codec interface {
	Encode(img image.Image) ([]byte, error)
	Decode(data []byte) (image.Image, error)
}

// JPEGCodec stores thumbnails as JPEG.
type JPEGCodec struct {
	Quality int
}

// Encode implements Codec.
func (c JPEGCodec) Encode(img image.Image) ([]byte, error) {
	quality := c.Quality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (c JPEGCodec) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode thumbnail: %w", err)
	}
	return img, nil
}
