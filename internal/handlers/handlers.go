package handlers

import (
	"time"

	"peekraw/internal/filesource"
	"peekraw/internal/gallery"
	"peekraw/internal/thumbcache"
)

// ImageQuality is the JPEG quality full-size images are served at.
const ImageQuality = 90

type Handlers struct {
	gallery   *gallery.Gallery
	source    *filesource.Source
	images    thumbcache.Codec
	startTime time.Time
}

func New(g *gallery.Gallery, source *filesource.Source) *Handlers {
	return &Handlers{
		gallery:   g,
		source:    source,
		images:    thumbcache.JPEGCodec{Quality: ImageQuality},
		startTime: time.Now(),
	}
}
