package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"peekraw/internal/decoder"
	"peekraw/internal/fileref"
	"peekraw/internal/gallery"
	"peekraw/internal/logging"
	"peekraw/internal/streaming"
)

// GetThumbnail serves the cached thumbnail of an item. Pending items answer
// 202 so clients poll again; unsupported items answer 415.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lookup(w, r)
	if !ok {
		return
	}

	switch h.gallery.State(id) {
	case gallery.Unsupported:
		writeJSONError(w, "no thumbnail for this file", http.StatusUnsupportedMediaType)
		return
	case gallery.Pending:
		writeJSONStatus(w, http.StatusAccepted, "pending")
		return
	}

	data, found, err := h.gallery.ThumbnailData(id)
	if err != nil {
		logging.Error("Failed to encode thumbnail %s: %v", id.Hex(), err)
		writeJSONError(w, "failed to encode thumbnail", http.StatusInternalServerError)
		return
	}
	if !found {
		// Evicted between the state check and the read.
		writeJSONStatus(w, http.StatusAccepted, "pending")
		return
	}

	writeImage(w, r, id, data, "private, max-age=3600")
}

// GetImage decodes and serves the full-size image of an item.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lookup(w, r)
	if !ok {
		return
	}

	img, err := h.gallery.Image(id)
	if err != nil {
		status := imageErrorStatus(err)
		if status == http.StatusInternalServerError {
			logging.Error("Failed to decode image %s: %v", id.Hex(), err)
		} else {
			logging.Debug("Image %s unavailable: %v", id.Hex(), err)
		}
		writeJSONError(w, http.StatusText(status), status)
		return
	}

	data, err := h.images.Encode(img)
	if err != nil {
		logging.Error("Failed to encode image %s: %v", id.Hex(), err)
		writeJSONError(w, "failed to encode image", http.StatusInternalServerError)
		return
	}

	if !writeImageHeaders(w, r, data, "private, no-cache") {
		return
	}
	if _, err := streaming.Write(r.Context(), w, data, streaming.DefaultConfig()); err != nil {
		logging.Debug("Failed to stream image %s: %v", id.Hex(), err)
	}
}

func imageErrorStatus(err error) int {
	switch {
	case errors.Is(err, gallery.ErrNotFound), errors.Is(err, fileref.ErrStaleReference):
		return http.StatusNotFound
	}
	if kind, ok := decoder.KindOf(err); ok {
		switch kind {
		case decoder.UnsupportedFormat, decoder.CorruptData:
			return http.StatusUnsupportedMediaType
		}
	}
	return http.StatusInternalServerError
}

// writeImageHeaders writes the headers of a JPEG response and reports
// whether a body should follow.
func writeImageHeaders(w http.ResponseWriter, r *http.Request, data []byte, cacheControl string) bool {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	return r.Method != http.MethodHead
}

func writeImage(w http.ResponseWriter, r *http.Request, id fileref.ID, data []byte, cacheControl string) {
	if !writeImageHeaders(w, r, data, cacheControl) {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.Debug("Failed to write image %s: %v", id.Hex(), err)
	}
}
