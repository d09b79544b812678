package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"peekraw/internal/fileref"
	"peekraw/internal/gallery"
	"peekraw/internal/logging"
)

// maxOpenRequestBytes bounds the body of an open request.
const maxOpenRequestBytes = 1 << 20

// Item is one gallery cell.
type Item struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// GalleryResponse is the full gallery listing.
type GalleryResponse struct {
	Version     uint64 `json:"version"`
	Run         uint64 `json:"run"`
	Items       []Item `json:"items"`
	Pending     int    `json:"pending"`
	Ready       int    `json:"ready"`
	Unsupported int    `json:"unsupported"`
}

// ChangeResponse is one entry of a change feed.
type ChangeResponse struct {
	Version uint64 `json:"version"`
	Kind    string `json:"kind"`
	ID      string `json:"id,omitempty"`
	State   string `json:"state,omitempty"`
}

// ChangesResponse is the change feed since a client's version.
type ChangesResponse struct {
	Version uint64           `json:"version"`
	Changes []ChangeResponse `json:"changes"`
}

// OpenRequest selects files and folders to show.
type OpenRequest struct {
	Paths []string `json:"paths"`
}

// SkippedEntry is an entry left out while opening a selection.
type SkippedEntry struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// OpenResponse describes the gallery after an open or refresh.
type OpenResponse struct {
	Run     uint64         `json:"run"`
	Items   int            `json:"items"`
	Skipped []SkippedEntry `json:"skipped,omitempty"`
}

func (h *Handlers) items() GalleryResponse {
	snap := h.gallery.Snapshot()
	version := snap.Version()
	refs := snap.Items()

	resp := GalleryResponse{
		Version: version,
		Run:     uint64(h.gallery.Current()),
		Items:   make([]Item, 0, len(refs)),
	}
	for _, ref := range refs {
		state := h.gallery.State(ref.ID())
		switch state {
		case gallery.Ready:
			resp.Ready++
		case gallery.Unsupported:
			resp.Unsupported++
		default:
			resp.Pending++
		}
		resp.Items = append(resp.Items, Item{
			ID:    ref.ID().Hex(),
			Name:  ref.String(),
			State: state.String(),
		})
	}
	return resp
}

// GetGallery returns every item with its current state. Clients pass the
// returned version to GetChanges to follow updates.
func (h *Handlers) GetGallery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, h.items())
}

// GetChanges returns the changes after ?since. A client too far behind gets
// 409 and must reload the whole gallery.
func (h *Handlers) GetChanges(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
		since = v
	}

	changes, version, err := h.gallery.Snapshot().ChangesSince(since)
	if err != nil {
		if errors.Is(err, gallery.ErrResync) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		logging.Error("Failed to read gallery changes: %v", err)
		writeJSONError(w, "failed to read changes", http.StatusInternalServerError)
		return
	}

	resp := ChangesResponse{
		Version: version,
		Changes: make([]ChangeResponse, 0, len(changes)),
	}
	for _, c := range changes {
		cr := ChangeResponse{Version: c.Version, Kind: c.Kind.String()}
		if c.Kind == gallery.ChangeItem {
			cr.ID = c.ID.Hex()
			cr.State = c.State.String()
		}
		resp.Changes = append(resp.Changes, cr)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}

// OpenSelection replaces the gallery with the picked files and folders.
func (h *Handlers) OpenSelection(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOpenRequestBytes)).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		writeJSONError(w, "paths is required", http.StatusBadRequest)
		return
	}

	listing, err := h.source.Pick(r.Context(), req.Paths)
	if err != nil {
		logging.Warn("Failed to open selection: %v", err)
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	run, err := h.gallery.Open(r.Context(), listing.Refs)
	if err != nil {
		logging.Error("Failed to start gallery run: %v", err)
		writeJSONError(w, "failed to open gallery", http.StatusServiceUnavailable)
		return
	}

	resp := OpenResponse{Run: uint64(run), Items: len(h.gallery.Snapshot().Items())}
	for _, s := range listing.Skipped {
		resp.Skipped = append(resp.Skipped, SkippedEntry{Path: s.Path, Error: s.Err.Error()})
	}

	logging.Info("Opened %d items (%d skipped) as run %d", resp.Items, len(resp.Skipped), run)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// Refresh restarts thumbnail production for the current items.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	run, err := h.gallery.Refresh(r.Context())
	if err != nil {
		logging.Error("Failed to refresh gallery: %v", err)
		writeJSONError(w, "failed to refresh gallery", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, OpenResponse{Run: uint64(run), Items: len(h.gallery.Snapshot().Items())})
}

// GetLastFolder returns the last folder a selection was opened from.
func (h *Handlers) GetLastFolder(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, map[string]string{"folder": h.source.LastFolder()})
}

// lookup resolves the {id} route variable to a gallery item, writing the
// error response when it cannot.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (fileref.ID, bool) {
	id, err := itemID(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	if _, ok := h.gallery.Snapshot().Item(id); !ok {
		writeJSONError(w, "item not found", http.StatusNotFound)
		return "", false
	}
	return id, true
}
