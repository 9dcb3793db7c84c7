package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"

	"retrospect/pkg/archive"
	"retrospect/pkg/convert"
	"retrospect/pkg/logger"
	"retrospect/pkg/mediacache"
	"retrospect/pkg/sensor"
	"retrospect/pkg/telemetry"
	"retrospect/pkg/utils"
)

// Attachments serves attachment bytes, converting HEIC images to JPEG
// through the media cache.
type Attachments struct {
	Archive   *archive.Store
	Cache     *mediacache.Cache
	Converter *convert.Converter
	Gate      *sensor.Gate
}

// Register registers attachment routes on the provided router.
func (h *Attachments) Register(r *mux.Router) {
	r.HandleFunc("/attachments/{id}", h.serve).Methods(http.MethodGet)
}

// serve handles GET /attachments/{id}.
func (h *Attachments) serve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(mux.Vars(r), "id")
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, mime, err := h.Archive.AttachmentPath(r.Context(), id)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "attachment not found")
			return
		}
		logger.Error("attachment_lookup_failed", "attachment", id, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "attachment unavailable")
		return
	}

	if convert.IsHEIC(mime, path) {
		if h.serveConverted(w, r, id, path) {
			return
		}
		// conversion unavailable; fall through to the original bytes
	}
	h.serveOriginal(w, r, id, path, mime)
}

// serveConverted serves the cached JPEG rendition, converting on demand
// on a cache miss. Returns false when the caller should fall back to the
// original file.
func (h *Attachments) serveConverted(w http.ResponseWriter, r *http.Request, id int64, path string) bool {
	if data, meta, ok := h.Cache.Get(id); ok {
		telemetry.CacheHit()
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeContent(w, r, jpegName(path), meta.CreatedAt(), bytes.NewReader(data))
		return true
	}
	telemetry.CacheMiss()

	if h.Converter == nil {
		return false
	}
	data, err := h.Converter.ToJPEG(r.Context(), path)
	if err != nil {
		logger.Warn("heic_convert_failed", "attachment", id, "path", path, "error", err)
		telemetry.DegradedInc("attachments.convert")
		return false
	}
	if h.Gate.AllowWrites() {
		if err := h.Cache.Put(id, data, "convert"); err != nil {
			logger.Warn("mediacache_put_failed", "attachment", id, "error", err)
		}
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, jpegName(path), time.Now(), bytes.NewReader(data))
	return true
}

// serveOriginal streams the file as stored in the archive.
func (h *Attachments) serveOriginal(w http.ResponseWriter, r *http.Request, id int64, path, mime string) {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("attachment_file_missing", "attachment", id, "path", path, "error", err)
		utils.JSONError(w, http.StatusNotFound, "attachment file missing")
		return
	}
	defer f.Close()

	if mime == "" {
		if mt, err := mimetype.DetectReader(f); err == nil {
			mime = mt.String()
		}
		if _, err := f.Seek(0, 0); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, "attachment unavailable")
			return
		}
	}
	if mime != "" {
		w.Header().Set("Content-Type", mime)
	}

	info, err := f.Stat()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "attachment unavailable")
		return
	}
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func jpegName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".jpg"
}
