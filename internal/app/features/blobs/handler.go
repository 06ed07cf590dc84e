// internal/app/features/blobs/handler.go
//
// Package blobs serves the signed upload and download URLs issued by the
// local blob backend. It is only mounted when storage_type is "local".
package blobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/dalemusser/stratadrive/internal/app/system/blob"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Store    *blob.Local
	MaxBytes int64
	Log      *zap.Logger
}

func NewHandler(store *blob.Local, maxBytes int64, logger *zap.Logger) *Handler {
	return &Handler{Store: store, MaxBytes: maxBytes, Log: logger}
}

// ServeUpload handles PUT /blobs/{ref}.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if !h.verify(w, blob.OpPut, ref, r) {
		return
	}

	body := r.Body
	if h.MaxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxBytes)
	}
	n, err := h.Store.Write(r.Context(), ref, body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.Log.Error("blob upload failed", zap.String("blob_ref", ref), zap.Error(err))
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"blob_ref": ref, "size": n})
}

// ServeDownload handles GET /blobs/{ref}.
func (h *Handler) ServeDownload(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if !h.verify(w, blob.OpGet, ref, r) {
		return
	}

	f, err := h.Store.Open(r.Context(), ref)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		h.Log.Error("blob open failed", zap.String("blob_ref", ref), zap.Error(err))
		http.Error(w, "download failed", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.Log.Error("blob stat failed", zap.String("blob_ref", ref), zap.Error(err))
		http.Error(w, "download failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, ref, info.ModTime(), f)
}

func (h *Handler) verify(w http.ResponseWriter, op, ref string, r *http.Request) bool {
	err := h.Store.Verify(op, ref, r.URL.Query())
	switch {
	case err == nil:
		return true
	case errors.Is(err, blob.ErrInvalidRef):
		http.NotFound(w, r)
	case errors.Is(err, blob.ErrExpired):
		http.Error(w, "link expired", http.StatusForbidden)
	default:
		http.Error(w, "invalid signature", http.StatusForbidden)
	}
	return false
}
