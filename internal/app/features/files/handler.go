// internal/app/features/files/handler.go
package files

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/app/vault"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBodyBytes caps JSON request bodies. File contents never pass through
// this API.
const maxBodyBytes = 64 << 10

// Handler serves the JSON file API.
type Handler struct {
	Vault *vault.Service
	Log   *zap.Logger
}

func NewHandler(svc *vault.Service, logger *zap.Logger) *Handler {
	return &Handler{Vault: svc, Log: logger}
}

type createFileRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	BlobRef string `json:"blob_ref"`
}

// ServeList handles GET /orgs/{orgID}/files.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	favs, err := parseBool(q.Get("favourites"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: favourites: %v", vault.ErrInvalidInput, err))
		return
	}
	deleted, err := parseBool(q.Get("deleted"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: deleted: %v", vault.ErrInvalidInput, err))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list files")
	defer cancel()

	out, err := h.Vault.ListFiles(ctx, auth.TokenOf(r), chi.URLParam(r, "orgID"), vault.ListFilter{
		Query:          q.Get("query"),
		FavouritesOnly: favs,
		DeletedOnly:    deleted,
		Type:           q.Get("type"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ServeCreate handles POST /orgs/{orgID}/files.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed body: %v", vault.ErrInvalidInput, err))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create file")
	defer cancel()

	f, err := h.Vault.CreateFile(ctx, auth.TokenOf(r), vault.CreateFileInput{
		OrgID:   chi.URLParam(r, "orgID"),
		Name:    req.Name,
		Type:    req.Type,
		BlobRef: req.BlobRef,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// ServeFavourites handles GET /orgs/{orgID}/favourites.
func (h *Handler) ServeFavourites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list favourites")
	defer cancel()

	out, err := h.Vault.ListFavourites(ctx, auth.TokenOf(r), chi.URLParam(r, "orgID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ServeUploadURL handles POST /files/upload-url.
func (h *Handler) ServeUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "upload url")
	defer cancel()

	t, err := h.Vault.UploadURL(ctx, auth.TokenOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ServeDownloadURL handles GET /files/{fileID}/url. The url is null when
// the caller cannot see the file or its contents are gone.
func (h *Handler) ServeDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "download url")
	defer cancel()

	u, ok, err := h.Vault.DownloadURL(ctx, auth.TokenOf(r), chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body struct {
		URL *string `json:"url"`
	}
	if ok {
		body.URL = &u
	}
	writeJSON(w, http.StatusOK, body)
}

// ServeDelete handles POST /files/{fileID}/delete.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "trash file")
	defer cancel()

	if err := h.Vault.SoftDelete(ctx, auth.TokenOf(r), chi.URLParam(r, "fileID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeRestore handles POST /files/{fileID}/restore.
func (h *Handler) ServeRestore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "restore file")
	defer cancel()

	if err := h.Vault.Restore(ctx, auth.TokenOf(r), chi.URLParam(r, "fileID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeToggleFavourite handles POST /files/{fileID}/favourite.
func (h *Handler) ServeToggleFavourite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "toggle favourite")
	defer cancel()

	on, err := h.Vault.ToggleFavourite(ctx, auth.TokenOf(r), chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favourite": on})
}

// ServeIsFavourite handles GET /files/{fileID}/favourite.
func (h *Handler) ServeIsFavourite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "favourite state")
	defer cancel()

	on, err := h.Vault.IsFavourite(ctx, auth.TokenOf(r), chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favourite": on})
}

// ServeProfile handles GET /orgs/{orgID}/principals/{principalID}.
func (h *Handler) ServeProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "principal profile")
	defer cancel()

	p, err := h.Vault.PrincipalProfile(ctx, auth.TokenOf(r), chi.URLParam(r, "orgID"), chi.URLParam(r, "principalID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
