// internal/app/features/blobs/routes.go
package blobs

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter mounted under /blobs. Requests are authorized
// by their URL signature, not by a bearer token.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Put("/{ref}", h.ServeUpload)
	r.Get("/{ref}", h.ServeDownload)
	return r
}
