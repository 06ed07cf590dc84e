// internal/app/features/files/routes.go
package files

import (
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// OrgRoutes is mounted under /orgs. Listings answer anonymous callers with
// empty results; creation and profile reads require a signed-in caller.
func OrgRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{orgID}/files", h.ServeList)
	r.Get("/{orgID}/favourites", h.ServeFavourites)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Post("/{orgID}/files", h.ServeCreate)
		pr.Get("/{orgID}/principals/{principalID}", h.ServeProfile)
	})
	return r
}

// FileRoutes is mounted under /files.
func FileRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{fileID}/url", h.ServeDownloadURL)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Post("/upload-url", h.ServeUploadURL)
		pr.Post("/{fileID}/delete", h.ServeDelete)
		pr.Post("/{fileID}/restore", h.ServeRestore)
		pr.Get("/{fileID}/favourite", h.ServeIsFavourite)
		pr.Post("/{fileID}/favourite", h.ServeToggleFavourite)
	})
	return r
}
