// internal/app/features/identityhooks/routes.go
package identityhooks

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter mounted under /webhooks.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/identity", h.ServeWebhook)
	return r
}
