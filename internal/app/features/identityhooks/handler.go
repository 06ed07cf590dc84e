// internal/app/features/identityhooks/handler.go
//
// Package identityhooks keeps the principal directory in step with the
// identity provider. Events are applied idempotently, so provider retries
// are harmless.
package identityhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.uber.org/zap"
)

const maxPayloadBytes = 1 << 20

// Directory is the write side of the principal store.
type Directory interface {
	EnsurePrincipal(ctx context.Context, token string) error
	UpdateProfile(ctx context.Context, token, name, image string) error
	SetMembership(ctx context.Context, token, orgID string, role models.Role) error
}

type Handler struct {
	Directory Directory
	// Issuer prefixes provider user ids to form token identifiers. It must
	// match the iss claim of the provider's JWTs.
	Issuer string
	Secret []byte
	Log    *zap.Logger
	now    func() time.Time
}

func NewHandler(dir Directory, issuer string, secret []byte, logger *zap.Logger) *Handler {
	return &Handler{
		Directory: dir,
		Issuer:    issuer,
		Secret:    secret,
		Log:       logger,
		now:       time.Now,
	}
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type userData struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url"`
}

type membershipData struct {
	Role         string `json:"role"`
	Organization struct {
		ID string `json:"id"`
	} `json:"organization"`
	PublicUserData struct {
		UserID string `json:"user_id"`
	} `json:"public_user_data"`
}

var errMalformed = errors.New("malformed event")

// MapRole converts a provider role to a membership role. Unknown roles get
// basic_member.
func MapRole(providerRole string) models.Role {
	switch providerRole {
	case "org:admin":
		return models.RoleAdmin
	case "org:guest_member":
		return models.RoleGuestMember
	default:
		return models.RoleBasicMember
	}
}

// ServeWebhook handles POST /webhooks/identity.
//
// 204 when the event was applied or ignored, 401 for a bad signature, 400
// for an unreadable payload, 500 when the directory write failed so the
// provider retries.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "unreadable payload", http.StatusBadRequest)
		return
	}
	if err := Verify(h.Secret, r.Header, body, h.now()); err != nil {
		h.Log.Warn("identity webhook rejected", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "identity webhook")
	defer cancel()

	if err := h.apply(ctx, ev); err != nil {
		if errors.Is(err, errMalformed) {
			h.Log.Warn("identity webhook payload rejected", zap.String("type", ev.Type), zap.Error(err))
			http.Error(w, "malformed event", http.StatusBadRequest)
			return
		}
		h.Log.Error("identity webhook apply failed", zap.String("type", ev.Type), zap.Error(err))
		http.Error(w, "webhook error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apply(ctx context.Context, ev event) error {
	switch ev.Type {
	case "user.created", "user.updated":
		var d userData
		if err := json.Unmarshal(ev.Data, &d); err != nil || d.ID == "" {
			return errMalformed
		}
		token := h.tokenFor(d.ID)
		name := strings.TrimSpace(d.FirstName + " " + d.LastName)
		if ev.Type == "user.created" && name == "" && d.ImageURL == "" {
			return h.Directory.EnsurePrincipal(ctx, token)
		}
		return h.Directory.UpdateProfile(ctx, token, name, d.ImageURL)

	case "organizationMembership.created", "organizationMembership.updated":
		var d membershipData
		if err := json.Unmarshal(ev.Data, &d); err != nil || d.PublicUserData.UserID == "" || d.Organization.ID == "" {
			return errMalformed
		}
		role := MapRole(d.Role)
		h.Log.Info("membership event",
			zap.String("type", ev.Type),
			zap.String("org_id", d.Organization.ID),
			zap.String("role", string(role)))
		return h.Directory.SetMembership(ctx, h.tokenFor(d.PublicUserData.UserID), d.Organization.ID, role)

	default:
		h.Log.Debug("identity webhook ignored", zap.String("type", ev.Type))
		return nil
	}
}

func (h *Handler) tokenFor(userID string) string {
	return h.Issuer + "|" + userID
}
