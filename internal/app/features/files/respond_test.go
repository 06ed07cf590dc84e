package files

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	favouritestore "github.com/dalemusser/stratadrive/internal/app/store/favourites"
	"github.com/dalemusser/stratadrive/internal/app/system/access"
	"github.com/dalemusser/stratadrive/internal/app/vault"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{access.ErrUnauthenticated, http.StatusUnauthorized},
		{access.ErrUnauthorized, http.StatusForbidden},
		{access.ErrForbidden, http.StatusForbidden},
		{access.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: name is required", vault.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("toggle favourite: %w", favouritestore.ErrToggleContention), http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
