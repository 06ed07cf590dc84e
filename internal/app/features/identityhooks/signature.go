// internal/app/features/identityhooks/signature.go
package identityhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Tolerance is how far a webhook timestamp may drift from our clock.
const Tolerance = 5 * time.Minute

var (
	ErrMissingHeaders = errors.New("missing webhook signature headers")
	ErrBadTimestamp   = errors.New("webhook timestamp outside tolerance")
	ErrBadSignature   = errors.New("webhook signature mismatch")
)

// DecodeSecret accepts a signing secret in the provider's "whsec_<base64>"
// form, or a raw secret.
func DecodeSecret(s string) []byte {
	if rest, ok := strings.CutPrefix(s, "whsec_"); ok {
		if b, err := base64.StdEncoding.DecodeString(rest); err == nil {
			return b
		}
	}
	return []byte(s)
}

// header reads the standard webhook header, falling back to the svix-*
// spelling some providers still send.
func header(h http.Header, name string) string {
	if v := h.Get("webhook-" + name); v != "" {
		return v
	}
	return h.Get("svix-" + name)
}

// Sign returns the v1 signature for a message. Exported for tests and
// local tooling that replays events.
func Sign(secret []byte, id string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id + "." + strconv.FormatInt(ts.Unix(), 10) + "."))
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature headers against body. The signature header
// may list several space-separated signatures during key rotation.
func Verify(secret []byte, h http.Header, body []byte, now time.Time) error {
	id, tsRaw, sigs := header(h, "id"), header(h, "timestamp"), header(h, "signature")
	if id == "" || tsRaw == "" || sigs == "" {
		return ErrMissingHeaders
	}
	sec, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	ts := time.Unix(sec, 0)
	if now.Sub(ts) > Tolerance || ts.Sub(now) > Tolerance {
		return ErrBadTimestamp
	}

	want := []byte(Sign(secret, id, ts, body))
	for _, s := range strings.Fields(sigs) {
		if hmac.Equal([]byte(s), want) {
			return nil
		}
	}
	return ErrBadSignature
}
