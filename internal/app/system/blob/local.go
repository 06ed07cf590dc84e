// internal/app/system/blob/local.go
package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Operations a signed local URL can authorize.
const (
	OpPut = "put"
	OpGet = "get"
)

// Local keeps blobs on a filesystem and serves them through URLs signed
// with an HMAC key. The routes that honour those URLs live in the blobs
// feature.
type Local struct {
	fs      afero.Fs
	baseURL string
	secret  []byte
	expiry  time.Duration
	now     func() time.Time
}

// NewLocal returns a Local backend rooted at fs. baseURL is the public
// prefix of the blob routes, for example "https://files.example.com/blobs".
func NewLocal(fs afero.Fs, baseURL string, secret []byte, expiry time.Duration) *Local {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Local{
		fs:      fs,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		expiry:  expiry,
		now:     time.Now,
	}
}

// UploadURL signs a PUT URL for a fresh reference.
func (l *Local) UploadURL(_ context.Context) (UploadTicket, error) {
	ref := newRef()
	u, exp := l.signedURL(OpPut, ref)
	return UploadTicket{URL: u, BlobRef: ref, ExpiresAt: exp}, nil
}

// DownloadURL signs a GET URL when the blob exists.
func (l *Local) DownloadURL(_ context.Context, ref string) (string, bool, error) {
	if !validRef(ref) {
		return "", false, nil
	}
	ok, err := afero.Exists(l.fs, ref)
	if err != nil {
		return "", false, fmt.Errorf("stat blob: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	u, _ := l.signedURL(OpGet, ref)
	return u, true, nil
}

// Delete removes the blob. References that cannot name a local blob are
// treated as already gone.
func (l *Local) Delete(_ context.Context, ref string) error {
	if !validRef(ref) {
		return nil
	}
	if err := l.fs.Remove(ref); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Check confirms the storage root is present.
func (l *Local) Check(_ context.Context) error {
	fi, err := l.fs.Stat(".")
	if err != nil {
		return fmt.Errorf("stat storage root: %w", err)
	}
	if !fi.IsDir() {
		return errors.New("storage root is not a directory")
	}
	return nil
}

// Write stores r under ref, replacing any previous content.
func (l *Local) Write(_ context.Context, ref string, r io.Reader) (int64, error) {
	if !validRef(ref) {
		return 0, ErrInvalidRef
	}
	f, err := l.fs.OpenFile(ref, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = l.fs.Remove(ref)
		return 0, fmt.Errorf("write blob: %w", err)
	}
	return n, nil
}

// Open returns the blob for reading. The caller closes it.
func (l *Local) Open(_ context.Context, ref string) (afero.File, error) {
	if !validRef(ref) {
		return nil, ErrInvalidRef
	}
	return l.fs.Open(ref)
}

// Verify checks a signed URL's query values for op on ref.
func (l *Local) Verify(op, ref string, q url.Values) error {
	if !validRef(ref) {
		return ErrInvalidRef
	}
	if q.Get("op") != op {
		return ErrBadSignature
	}
	exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(q.Get("sig"))
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(got, l.sign(op, ref, exp)) {
		return ErrBadSignature
	}
	if l.now().Unix() > exp {
		return ErrExpired
	}
	return nil
}

func (l *Local) signedURL(op, ref string) (string, time.Time) {
	exp := l.now().Add(l.expiry)
	q := url.Values{}
	q.Set("op", op)
	q.Set("exp", strconv.FormatInt(exp.Unix(), 10))
	q.Set("sig", hex.EncodeToString(l.sign(op, ref, exp.Unix())))
	return l.baseURL + "/" + ref + "?" + q.Encode(), exp
}

func (l *Local) sign(op, ref string, exp int64) []byte {
	mac := hmac.New(sha256.New, l.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", op, ref, exp)
	return mac.Sum(nil)
}

// Local references are bare UUIDs so they can never escape the root.
func validRef(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil && !strings.ContainsAny(ref, "/\\.")
}
