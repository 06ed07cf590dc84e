// internal/app/system/access/access.go
//
// Package access decides whether a caller may act on an organization or a
// file. It performs lookups only and never writes.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrUnauthenticated means no caller identity was supplied.
	ErrUnauthenticated = errors.New("access: unauthenticated")
	// ErrUnauthorized means the caller is unknown or not a member of the org.
	ErrUnauthorized = errors.New("access: unauthorized")
	// ErrForbidden means the caller may read the file but not change it.
	ErrForbidden = errors.New("access: forbidden")
	// ErrNotFound means the file does not exist.
	ErrNotFound = errors.New("access: not found")
)

// PrincipalLookup finds a principal by token identifier. A missing principal
// is reported as mongo.ErrNoDocuments.
type PrincipalLookup interface {
	GetByToken(ctx context.Context, token string) (models.Principal, error)
}

// FileLookup finds a file by id. A missing file is reported as
// mongo.ErrNoDocuments.
type FileLookup interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.File, error)
}

// Resolver answers access questions for a caller identity.
type Resolver struct {
	principals PrincipalLookup
	files      FileLookup
}

// NewResolver wires a Resolver to its lookups.
func NewResolver(principals PrincipalLookup, files FileLookup) *Resolver {
	return &Resolver{principals: principals, files: files}
}

// ResolveOrgAccess returns the caller's principal when the caller belongs to
// orgID, either through a membership or because orgID is the caller's
// personal org.
func (r *Resolver) ResolveOrgAccess(ctx context.Context, identity, orgID string) (models.Principal, error) {
	if strings.TrimSpace(identity) == "" {
		return models.Principal{}, ErrUnauthenticated
	}
	p, err := r.principals.GetByToken(ctx, identity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Principal{}, ErrUnauthorized
		}
		return models.Principal{}, fmt.Errorf("lookup principal: %w", err)
	}
	if orgID == "" {
		return models.Principal{}, ErrUnauthorized
	}
	if _, ok := p.MembershipIn(orgID); ok {
		return p, nil
	}
	if orgID == PersonalOrgID(p.TokenIdentifier) {
		return p, nil
	}
	return models.Principal{}, ErrUnauthorized
}

// ResolveFileAccess loads the file and checks the caller may access its org.
// A malformed id is treated as a missing file.
func (r *Resolver) ResolveFileAccess(ctx context.Context, identity, fileID string) (models.Principal, models.File, error) {
	if strings.TrimSpace(identity) == "" {
		return models.Principal{}, models.File{}, ErrUnauthenticated
	}
	oid, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return models.Principal{}, models.File{}, ErrNotFound
	}
	f, err := r.files.GetByID(ctx, oid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Principal{}, models.File{}, ErrNotFound
		}
		return models.Principal{}, models.File{}, fmt.Errorf("lookup file: %w", err)
	}
	p, err := r.ResolveOrgAccess(ctx, identity, f.OrgID)
	if err != nil {
		return models.Principal{}, models.File{}, err
	}
	return p, f, nil
}

// PersonalOrgID returns the org id a principal owns as an individual: the
// subject after the last "|" of its token identifier.
func PersonalOrgID(token string) string {
	if i := strings.LastIndex(token, "|"); i >= 0 {
		return token[i+1:]
	}
	return token
}

// RoleIn reports the principal's role in orgID. The personal org has no
// role entry.
func RoleIn(p models.Principal, orgID string) (models.Role, bool) {
	m, ok := p.MembershipIn(orgID)
	if !ok {
		return "", false
	}
	return m.Role, true
}

// CanDelete reports whether p may trash or restore f: the owner, or an admin
// of the file's org.
func CanDelete(p models.Principal, f models.File) bool {
	if !p.ID.IsZero() && p.ID == f.OwnerID {
		return true
	}
	role, ok := RoleIn(p, f.OrgID)
	return ok && role == models.RoleAdmin
}
