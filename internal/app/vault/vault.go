// internal/app/vault/vault.go
//
// Package vault is the gated file API. Every operation resolves the caller
// through access.Resolver before touching a store. List operations degrade
// to empty results on an access denial; mutations return the denial.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	favouritestore "github.com/dalemusser/stratadrive/internal/app/store/favourites"
	filestore "github.com/dalemusser/stratadrive/internal/app/store/files"
	principalstore "github.com/dalemusser/stratadrive/internal/app/store/principals"
	"github.com/dalemusser/stratadrive/internal/app/system/access"
	"github.com/dalemusser/stratadrive/internal/app/system/blob"
	"github.com/dalemusser/stratadrive/internal/app/system/sanitize"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ErrInvalidInput wraps every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Service exposes file and favourite operations to callers identified by
// their token identifier.
type Service struct {
	access     *access.Resolver
	principals *principalstore.Store
	files      *filestore.Store
	favs       *favouritestore.Store
	blobs      blob.Store
	log        *zap.Logger
}

func New(resolver *access.Resolver, principals *principalstore.Store, files *filestore.Store, favs *favouritestore.Store, blobs blob.Store, logger *zap.Logger) *Service {
	return &Service{access: resolver, principals: principals, files: files, favs: favs, blobs: blobs, log: logger}
}

// Profile is what one member may see of another: display name and avatar.
type Profile struct {
	ID    primitive.ObjectID `json:"id"`
	Name  string             `json:"name"`
	Image string             `json:"image,omitempty"`
}

// CreateFileInput is the caller-supplied part of a new file.
type CreateFileInput struct {
	OrgID   string
	Name    string
	Type    string
	BlobRef string
}

// ListFilter narrows ListFiles. Type is empty or one of the file types.
type ListFilter struct {
	Query          string
	FavouritesOnly bool
	DeletedOnly    bool
	Type           string
}

// CreateFile registers an uploaded blob as a file owned by the caller.
func (s *Service) CreateFile(ctx context.Context, identity string, in CreateFileInput) (models.File, error) {
	p, err := s.access.ResolveOrgAccess(ctx, identity, in.OrgID)
	if err != nil {
		return models.File{}, err
	}

	name := sanitize.FileName(in.Name)
	if name == "" {
		return models.File{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	typ, ok := models.ParseFileType(in.Type)
	if !ok {
		return models.File{}, fmt.Errorf("%w: unknown file type %q", ErrInvalidInput, in.Type)
	}
	ref := strings.TrimSpace(in.BlobRef)
	if ref == "" {
		return models.File{}, fmt.Errorf("%w: blob_ref is required", ErrInvalidInput)
	}

	f, err := s.files.Create(ctx, models.File{
		Name:    name,
		Type:    typ,
		OwnerID: p.ID,
		OrgID:   in.OrgID,
		BlobRef: ref,
	})
	if err != nil {
		if errors.Is(err, filestore.ErrBlobRefTaken) {
			return models.File{}, fmt.Errorf("%w: blob_ref is already registered", ErrInvalidInput)
		}
		return models.File{}, fmt.Errorf("create file: %w", err)
	}
	s.log.Info("file created",
		zap.String("file_id", f.ID.Hex()),
		zap.String("org_id", f.OrgID),
		zap.String("owner_id", p.ID.Hex()))
	return f, nil
}

// ListFiles returns the org's files newest first. An unknown or
// unauthorized caller gets an empty list.
func (s *Service) ListFiles(ctx context.Context, identity, orgID string, lf ListFilter) ([]models.File, error) {
	p, err := s.access.ResolveOrgAccess(ctx, identity, orgID)
	if err != nil {
		if isDenial(err) {
			return []models.File{}, nil
		}
		return nil, err
	}

	filter := filestore.ListFilter{
		OrgID:       orgID,
		Query:       lf.Query,
		DeletedOnly: lf.DeletedOnly,
	}
	if t := strings.TrimSpace(lf.Type); t != "" {
		typ, ok := models.ParseFileType(t)
		if !ok {
			return nil, fmt.Errorf("%w: unknown file type %q", ErrInvalidInput, lf.Type)
		}
		filter.Type = typ
	}
	if lf.FavouritesOnly {
		ids, err := s.favs.FileIDs(ctx, p.ID, orgID)
		if err != nil {
			return nil, fmt.Errorf("load favourites: %w", err)
		}
		filter.OnlyIDs = ids
	}

	out, err := s.files.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return out, nil
}

// SoftDelete moves a file to the trash. Only the owner or an org admin may.
func (s *Service) SoftDelete(ctx context.Context, identity, fileID string) error {
	return s.setTrashed(ctx, identity, fileID, true)
}

// Restore takes a file out of the trash. Restoring an untrashed file is a
// no-op.
func (s *Service) Restore(ctx context.Context, identity, fileID string) error {
	return s.setTrashed(ctx, identity, fileID, false)
}

func (s *Service) setTrashed(ctx context.Context, identity, fileID string, trashed bool) error {
	p, f, err := s.access.ResolveFileAccess(ctx, identity, fileID)
	if err != nil {
		return err
	}
	if !access.CanDelete(p, f) {
		return access.ErrForbidden
	}
	if err := s.files.SetShouldDelete(ctx, f.ID, trashed); err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return access.ErrNotFound
		case errors.Is(err, filestore.ErrReapInProgress):
			return err
		}
		return fmt.Errorf("update file: %w", err)
	}
	s.log.Info("file trash state changed",
		zap.String("file_id", f.ID.Hex()),
		zap.String("org_id", f.OrgID),
		zap.String("by", p.ID.Hex()),
		zap.Bool("should_delete", trashed))
	return nil
}

// ToggleFavourite flips the caller's favourite on a file and returns the new
// state. The favourite's org is always the file's org.
func (s *Service) ToggleFavourite(ctx context.Context, identity, fileID string) (bool, error) {
	p, f, err := s.access.ResolveFileAccess(ctx, identity, fileID)
	if err != nil {
		return false, err
	}
	on, err := s.favs.Toggle(ctx, p.ID, f.OrgID, f.ID)
	if err != nil {
		return false, fmt.Errorf("toggle favourite: %w", err)
	}
	return on, nil
}

// IsFavourite reports whether the caller has favourited the file.
func (s *Service) IsFavourite(ctx context.Context, identity, fileID string) (bool, error) {
	p, f, err := s.access.ResolveFileAccess(ctx, identity, fileID)
	if err != nil {
		return false, err
	}
	on, err := s.favs.IsFavourite(ctx, p.ID, f.OrgID, f.ID)
	if err != nil {
		return false, fmt.Errorf("load favourite: %w", err)
	}
	return on, nil
}

// ListFavourites returns the caller's favourites in an org, empty on denial.
func (s *Service) ListFavourites(ctx context.Context, identity, orgID string) ([]models.Favourite, error) {
	p, err := s.access.ResolveOrgAccess(ctx, identity, orgID)
	if err != nil {
		if isDenial(err) {
			return []models.Favourite{}, nil
		}
		return nil, err
	}
	out, err := s.favs.ListFor(ctx, p.ID, orgID)
	if err != nil {
		return nil, fmt.Errorf("list favourites: %w", err)
	}
	return out, nil
}

// DownloadURL returns a short-lived URL for the file's contents. It reports
// false when the caller may not see the file or the blob is gone.
func (s *Service) DownloadURL(ctx context.Context, identity, fileID string) (string, bool, error) {
	_, f, err := s.access.ResolveFileAccess(ctx, identity, fileID)
	if err != nil {
		if isDenial(err) || errors.Is(err, access.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	u, ok, err := s.blobs.DownloadURL(ctx, f.BlobRef)
	if err != nil {
		return "", false, fmt.Errorf("download url: %w", err)
	}
	return u, ok, nil
}

// UploadURL issues an upload ticket to any signed-in caller.
func (s *Service) UploadURL(ctx context.Context, identity string) (blob.UploadTicket, error) {
	if strings.TrimSpace(identity) == "" {
		return blob.UploadTicket{}, access.ErrUnauthenticated
	}
	t, err := s.blobs.UploadURL(ctx)
	if err != nil {
		return blob.UploadTicket{}, fmt.Errorf("upload url: %w", err)
	}
	return t, nil
}

// PrincipalProfile returns the name and avatar of a principal who shares
// orgID with the caller, typically a file's owner. A principal outside the
// org, or a caller outside it, gets ErrNotFound.
func (s *Service) PrincipalProfile(ctx context.Context, identity, orgID, principalID string) (Profile, error) {
	if _, err := s.access.ResolveOrgAccess(ctx, identity, orgID); err != nil {
		if errors.Is(err, access.ErrUnauthorized) {
			return Profile{}, access.ErrNotFound
		}
		return Profile{}, err
	}
	oid, err := primitive.ObjectIDFromHex(principalID)
	if err != nil {
		return Profile{}, access.ErrNotFound
	}
	p, err := s.principals.GetByID(ctx, oid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Profile{}, access.ErrNotFound
		}
		return Profile{}, fmt.Errorf("lookup principal: %w", err)
	}
	if _, ok := p.MembershipIn(orgID); !ok && access.PersonalOrgID(p.TokenIdentifier) != orgID {
		return Profile{}, access.ErrNotFound
	}
	return Profile{ID: p.ID, Name: p.Name, Image: p.Image}, nil
}

func isDenial(err error) bool {
	return errors.Is(err, access.ErrUnauthenticated) || errors.Is(err, access.ErrUnauthorized)
}
