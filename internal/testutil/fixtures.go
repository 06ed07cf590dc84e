package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreatePrincipal inserts a principal with the given token and memberships.
func (f *Fixtures) CreatePrincipal(ctx context.Context, token string, memberships ...models.Membership) models.Principal {
	f.t.Helper()

	if memberships == nil {
		memberships = []models.Membership{}
	}
	now := time.Now().UTC()
	p := models.Principal{
		ID:              primitive.NewObjectID(),
		TokenIdentifier: token,
		Memberships:     memberships,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := f.db.Collection("principals").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test principal: %v", err)
	}
	return p
}

// CreateFile inserts a file record owned by ownerID in orgID.
func (f *Fixtures) CreateFile(ctx context.Context, name string, typ models.FileType, ownerID primitive.ObjectID, orgID string) models.File {
	f.t.Helper()

	now := time.Now().UTC()
	file := models.File{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		Type:      typ,
		OwnerID:   ownerID,
		OrgID:     orgID,
		BlobRef:   "blobs/" + primitive.NewObjectID().Hex(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("files").InsertOne(ctx, file); err != nil {
		f.t.Fatalf("failed to create test file: %v", err)
	}
	return file
}

// CreateTrashedFile inserts a file that is already flagged for deletion.
func (f *Fixtures) CreateTrashedFile(ctx context.Context, name string, ownerID primitive.ObjectID, orgID string) models.File {
	f.t.Helper()

	file := f.CreateFile(ctx, name, models.FileTypeText, ownerID, orgID)
	_, err := f.db.Collection("files").UpdateByID(ctx, file.ID, bson.M{
		"$set": bson.M{"should_delete": true},
	})
	if err != nil {
		f.t.Fatalf("failed to trash test file: %v", err)
	}
	file.ShouldDelete = true
	return file
}
