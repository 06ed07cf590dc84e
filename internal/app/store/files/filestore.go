// internal/app/store/files/filestore.go
package filestore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var (
	ErrNameRequired    = errors.New("name is required")
	ErrBadType         = errors.New(`type must be "image", "pdf" or "text"`)
	ErrOrgRequired     = errors.New("org_id is required")
	ErrOwnerRequired   = errors.New("owner_id is required")
	ErrBlobRefRequired = errors.New("blob_ref is required")
	ErrBlobRefTaken    = errors.New("blob_ref already backs another file")

	// ErrReapInProgress is returned when restoring a file the reaper holds.
	ErrReapInProgress = errors.New("file is being permanently deleted")
)

// ReapClaimTTL is how long a reaper claim blocks restores. A claim older
// than this is treated as abandoned.
const ReapClaimTTL = 10 * time.Minute

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("files")}
}

// Create inserts a new File, setting NameCI and timestamps.
// New files are never trashed.
func (s *Store) Create(ctx context.Context, f models.File) (models.File, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.OrgID = strings.TrimSpace(f.OrgID)
	f.BlobRef = strings.TrimSpace(f.BlobRef)

	switch {
	case f.Name == "":
		return models.File{}, ErrNameRequired
	case f.OrgID == "":
		return models.File{}, ErrOrgRequired
	case f.OwnerID.IsZero():
		return models.File{}, ErrOwnerRequired
	case f.BlobRef == "":
		return models.File{}, ErrBlobRefRequired
	}
	typ, ok := models.ParseFileType(string(f.Type))
	if !ok {
		return models.File{}, ErrBadType
	}

	now := time.Now().UTC()
	f.ID = primitive.NewObjectID()
	f.NameCI = text.Fold(f.Name)
	f.Type = typ
	f.ShouldDelete = false
	f.ReapingAt = nil
	f.CreatedAt = now
	f.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, f); err != nil {
		if wafflemongo.IsDup(err) {
			return models.File{}, ErrBlobRefTaken
		}
		return models.File{}, err
	}
	return f, nil
}

// GetByID returns a file by its ID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.File, error) {
	var f models.File
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return models.File{}, err
	}
	return f, nil
}

// ListFilter narrows List to one org. Zero values mean "no constraint",
// except trash state: DeletedOnly=false lists only files that are not trashed.
type ListFilter struct {
	OrgID string

	// Query is a case- and diacritic-insensitive substring of the name.
	Query string

	// OnlyIDs, when non-nil, restricts results to these file IDs.
	// An empty non-nil slice matches nothing.
	OnlyIDs []primitive.ObjectID

	DeletedOnly bool
	Type        models.FileType
}

// BuildFilter translates a ListFilter into a Mongo filter document.
func BuildFilter(lf ListFilter) bson.M {
	filter := bson.M{"org_id": lf.OrgID}

	if q := text.Fold(strings.TrimSpace(lf.Query)); q != "" {
		filter["name_ci"] = bson.M{"$regex": regexp.QuoteMeta(q)}
	}
	if lf.OnlyIDs != nil {
		filter["_id"] = bson.M{"$in": lf.OnlyIDs}
	}
	if lf.DeletedOnly {
		filter["should_delete"] = true
	} else {
		// $ne also matches documents written without the field.
		filter["should_delete"] = bson.M{"$ne": true}
	}
	if lf.Type != "" {
		filter["type"] = lf.Type
	}
	return filter
}

// List returns the files matching lf, newest first.
func (s *Store) List(ctx context.Context, lf ListFilter) ([]models.File, error) {
	if lf.OnlyIDs != nil && len(lf.OnlyIDs) == 0 {
		return []models.File{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, BuildFilter(lf), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.File{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetShouldDelete flags or unflags a file for deletion.
// Returns mongo.ErrNoDocuments if the file does not exist and
// ErrReapInProgress when unflagging a file under a live reaper claim.
func (s *Store) SetShouldDelete(ctx context.Context, id primitive.ObjectID, flagged bool) error {
	now := time.Now().UTC()
	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{
		"should_delete": flagged,
		"updated_at":    now,
	}}
	if !flagged {
		filter["$or"] = unclaimed(now)
		update["$unset"] = bson.M{"reaping_at": ""}
	}

	res, err := s.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if flagged {
		return mongo.ErrNoDocuments
	}
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return mongo.ErrNoDocuments
	}
	return ErrReapInProgress
}

func unclaimed(now time.Time) bson.A {
	return bson.A{
		bson.M{"reaping_at": nil},
		bson.M{"reaping_at": bson.M{"$lt": now.Add(-ReapClaimTTL)}},
	}
}

// ListFlagged returns every file currently flagged for deletion, in all orgs.
func (s *Store) ListFlagged(ctx context.Context) ([]models.File, error) {
	cur, err := s.c.Find(ctx, bson.M{"should_delete": true})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.File
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimForReap marks a flagged file as held by the reaper. It reports false
// when the file is gone, restored, or already held by a live claim.
func (s *Store) ClaimForReap(ctx context.Context, id primitive.ObjectID) (bool, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "should_delete": true, "$or": unclaimed(now)},
		bson.M{"$set": bson.M{"reaping_at": now}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// ReleaseReap drops a reaper claim so the file can be restored again.
func (s *Store) ReleaseReap(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$unset": bson.M{"reaping_at": ""}})
	return err
}

// BlobRefShared reports whether any file other than exceptID points at ref.
func (s *Store) BlobRefShared(ctx context.Context, ref string, exceptID primitive.ObjectID) (bool, error) {
	n, err := s.c.CountDocuments(ctx,
		bson.M{"blob_ref": ref, "_id": bson.M{"$ne": exceptID}},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteIfFlagged permanently removes the file only while it is still
// flagged. Returns false when it was restored (or already gone).
func (s *Store) DeleteIfFlagged(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "should_delete": true})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}
