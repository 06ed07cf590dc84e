// internal/app/store/favourites/favouritestore.go
package favouritestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxToggleAttempts bounds the delete/insert loop when toggles race.
const maxToggleAttempts = 8

// ErrToggleContention is returned when concurrent toggles keep racing.
var ErrToggleContention = errors.New("favourite toggle contention; retry")

// Store holds favourite markers. Uniqueness of (user_id, org_id, file_id)
// is enforced by the uniq_favourites_user_org_file unique index.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("favourites")}
}

// Toggle flips the favourite marker for (userID, orgID, fileID) and
// reports the resulting state (true = favourited).
//
// The marker is removed with a single conditional delete; when there was
// nothing to remove it is inserted. A duplicate-key error on insert means a
// concurrent toggle inserted first, so the loop runs again and removes it:
// two toggles always cancel out.
func (s *Store) Toggle(ctx context.Context, userID primitive.ObjectID, orgID string, fileID primitive.ObjectID) (bool, error) {
	key := bson.M{"user_id": userID, "org_id": orgID, "file_id": fileID}

	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		res, err := s.c.DeleteOne(ctx, key)
		if err != nil {
			return false, err
		}
		if res.DeletedCount > 0 {
			return false, nil
		}

		fav := models.Favourite{
			ID:        primitive.NewObjectID(),
			UserID:    userID,
			OrgID:     orgID,
			FileID:    fileID,
			CreatedAt: time.Now().UTC(),
		}
		_, err = s.c.InsertOne(ctx, fav)
		if err == nil {
			return true, nil
		}
		if !wafflemongo.IsDup(err) {
			return false, err
		}
	}
	return false, ErrToggleContention
}

// IsFavourite reports whether the marker exists.
func (s *Store) IsFavourite(ctx context.Context, userID primitive.ObjectID, orgID string, fileID primitive.ObjectID) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{"user_id": userID, "org_id": orgID, "file_id": fileID}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListFor returns the principal's favourites inside orgID.
func (s *Store) ListFor(ctx context.Context, userID primitive.ObjectID, orgID string) ([]models.Favourite, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID, "org_id": orgID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Favourite{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FileIDs returns the IDs of the files the principal favourited in orgID.
// The result is never nil, so it can be used directly as an ID restriction.
func (s *Store) FileIDs(ctx context.Context, userID primitive.ObjectID, orgID string) ([]primitive.ObjectID, error) {
	favs, err := s.ListFor(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(favs))
	for _, f := range favs {
		ids = append(ids, f.FileID)
	}
	return ids, nil
}

// DeleteByFile removes every favourite pointing at fileID.
// Returns the number of documents deleted.
func (s *Store) DeleteByFile(ctx context.Context, fileID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"file_id": fileID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
