// internal/app/store/principals/principalstore.go
package principalstore

// Terminology: Principal Identifiers
//   - PrincipalID / principal_id: the MongoDB ObjectID (_id) of a principal record
//   - TokenIdentifier / token_identifier: the identity provider's stable "issuer|subject" string

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the durable projection of principals and their org memberships.
// It is written only by identity provider events.
type Store struct {
	c *mongo.Collection
}

var (
	ErrEmptyToken = errors.New("token identifier is required")
	ErrEmptyOrgID = errors.New("org id is required")
	ErrBadRole    = errors.New(`role must be "admin", "basic_member" or "guest_member"`)
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("principals")}
}

// GetByToken returns the principal with the given token identifier.
// Returns mongo.ErrNoDocuments when no principal has been projected yet.
func (s *Store) GetByToken(ctx context.Context, token string) (models.Principal, error) {
	var p models.Principal
	if err := s.c.FindOne(ctx, bson.M{"token_identifier": token}).Decode(&p); err != nil {
		return models.Principal{}, err
	}
	return p, nil
}

// GetByID returns the principal with the given ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Principal, error) {
	var p models.Principal
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return models.Principal{}, err
	}
	return p, nil
}

// EnsurePrincipal creates the principal if it does not exist yet.
// Replayed events are no-ops.
func (s *Store) EnsurePrincipal(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	return s.upsert(ctx, token, bson.M{})
}

// UpdateProfile sets the display name and avatar, creating the principal
// if needed.
func (s *Store) UpdateProfile(ctx context.Context, token, name, image string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	return s.upsert(ctx, token, bson.M{
		"name":  strings.TrimSpace(name),
		"image": strings.TrimSpace(image),
	})
}

// SetMembership records that the principal holds role in orgID.
// It covers both "membership added" and "role changed" events: an existing
// membership has its role replaced, a missing one is appended, and a missing
// principal is created first. Applying the same event twice leaves the
// same state.
func (s *Store) SetMembership(ctx context.Context, token, orgID string, role models.Role) error {
	token = strings.TrimSpace(token)
	orgID = strings.TrimSpace(orgID)
	if token == "" {
		return ErrEmptyToken
	}
	if orgID == "" {
		return ErrEmptyOrgID
	}
	if !role.IsValid() {
		return ErrBadRole
	}

	if err := s.upsert(ctx, token, bson.M{}); err != nil {
		return err
	}

	// Two passes cover a concurrent append landing between our update and push.
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now().UTC()

		res, err := s.c.UpdateOne(ctx,
			bson.M{"token_identifier": token, "memberships.org_id": orgID},
			bson.M{"$set": bson.M{"memberships.$.role": role, "updated_at": now}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}

		res, err = s.c.UpdateOne(ctx,
			bson.M{"token_identifier": token, "memberships.org_id": bson.M{"$ne": orgID}},
			bson.M{
				"$push": bson.M{"memberships": models.Membership{OrgID: orgID, Role: role}},
				"$set":  bson.M{"updated_at": now},
			},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}
	}
	return errors.New("membership update lost a concurrent race; retry")
}

// upsert creates the principal document if absent and applies set.
func (s *Store) upsert(ctx context.Context, token string, set bson.M) error {
	now := time.Now().UTC()
	set["updated_at"] = now

	_, err := s.c.UpdateOne(ctx,
		bson.M{"token_identifier": token},
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"memberships": []models.Membership{},
				"created_at":  now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// Two first-seen events raced on the unique token index; the
		// other writer created the document, so apply our fields again.
		if wafflemongo.IsDup(err) {
			_, err = s.c.UpdateOne(ctx, bson.M{"token_identifier": token}, bson.M{"$set": set})
		}
		return err
	}
	return nil
}
