// internal/domain/models/favourite.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Favourite marks a file as a favourite of one principal inside one org.
// Exactly one document per (user_id, org_id, file_id); OrgID always equals
// the favourited file's OrgID.
type Favourite struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	OrgID     string             `bson:"org_id" json:"org_id"`
	FileID    primitive.ObjectID `bson:"file_id" json:"file_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
