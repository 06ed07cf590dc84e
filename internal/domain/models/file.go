// internal/domain/models/file.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// File is the metadata record for an uploaded blob.
//
// BlobRef is an opaque handle owned by the blob store; this service never
// reads file bytes. Each ref backs at most one record and is never sent to
// clients. ShouldDelete marks the file as trashed; only trashed files are
// ever removed for good (by the trash reaper), and ReapingAt is set while a
// reaper holds the file.
type File struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name    string             `bson:"name" json:"name"`
	NameCI  string             `bson:"name_ci" json:"-"` // lowercase, diacritics-stripped
	Type    FileType           `bson:"type" json:"type"`
	OwnerID primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	OrgID   string             `bson:"org_id" json:"org_id"`
	BlobRef string             `bson:"blob_ref" json:"-"`

	ShouldDelete bool       `bson:"should_delete" json:"should_delete"`
	ReapingAt    *time.Time `bson:"reaping_at,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
