// internal/domain/models/principal.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is a principal's role inside one organization.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleBasicMember Role = "basic_member"
	RoleGuestMember Role = "guest_member"
)

// Roles lists every valid membership role.
var Roles = []Role{RoleAdmin, RoleBasicMember, RoleGuestMember}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Membership ties a principal to an organization with a role.
// A principal holds at most one Membership per org_id.
type Membership struct {
	OrgID string `bson:"org_id" json:"org_id"`
	Role  Role   `bson:"role" json:"role"`
}

// Principal is an authenticated caller as projected from identity provider
// events. TokenIdentifier is stable per caller and unique across principals.
//
// NOTE:
//   - A principal with no memberships acts as the only member of its
//     personal org (see access.PersonalOrgID).
//   - Principals are never deleted by this service.
type Principal struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TokenIdentifier string             `bson:"token_identifier" json:"token_identifier"`
	Name            string             `bson:"name,omitempty" json:"name,omitempty"`
	Image           string             `bson:"image,omitempty" json:"image,omitempty"`
	Memberships     []Membership       `bson:"memberships" json:"memberships"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// MembershipIn returns the principal's membership in orgID, if any.
func (p *Principal) MembershipIn(orgID string) (Membership, bool) {
	for _, m := range p.Memberships {
		if m.OrgID == orgID {
			return m, true
		}
	}
	return Membership{}, false
}
