package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller supplied by the identity provider.
type Principal struct {
	UserID primitive.ObjectID
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Owns reports whether the order belongs to the principal.
func (p Principal) Owns(o *Order) bool {
	return o != nil && !p.UserID.IsZero() && o.UserID == p.UserID
}
