package models

import "github.com/golang-jwt/jwt/v5"

// ServiceRole scopes what a service token may do on the council routes.
type ServiceRole string

const (
	RoleAdmin  ServiceRole = "ADMIN"
	RoleViewer ServiceRole = "VIEWER"
)

// Valid reports whether r is a known role.
func (r ServiceRole) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}

// ServiceClaims is the JWT payload of a service token.
type ServiceClaims struct {
	Role ServiceRole `json:"role"`
	jwt.RegisteredClaims
}
