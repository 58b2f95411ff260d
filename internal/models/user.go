package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system. Roles are totally ordered:
// driver < manager < admin.
type Role string

const (
	RoleDriver  Role = "driver"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// rank returns the position of a role in the privilege order, or -1 for an
// unknown role.
func (r Role) rank() int {
	switch r {
	case RoleDriver:
		return 0
	case RoleManager:
		return 1
	case RoleAdmin:
		return 2
	default:
		return -1
	}
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	return role.rank() >= 0
}

// Satisfies reports whether a user holding actual may access something that
// requires the required role. Unknown roles never satisfy and are never
// satisfied.
func Satisfies(required, actual Role) bool {
	req, act := required.rank(), actual.rank()
	if req < 0 || act < 0 {
		return false
	}
	return act >= req
}

// User represents a user in the system
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}
