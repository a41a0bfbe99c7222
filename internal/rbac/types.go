package rbac

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
)

// Permission is one (resource, action) capability from the shared catalog.
// The catalog is tenant-agnostic; roles scope it per organization.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role groups permissions within one organization. UserCount is the number of
// distinct users currently holding the role and is computed on read.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	UserCount      int       `json:"user_count"`
}

// RoleWithPermissions is a role plus its full permission list.
type RoleWithPermissions struct {
	Role
	Permissions []Permission `json:"permissions"`
}

// Assignment links a user to a role inside an organization.
type Assignment struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	RoleID         string    `json:"role_id"`
	AssignedAt     time.Time `json:"assigned_at"`
}

// RoleUpdate is a partial role update; nil fields are left untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
}
