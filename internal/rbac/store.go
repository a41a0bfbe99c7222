package rbac

import "context"

// Store describes the persistence operations the RBAC subsystem needs.
// Implementations translate storage-level uniqueness and reference violations
// into ErrConflict / ErrNotFound.
type Store interface {
	// Permission catalog.
	ListPermissions(ctx context.Context) ([]Permission, error)
	CountPermissions(ctx context.Context) (int, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	InsertPermissions(ctx context.Context, perms []Permission) error

	// Roles.
	ListRoles(ctx context.Context, orgID string) ([]Role, error)
	GetRole(ctx context.Context, roleID, orgID string) (Role, error)
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)
	CreateRole(ctx context.Context, role Role, permissionIDs []string) (Role, error)
	UpdateRole(ctx context.Context, roleID, orgID string, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, roleID, orgID string) error
	SetRolePermissions(ctx context.Context, roleID, orgID string, permissionIDs []string) error

	// Assignments.
	AssignRole(ctx context.Context, userID, roleID, orgID string) (Assignment, error)
	RemoveAssignment(ctx context.Context, userID, roleID, orgID string) error
	RolesForUser(ctx context.Context, userID, orgID string) ([]Role, error)
	PermissionsForUser(ctx context.Context, userID, orgID string) ([]Permission, error)
	HasPermission(ctx context.Context, userID, orgID, resource, action string) (bool, error)
}
