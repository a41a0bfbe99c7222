package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worklane.org/internal/ids"
)

// Service provides role and permission operations over a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ListPermissions returns the whole catalog ordered by (resource, action).
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// CreatePermission adds one capability to the catalog. The (resource, action)
// pair is globally unique.
func (s *Service) CreatePermission(ctx context.Context, resource, action, description string) (Permission, error) {
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: resource and action are required", ErrInvalidInput)
	}
	p := Permission{
		ID:          ids.New(),
		Name:        resource + "." + action,
		Resource:    resource,
		Action:      action,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
	}
	return s.store.CreatePermission(ctx, p)
}

// SeedDefaultPermissions inserts the starter catalog. Safe to call on every
// startup: if any permission already exists it does nothing and reports zero
// inserts.
func (s *Service) SeedDefaultPermissions(ctx context.Context) (int, error) {
	existing, err := s.store.CountPermissions(ctx)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}
	now := s.now().UTC()
	perms := make([]Permission, len(DefaultPermissions))
	for i, p := range DefaultPermissions {
		p.ID = ids.New()
		p.Name = p.Resource + "." + p.Action
		p.CreatedAt = now
		perms[i] = p
	}
	if err := s.store.InsertPermissions(ctx, perms); err != nil {
		return 0, err
	}
	return len(perms), nil
}

// ListRoles returns the organization's roles with their user counts.
func (s *Service) ListRoles(ctx context.Context, orgID string) ([]Role, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.ListRoles(ctx, orgID)
}

// GetRole returns a role with its permission list. A role belonging to a
// different organization is indistinguishable from a missing one.
func (s *Service) GetRole(ctx context.Context, roleID, orgID string) (RoleWithPermissions, error) {
	roleID = strings.TrimSpace(roleID)
	orgID = strings.TrimSpace(orgID)
	if roleID == "" || orgID == "" {
		return RoleWithPermissions{}, fmt.Errorf("%w: role_id and organization_id are required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID, orgID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	perms, err := s.store.RolePermissions(ctx, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	return RoleWithPermissions{Role: role, Permissions: perms}, nil
}

// CreateRole creates a role and grants any of the requested permission ids
// that resolve to real permissions. Unknown ids are dropped silently: the
// resulting set always matches the valid subset of the request.
func (s *Service) CreateRole(ctx context.Context, orgID, name, description string, permissionIDs []string) (Role, error) {
	orgID = strings.TrimSpace(orgID)
	name = strings.TrimSpace(name)
	if orgID == "" {
		return Role{}, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	role := Role{
		ID:             ids.New(),
		OrganizationID: orgID,
		Name:           name,
		Description:    strings.TrimSpace(description),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.store.CreateRole(ctx, role, dedupeStrings(permissionIDs))
}

// UpdateRole applies a partial update. Renaming onto another role's name in
// the same organization is a conflict.
func (s *Service) UpdateRole(ctx context.Context, roleID, orgID string, upd RoleUpdate) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	orgID = strings.TrimSpace(orgID)
	if roleID == "" || orgID == "" {
		return Role{}, fmt.Errorf("%w: role_id and organization_id are required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.UpdateRole(ctx, roleID, orgID, upd)
}

// DeleteRole removes a role. Deletion is blocked while any user still holds
// the role; there is no cascading force-delete path.
func (s *Service) DeleteRole(ctx context.Context, roleID, orgID string) error {
	roleID = strings.TrimSpace(roleID)
	orgID = strings.TrimSpace(orgID)
	if roleID == "" || orgID == "" {
		return fmt.Errorf("%w: role_id and organization_id are required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, roleID, orgID)
}

// RolePermissions returns the permissions granted to one role.
func (s *Service) RolePermissions(ctx context.Context, roleID, orgID string) ([]Permission, error) {
	roleID = strings.TrimSpace(roleID)
	orgID = strings.TrimSpace(orgID)
	if roleID == "" || orgID == "" {
		return nil, fmt.Errorf("%w: role_id and organization_id are required", ErrInvalidInput)
	}
	if _, err := s.store.GetRole(ctx, roleID, orgID); err != nil {
		return nil, err
	}
	return s.store.RolePermissions(ctx, roleID)
}

// SetRolePermissions replaces the role's grants with the valid subset of the
// requested ids. Unknown ids are dropped, not errored, so a repeat call with
// the same input is idempotent.
func (s *Service) SetRolePermissions(ctx context.Context, roleID, orgID string, permissionIDs []string) error {
	roleID = strings.TrimSpace(roleID)
	orgID = strings.TrimSpace(orgID)
	if roleID == "" || orgID == "" {
		return fmt.Errorf("%w: role_id and organization_id are required", ErrInvalidInput)
	}
	return s.store.SetRolePermissions(ctx, roleID, orgID, dedupeStrings(permissionIDs))
}

// AssignRole grants a role to a user. Both must resolve inside the same
// organization, and a user can hold a given role only once.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, orgID string) (Assignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	orgID = strings.TrimSpace(orgID)
	if userID == "" || roleID == "" || orgID == "" {
		return Assignment{}, fmt.Errorf("%w: user_id, role_id and organization_id are required", ErrInvalidInput)
	}
	return s.store.AssignRole(ctx, userID, roleID, orgID)
}

// RemoveRole revokes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID, orgID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	orgID = strings.TrimSpace(orgID)
	if userID == "" || roleID == "" || orgID == "" {
		return fmt.Errorf("%w: user_id, role_id and organization_id are required", ErrInvalidInput)
	}
	return s.store.RemoveAssignment(ctx, userID, roleID, orgID)
}

// RolesForUser returns every role the user holds in the organization.
func (s *Service) RolesForUser(ctx context.Context, userID, orgID string) ([]Role, error) {
	userID = strings.TrimSpace(userID)
	orgID = strings.TrimSpace(orgID)
	if userID == "" || orgID == "" {
		return nil, fmt.Errorf("%w: user_id and organization_id are required", ErrInvalidInput)
	}
	return s.store.RolesForUser(ctx, userID, orgID)
}

// PermissionsForUser computes the user's effective permission set: the
// deduplicated union across every role the user holds in the organization.
// A user with no roles has an empty set, not an error.
func (s *Service) PermissionsForUser(ctx context.Context, userID, orgID string) ([]Permission, error) {
	userID = strings.TrimSpace(userID)
	orgID = strings.TrimSpace(orgID)
	if userID == "" || orgID == "" {
		return nil, fmt.Errorf("%w: user_id and organization_id are required", ErrInvalidInput)
	}
	return s.store.PermissionsForUser(ctx, userID, orgID)
}

// HasPermission reports whether any of the user's roles grants the capability.
func (s *Service) HasPermission(ctx context.Context, userID, orgID, resource, action string) (bool, error) {
	userID = strings.TrimSpace(userID)
	orgID = strings.TrimSpace(orgID)
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if userID == "" || orgID == "" || resource == "" || action == "" {
		return false, fmt.Errorf("%w: user_id, organization_id, resource and action are required", ErrInvalidInput)
	}
	return s.store.HasPermission(ctx, userID, orgID, resource, action)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
