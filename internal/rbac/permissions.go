package rbac

// Permission name constants for the capabilities the API itself gates on.
const (
	PermUsersRead         = "users.read"
	PermUsersCreate       = "users.create"
	PermUsersUpdate       = "users.update"
	PermUsersDelete       = "users.delete"
	PermUsersHardDelete   = "users.hardDelete"
	PermRolesRead         = "roles.read"
	PermRolesManage       = "roles.manage"
	PermInvitationsSend   = "invitations.send"
	PermInvitationsView   = "invitations.view"
	PermInvitationsCancel = "invitations.cancel"
	PermOrgManage         = "organization.manage"
	PermAdminAll          = "admin.all"
)

// DefaultPermissions is the starter catalog seeded on first run. Seeding is
// idempotent: if any permission exists the seed is a no-op.
var DefaultPermissions = []Permission{
	{Resource: "users", Action: "create", Description: "Create new users"},
	{Resource: "users", Action: "read", Description: "View user profiles"},
	{Resource: "users", Action: "update", Description: "Edit user information"},
	{Resource: "users", Action: "delete", Description: "Soft delete users"},
	{Resource: "users", Action: "hardDelete", Description: "Permanently delete users"},

	{Resource: "projects", Action: "create", Description: "Create new projects"},
	{Resource: "projects", Action: "read", Description: "View project details"},
	{Resource: "projects", Action: "update", Description: "Edit project information"},
	{Resource: "projects", Action: "delete", Description: "Delete projects"},

	{Resource: "roles", Action: "create", Description: "Create new roles"},
	{Resource: "roles", Action: "read", Description: "View roles and permissions"},
	{Resource: "roles", Action: "update", Description: "Edit role information"},
	{Resource: "roles", Action: "delete", Description: "Delete roles"},
	{Resource: "roles", Action: "manage", Description: "Full role and permission management"},

	{Resource: "invitations", Action: "send", Description: "Send user invitations"},
	{Resource: "invitations", Action: "cancel", Description: "Cancel pending invitations"},
	{Resource: "invitations", Action: "view", Description: "View organization invitations"},

	{Resource: "organization", Action: "manage", Description: "Manage organization settings"},
	{Resource: "organization", Action: "view", Description: "View organization information"},

	{Resource: "admin", Action: "all", Description: "Full administrative access"},
}
