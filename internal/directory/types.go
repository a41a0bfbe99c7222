package directory

import "time"

// User is an organization member. DeletedAt marks a soft-deleted account;
// read paths exclude those rows unless includeDeleted is requested.
type User struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organization_id"`
	OrganizationName string     `json:"organization_name,omitempty"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Role             string     `json:"role,omitempty"`
	Department       string     `json:"department,omitempty"`
	Location         string     `json:"location,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastActive       *time.Time `json:"last_active,omitempty"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// DisplayName joins the name fields the way outbound mail and DTOs show them.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

// Filter narrows and orders a user listing. IncludeDeleted is an explicit
// switch on every read path; there is no ambient soft-delete filter.
type Filter struct {
	Search         string
	Role           string
	Department     string
	Active         *bool
	IncludeDeleted bool
	Page           int
	PageSize       int
	SortBy         string
	SortDesc       bool
}

// Page is one page of a filtered listing with pagination metadata.
type Page struct {
	Users           []User `json:"users"`
	TotalCount      int    `json:"total_count"`
	PageNumber      int    `json:"page_number"`
	PageSize        int    `json:"page_size"`
	TotalPages      int    `json:"total_pages"`
	HasPreviousPage bool   `json:"has_previous_page"`
	HasNextPage     bool   `json:"has_next_page"`
}

// Update is a partial profile update; nil fields are left untouched.
type Update struct {
	FirstName  *string
	LastName   *string
	Email      *string
	Role       *string
	Department *string
	Location   *string
	Phone      *string
	AvatarURL  *string
}
