package users

// ProfileFields is the field projection requested from the identity service
// when the profile of the signed in user is fetched.
var ProfileFields = []string{"id", "email", "first_name", "last_name", "role.*"}

// Role is the named permission tier attached to a user.
type Role struct {
	ID          string `json:"id"`                     // Role identifier assigned by the identity service
	Name        string `json:"name"`                   // Display name, e.g. "Admin", "Operator", "Viewer"
	AdminAccess *bool  `json:"admin_access,omitempty"` // Administrative flag, nil means not set
}

// HasAdminAccess reports whether the administrative flag is explicitly true.
func (r *Role) HasAdminAccess() bool {
	return r != nil && r.AdminAccess != nil && *r.AdminAccess
}

// User is the identity record of the signed in account.
type User struct {
	ID        string `json:"id"`                   // Opaque identifier
	Email     string `json:"email"`                // User's email address
	FirstName string `json:"first_name,omitempty"` // Optional first name
	LastName  string `json:"last_name,omitempty"`  // Optional last name
	Role      *Role  `json:"role,omitempty"`       // Optional role, nil when the account has none
}

// RoleName returns the role name or "" when no role is attached.
func (u *User) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// Roleless reports whether the user has no role or a role without a name.
func (u *User) Roleless() bool {
	return u != nil && (u.Role == nil || u.Role.Name == "")
}

// FullName joins first and last name, falling back to the email address.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Email
}

// Clone returns a deep copy so callers never share the session's record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Role != nil {
		r := *u.Role
		if u.Role.AdminAccess != nil {
			flag := *u.Role.AdminAccess
			r.AdminAccess = &flag
		}
		c.Role = &r
	}
	return &c
}
