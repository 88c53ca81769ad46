package auth

// User is the authenticated console operator taken from the access token.
// Name is the actor written to the audit log.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.HasRole("admin")
}
