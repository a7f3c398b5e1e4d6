package auth

import "github.com/contactbook/apiserver/types"

// Authorize reports ErrForbidden unless identity holds the required role.
// Admins satisfy any role requirement.
func Authorize(identity types.Identity, required types.Role) error {
	if identity.Role == required || identity.Role == types.RoleAdmin {
		return nil
	}
	return ErrForbidden
}
