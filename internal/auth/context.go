package auth

import "context"

// Principal is the resolved view of a verified access token, attached to the
// request context by the HTTP layer. Authorization-sensitive operations take
// the actor explicitly; the context carry is transport plumbing only.
type Principal struct {
	IdentityID  string
	CompanyID   string
	Email       string
	Role        Role
	Permissions map[Permission]struct{}
}

// NewPrincipal builds a principal from verified claims.
func NewPrincipal(claims *Claims) Principal {
	set := make(map[Permission]struct{}, len(claims.Permissions))
	for _, p := range claims.Permissions {
		set[Permission(p)] = struct{}{}
	}
	return Principal{
		IdentityID:  claims.Subject,
		CompanyID:   claims.CompanyID,
		Email:       claims.Email,
		Role:        Role(claims.Role),
		Permissions: set,
	}
}

// HasPermission reports whether the principal's snapshot grants the permission.
func (p Principal) HasPermission(perm Permission) bool {
	_, ok := p.Permissions[perm]
	return ok
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
