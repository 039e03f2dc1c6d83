// Package actor provides request-scoped caller identity.
//
// Identity tokens are validated upstream (API gateway / service mesh); this
// service only receives the decoded claims. Domain code reads the actor from
// context instead of any request object, so the engine stays transport-agnostic.
package actor

import (
	"context"
	"strings"
)

// Actor contains the trusted caller identity forwarded by the gateway.
type Actor struct {
	Subject  string
	Email    string
	Username string
	FullName string
	Roles    []Role
}

// Identifier returns the best available identity string for audit records.
// Prefers email, falls back to the token subject.
func (a *Actor) Identifier() string {
	if a == nil {
		return ""
	}
	if a.Email != "" {
		return a.Email
	}
	return a.Subject
}

// HasRole checks membership with exact matching.
func (a *Actor) HasRole(role Role) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks whether the actor holds at least one of the given roles.
func (a *Actor) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

type actorKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns Actor from context, or nil when unauthenticated.
func FromContext(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// Identity returns the actor identifier from context or empty string.
func Identity(ctx context.Context) string {
	return FromContext(ctx).Identifier()
}

// Role is an enumerated caller role. Authorization uses exact-match lookup
// against this set; free-form substring checks against raw claim strings are
// deliberately not supported (a role named "administrator" must not satisfy
// a check for "admin" by containment).
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleWarehouseStaff Role = "warehouse_staff"
	RoleOrderService   Role = "order_service"
	RoleViewer         Role = "viewer"
)

// roleAliases maps known identity-provider group names onto canonical roles.
// Lookup is by lowercased exact string; unknown claim values are dropped.
var roleAliases = map[string]Role{
	"admin":           RoleAdmin,
	"administrator":   RoleAdmin,
	"inventory_admin": RoleAdmin,
	"warehouse_staff": RoleWarehouseStaff,
	"warehouse":       RoleWarehouseStaff,
	"staff":           RoleWarehouseStaff,
	"order_service":   RoleOrderService,
	"orders":          RoleOrderService,
	"viewer":          RoleViewer,
	"readonly":        RoleViewer,
}

// MapRoles resolves raw role/group claims to the canonical role set.
// Unrecognized values are ignored rather than guessed at.
func MapRoles(claims []string) []Role {
	seen := make(map[Role]bool, len(claims))
	roles := make([]Role, 0, len(claims))
	for _, c := range claims {
		role, ok := roleAliases[strings.ToLower(strings.TrimSpace(c))]
		if !ok || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles
}
