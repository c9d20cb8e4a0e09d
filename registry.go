package accesskit

import (
	"fmt"
)

// Seed describes roles, resources and rules that must exist at startup.
// It is applied with Service.EnsureBootstrap and should be treated as
// immutable once built.
type Seed struct {
	roles     []SeedEntry
	resources []SeedEntry
	grants    []SeedGrant
}

// SeedEntry is a named role or resource with its description.
type SeedEntry struct {
	Name        string
	Description string
}

// SeedGrant is a rule to create for (Role, Resource) when none exists.
type SeedGrant struct {
	Role        string
	Resource    string
	Permissions []Permission
}

// NewSeed creates an empty seed.
func NewSeed() *Seed {
	return &Seed{}
}

// Role declares a role.
//
// Example:
//
//	seed := accesskit.NewSeed().
//	    Role("admin", "System administrator").
//	    Resource("orders", "Orders").
//	    Grant("admin", "orders", accesskit.AllPermissions...)
func (s *Seed) Role(name, description string) *Seed {
	s.roles = append(s.roles, SeedEntry{Name: name, Description: description})
	return s
}

// Resource declares a resource.
func (s *Seed) Resource(name, description string) *Seed {
	s.resources = append(s.resources, SeedEntry{Name: name, Description: description})
	return s
}

// Grant declares a rule giving role the listed flags on resource.
func (s *Seed) Grant(role, resource string, perms ...Permission) *Seed {
	s.grants = append(s.grants, SeedGrant{Role: role, Resource: resource, Permissions: perms})
	return s
}

// GrantAll declares a rule with all seven flags set.
func (s *Seed) GrantAll(role, resource string) *Seed {
	return s.Grant(role, resource, AllPermissions...)
}

// Roles returns the declared roles.
func (s *Seed) Roles() []SeedEntry {
	return append([]SeedEntry(nil), s.roles...)
}

// Resources returns the declared resources.
func (s *Seed) Resources() []SeedEntry {
	return append([]SeedEntry(nil), s.resources...)
}

// Grants returns the declared rules.
func (s *Seed) Grants() []SeedGrant {
	return append([]SeedGrant(nil), s.grants...)
}

// Validate checks that names are non-empty and unique and that every grant
// references a declared role and resource.
func (s *Seed) Validate() error {
	roles := make(map[string]bool, len(s.roles))
	for _, r := range s.roles {
		if r.Name == "" {
			return NewError(ErrInvalidOperation, "seed role without name")
		}
		if roles[r.Name] {
			return NewError(ErrConflict, fmt.Sprintf("seed role %q declared twice", r.Name)).WithRole(r.Name)
		}
		roles[r.Name] = true
	}
	resources := make(map[string]bool, len(s.resources))
	for _, r := range s.resources {
		if r.Name == "" {
			return NewError(ErrInvalidOperation, "seed resource without name")
		}
		if resources[r.Name] {
			return NewError(ErrConflict, fmt.Sprintf("seed resource %q declared twice", r.Name)).WithResource(r.Name)
		}
		resources[r.Name] = true
	}
	for _, g := range s.grants {
		if !roles[g.Role] {
			return NewError(ErrNotFound, fmt.Sprintf("grant references undeclared role %q", g.Role)).WithRole(g.Role)
		}
		if !resources[g.Resource] {
			return NewError(ErrNotFound, fmt.Sprintf("grant references undeclared resource %q", g.Resource)).WithResource(g.Resource)
		}
	}
	return nil
}

// Default seed names.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	ResourceUsers    = "users"
	ResourceProducts = "products"
	ResourceOrders   = "orders"
)

// DefaultSeed returns the state every deployment starts from: roles admin
// and user, resources users, products, orders and access_rules, and full
// rights for admin on users and access_rules.
func DefaultSeed() *Seed {
	return NewSeed().
		Role(RoleAdmin, "System administrator").
		Role(RoleUser, "Regular user").
		Resource(ResourceUsers, "User management").
		Resource(ResourceProducts, "Product management").
		Resource(ResourceOrders, "Order management").
		Resource(AccessRulesResource, "Access rules management").
		GrantAll(RoleAdmin, ResourceUsers).
		GrantAll(RoleAdmin, AccessRulesResource)
}
