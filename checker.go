package accesskit

import "context"

// Decision is the outcome of an access check. Deny is not an error.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// Allowed reports whether d is Allow.
func (d Decision) Allowed() bool {
	return d == Allow
}

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// decisionOptions holds the optional inputs of a check.
type decisionOptions struct {
	owner    string
	hasOwner bool
}

// DecisionOption configures a single permission check.
type DecisionOption func(*decisionOptions)

// WithOwner supplies the owner of the target object, turning the check into
// an object scoped one.
func WithOwner(ownerID string) DecisionOption {
	return func(o *decisionOptions) {
		o.owner = ownerID
		o.hasOwner = true
	}
}

func collectDecisionOptions(opts []DecisionOption) decisionOptions {
	var o decisionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Evaluate decides op for principalID against rule. A nil rule denies.
// When owner is nil the check is collection level and the base flag alone
// decides. Otherwise the "-all" flag allows any owner and the base flag
// allows only the principal's own objects. Create never looks at the owner.
//
// Example:
//
//	owner := order.OwnerID
//	if accesskit.Evaluate(rule, caller.ID, accesskit.OpUpdate, &owner).Allowed() {
//	    // caller may update this order
//	}
func Evaluate(rule *PermissionRule, principalID string, op Operation, owner *string) Decision {
	if rule == nil || !op.Valid() {
		return Deny
	}
	if !rule.Has(op.BaseFlag()) {
		return Deny
	}
	all := op.AllFlag()
	if owner == nil || all == 0 {
		return Allow
	}
	if rule.Has(all) {
		return Allow
	}
	if *owner == principalID {
		return Allow
	}
	return Deny
}

// Checker provides permission checking for a single authenticated principal.
// It is created by the middleware and stored in context for use in handlers.
type Checker struct {
	auth    *AuthContext
	service *Service
}

// NewChecker creates a new Checker for an authenticated principal.
func NewChecker(auth *AuthContext, service *Service) *Checker {
	return &Checker{auth: auth, service: service}
}

// PrincipalID returns the principal ID this checker is for.
func (c *Checker) PrincipalID() string {
	return c.auth.PrincipalID()
}

// Auth returns the resolved authentication context.
func (c *Checker) Auth() *AuthContext {
	return c.auth
}

// Decide checks op on resource for the principal.
//
// Example:
//
//	d, err := checker.Decide(ctx, "orders", accesskit.OpDelete, accesskit.WithOwner(ownerID))
func (c *Checker) Decide(ctx context.Context, resource string, op Operation, opts ...DecisionOption) (Decision, error) {
	var p *Principal
	if c.auth != nil {
		p = c.auth.Principal
	}
	return c.service.CheckPermission(ctx, p, resource, op, opts...)
}

// Can is Decide collapsed to a bool. Infrastructure failures deny.
//
// Example:
//
//	if checker.Can(ctx, "products", accesskit.OpCreate) {
//	    // caller may create products
//	}
func (c *Checker) Can(ctx context.Context, resource string, op Operation, opts ...DecisionOption) bool {
	d, err := c.Decide(ctx, resource, op, opts...)
	return err == nil && d.Allowed()
}

// CanAny reports whether at least one of ops is allowed on resource.
func (c *Checker) CanAny(ctx context.Context, resource string, ops []Operation, opts ...DecisionOption) bool {
	for _, op := range ops {
		if c.Can(ctx, resource, op, opts...) {
			return true
		}
	}
	return false
}

// CanAll reports whether every op is allowed on resource.
func (c *Checker) CanAll(ctx context.Context, resource string, ops []Operation, opts ...DecisionOption) bool {
	for _, op := range ops {
		if !c.Can(ctx, resource, op, opts...) {
			return false
		}
	}
	return true
}

// Scope reports whether the principal may act on every instance of resource
// ("all") or only on its own ("own"). It returns "" when op is denied outright.
// Handlers use it to decide whether to filter listings by owner.
func (c *Checker) Scope(ctx context.Context, resource string, op Operation) string {
	if !c.Can(ctx, resource, op) {
		return ""
	}
	if op.AllFlag() == 0 {
		return ScopeOwn
	}
	principal := c.auth.Principal
	rule, err := c.service.lookupRule(ctx, *principal.RoleID, resource)
	if err != nil || !rule.Has(op.AllFlag()) {
		return ScopeOwn
	}
	return ScopeAll
}

// Listing scopes returned by Checker.Scope.
const (
	ScopeAll = "all"
	ScopeOwn = "own"
)
