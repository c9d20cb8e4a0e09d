// Package accesskit provides authentication, server side sessions and
// role based access control with ownership aware permission rules.
//
// # Core Concepts
//
// Principal: an account identified by email. Principals authenticate with a
// password, hold at most one role and are deactivated instead of deleted.
//
// Session: a server side record of an issued token. A token is only accepted
// while its session exists and has not expired; every accepted request
// slides the expiry forward. Logging out or deactivating deletes sessions,
// which takes effect on the very next request.
//
// Resource: a protected business element such as "orders".
//
// PermissionRule: seven flags granted to one role on one resource:
// read, read_all, create, update, update_all, delete and delete_all.
// There is at most one rule per role and resource, and a missing rule
// denies everything.
//
// # Access Decisions
//
// A check names a resource, an operation and optionally the owner of the
// target object:
//
//   - The base flag of the operation must be set, otherwise the answer is deny.
//   - Without an owner (collection level) the base flag alone allows.
//   - With an owner, the "-all" flag allows any owner and the base flag
//     allows only the principal's own objects.
//   - Create never looks at the owner.
//
// Inactive principals and principals without a role are always denied.
//
// # Basic Usage
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	store := accesskit.NewBunStore(db)
//	store.Migrate(ctx)
//
//	service := accesskit.NewService(store, accesskit.NewTokenIssuer(secret, 0),
//	    accesskit.WithDefaultRole(accesskit.RoleUser),
//	)
//	service.EnsureBootstrap(ctx, accesskit.DefaultSeed())
//
//	p, _ := service.Register(ctx, accesskit.RegisterInput{...})
//	token, _, _ := service.Authenticate(ctx, "a@x.com", "secret")
//
//	auth, err := service.ResolveSession(ctx, token)
//	if service.Can(ctx, auth.Principal, "orders", accesskit.OpUpdate,
//	    accesskit.WithOwner(order.OwnerID)) {
//	    // update the order
//	}
//
// # Middleware Usage
//
//	mw := accesskit.NewMiddleware(service)
//	router.Use(mw.InjectAuditContext(), mw.Authenticate())
//
//	router.With(mw.RequirePermission("products", accesskit.OpCreate, nil)).
//	    Post("/products", createProduct)
//
//	router.With(mw.RequirePermission("orders", accesskit.OpDelete,
//	    accesskit.OwnerFromParam(chi.URLParam, "ownerID"))).
//	    Delete("/orders/{ownerID}", deleteOrder)
//
// # Managing Rules
//
// Roles, resources, rules and role assignments are managed through the
// service. Reads require read on the "access_rules" resource and changes
// require update on it. Every change is written to the audit log with the
// actor and request metadata found in the context.
package accesskit
