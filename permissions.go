package accesskit

import (
	"strings"
)

// Operation is an action a principal requests on a resource.
type Operation int

const (
	OpRead Operation = iota + 1
	OpCreate
	OpUpdate
	OpDelete
	opEnd
)

// Permission is one of the seven boolean flags stored in a PermissionRule.
type Permission int

const (
	PermRead Permission = iota + 1
	PermReadAll
	PermCreate
	PermUpdate
	PermUpdateAll
	PermDelete
	PermDeleteAll
)

// flagPair maps an operation to its base flag and its "-all" flag.
// Create has no "-all" variant, so its all flag is zero.
type flagPair struct {
	base Permission
	all  Permission
}

// operationFlags is indexed by Operation. The blank declaration below fails
// to compile when an Operation is added without an entry here.
var operationFlags = [...]flagPair{
	OpRead:   {base: PermRead, all: PermReadAll},
	OpCreate: {base: PermCreate},
	OpUpdate: {base: PermUpdate, all: PermUpdateAll},
	OpDelete: {base: PermDelete, all: PermDeleteAll},
}

var _ = [1]struct{}{}[len(operationFlags)-int(opEnd)]

var operationNames = map[Operation]string{
	OpRead:   "read",
	OpCreate: "create",
	OpUpdate: "update",
	OpDelete: "delete",
}

var permissionNames = map[Permission]string{
	PermRead:      "read",
	PermReadAll:   "read_all",
	PermCreate:    "create",
	PermUpdate:    "update",
	PermUpdateAll: "update_all",
	PermDelete:    "delete",
	PermDeleteAll: "delete_all",
}

// AllPermissions lists every flag, in storage column order.
var AllPermissions = []Permission{
	PermRead, PermReadAll, PermCreate, PermUpdate, PermUpdateAll, PermDelete, PermDeleteAll,
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	return op >= OpRead && op < opEnd
}

// String returns the lower case name of the operation.
func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "unknown"
}

// BaseFlag returns the flag that must be set for op to be allowed at all.
func (op Operation) BaseFlag() Permission {
	if !op.Valid() {
		return 0
	}
	return operationFlags[op].base
}

// AllFlag returns the flag that allows op on any instance, or zero for
// operations that are never object scoped (create).
func (op Operation) AllFlag() Permission {
	if !op.Valid() {
		return 0
	}
	return operationFlags[op].all
}

// String returns the lower case name of the flag.
func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParseOperation converts a name such as "update" into an Operation.
func ParseOperation(name string) (Operation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for op, n := range operationNames {
		if n == name {
			return op, nil
		}
	}
	return 0, NewError(ErrInvalidOperation, "unknown operation "+name)
}

// ParsePermission converts a flag name into a Permission.
// Both "update_all" and the column style "update_all_permission" are accepted.
func ParsePermission(name string) (Permission, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, "_permission")
	for p, n := range permissionNames {
		if n == name {
			return p, nil
		}
	}
	return 0, NewError(ErrInvalidOperation, "unknown permission "+name)
}

// ParseOperationFromMethod maps an HTTP method onto an Operation.
func ParseOperationFromMethod(method string) (Operation, bool) {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return OpRead, true
	case "POST":
		return OpCreate, true
	case "PUT", "PATCH":
		return OpUpdate, true
	case "DELETE":
		return OpDelete, true
	}
	return 0, false
}
