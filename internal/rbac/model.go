package rbac

// Snapshot is the principal state the permission model evaluates.
type Snapshot struct {
	Role   Role
	Grid   Grid
	Active bool
}

// Allows decides whether the principal may exercise c. Inactive principals are
// denied, super principals are allowed, everyone else gets exactly the stored
// grant. Actions do not imply one another.
func Allows(p Snapshot, c Capability) bool {
	if !p.Active || !c.Valid() {
		return false
	}
	if p.Role == RoleSuper {
		return true
	}
	return p.Grid.Has(c)
}

// AllowsNamed is Allows for a free-form module/action pair. Pairs outside the
// catalog deny.
func AllowsNamed(p Snapshot, module, action string) bool {
	c, ok := ParseCapability(module, action)
	if !ok {
		return false
	}
	return Allows(p, c)
}

// IsSuper reports whether p is an active super principal.
func IsSuper(p Snapshot) bool {
	return p.Active && p.Role == RoleSuper
}

// Effective returns the grid p effectively holds.
func Effective(p Snapshot) Grid {
	switch {
	case !p.Active:
		return Grid{}
	case p.Role == RoleSuper:
		return FullGrid()
	default:
		return p.Grid
	}
}
