package rbac

// PermissionChange is one grant that differs between two grids.
type PermissionChange struct {
	Module   Module `json:"module"`
	Action   Action `json:"action"`
	OldValue bool   `json:"oldValue"`
	NewValue bool   `json:"newValue"`
}

// Diff lists, in catalog order, every capability whose grant differs.
func Diff(before, after Grid) []PermissionChange {
	var changes []PermissionChange
	for _, c := range Capabilities() {
		if before.Has(c) != after.Has(c) {
			changes = append(changes, PermissionChange{
				Module:   c.Module(),
				Action:   c.Action(),
				OldValue: before.Has(c),
				NewValue: after.Has(c),
			})
		}
	}
	return changes
}
