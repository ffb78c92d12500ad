package rbac

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Grid is the fixed-shape set of capability grants of one principal.
// The zero value grants nothing.
type Grid struct {
	grants [capabilityCount]bool
}

// NewGrid returns a grid granting exactly the given capabilities.
func NewGrid(caps ...Capability) Grid {
	var g Grid
	for _, c := range caps {
		g.Set(c, true)
	}
	return g
}

// FullGrid grants every catalog capability.
func FullGrid() Grid {
	var g Grid
	for i := range g.grants {
		g.grants[i] = true
	}
	return g
}

// Has reports whether c is granted. Capabilities outside the catalog are never granted.
func (g Grid) Has(c Capability) bool {
	return c.Valid() && g.grants[c]
}

// Set grants or revokes c. Capabilities outside the catalog are ignored.
func (g *Grid) Set(c Capability, granted bool) {
	if c.Valid() {
		g.grants[c] = granted
	}
}

// Granted lists granted capabilities in catalog order.
func (g Grid) Granted() []Capability {
	var out []Capability
	for i, ok := range g.grants {
		if ok {
			out = append(out, Capability(i))
		}
	}
	return out
}

// IsEmpty reports whether nothing is granted.
func (g Grid) IsEmpty() bool {
	return len(g.Granted()) == 0
}

// Map renders the grid as the nested module/action map used on the wire and in storage.
// Every catalog pair is present.
func (g Grid) Map() map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(Modules()))
	for i, e := range catalog {
		m := string(e.module)
		if out[m] == nil {
			out[m] = make(map[string]bool)
		}
		out[m][string(e.action)] = g.grants[i]
	}
	return out
}

// GridFromMap builds a grid from a nested module/action map. Pairs outside the
// catalog are dropped.
func GridFromMap(m map[string]map[string]bool) Grid {
	var g Grid
	for module, actions := range m {
		for action, granted := range actions {
			if c, ok := ParseCapability(module, action); ok {
				g.Set(c, granted)
			}
		}
	}
	return g
}

// MarshalJSON encodes the grid as {"module":{"action":bool}}.
func (g Grid) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Map())
}

// UnmarshalJSON decodes a nested module/action map. null decodes to the empty
// grid; entries that are not booleans or not in the catalog are ignored.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("rbac: decode permission grid: %w", err)
	}
	next := Grid{}
	for module, actions := range raw {
		for action, value := range actions {
			c, ok := ParseCapability(module, action)
			if !ok {
				continue
			}
			var granted bool
			if err := json.Unmarshal(value, &granted); err != nil {
				continue
			}
			next.Set(c, granted)
		}
	}
	*g = next
	return nil
}

// Scan implements sql.Scanner for jsonb columns.
func (g *Grid) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*g = Grid{}
		return nil
	case []byte:
		if len(v) == 0 {
			*g = Grid{}
			return nil
		}
		return g.UnmarshalJSON(v)
	case string:
		return g.Scan([]byte(v))
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return g.UnmarshalJSON(data)
	default:
		return fmt.Errorf("rbac: cannot scan %T into Grid", src)
	}
}

// Value implements driver.Valuer.
func (g Grid) Value() (driver.Value, error) {
	data, err := g.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
