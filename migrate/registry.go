package migrate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDuplicateID is returned at load time when two units claim the same
	// identifier.
	ErrDuplicateID = errors.New("duplicate migration id")

	// ErrMalformedUnit is returned at load time for units missing an apply
	// action.
	ErrMalformedUnit = errors.New("malformed migration unit")

	// ErrFrozen is returned when a unit is added after the registry has been
	// handed to a runner.
	ErrFrozen = errors.New("registry is frozen")
)

// Registry is the static, totally ordered list of known migration units.
// Units are added during startup; Freeze fixes the order and validates
// uniqueness. After Freeze the registry is immutable.
type Registry struct {
	units  []*Unit
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Add registers a unit. The order of Add calls does not matter; ordering is
// derived from IDs at Freeze time.
func (r *Registry) Add(u *Unit) error {
	if r.frozen {
		return ErrFrozen
	}
	if u.ID == "" || u.Apply == nil {
		return fmt.Errorf("%w: %q", ErrMalformedUnit, u.ID)
	}
	r.units = append(r.units, u)
	return nil
}

// MustAdd is Add for package-level registration where a failure is a
// programming error.
func (r *Registry) MustAdd(u *Unit) {
	if err := r.Add(u); err != nil {
		panic(err)
	}
}

// Freeze sorts the units into their total order and validates the set.
// Calling Freeze twice is a no-op.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	sort.SliceStable(r.units, func(i, j int) bool {
		if c := CompareIDs(r.units[i].ID, r.units[j].ID); c != 0 {
			return c < 0
		}
		return r.units[i].Seq < r.units[j].Seq
	})
	for i := 1; i < len(r.units); i++ {
		if r.units[i].ID == r.units[i-1].ID {
			return fmt.Errorf("%w: %q", ErrDuplicateID, r.units[i].ID)
		}
	}
	r.frozen = true
	return nil
}

// Units returns the ordered unit list. The registry must be frozen.
func (r *Registry) Units() []*Unit {
	if !r.frozen {
		panic("migrate: Units called before Freeze")
	}
	out := make([]*Unit, len(r.units))
	copy(out, r.units)
	return out
}

// Lookup returns the unit with the given id, or nil.
func (r *Registry) Lookup(id string) *Unit {
	for _, u := range r.units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// Len reports the number of registered units.
func (r *Registry) Len() int { return len(r.units) }

// CompareIDs orders two unit identifiers. Numeric prefixes compare as
// integers so that "0010_x" sorts after "0002_y" regardless of prefix
// length; the remainder compares lexicographically.
func CompareIDs(a, b string) int {
	an, arest := splitNumericPrefix(a)
	bn, brest := splitNumericPrefix(b)
	switch {
	case an >= 0 && bn >= 0:
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
		return strings.Compare(arest, brest)
	case an >= 0:
		return -1
	case bn >= 0:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// splitNumericPrefix returns the leading decimal prefix as an int (-1 when
// absent) and the remainder of the id.
func splitNumericPrefix(id string) (int, string) {
	i := 0
	for i < len(id) && id[i] >= '0' && id[i] <= '9' {
		i++
	}
	if i == 0 {
		return -1, id
	}
	n := 0
	for _, c := range id[:i] {
		n = n*10 + int(c-'0')
	}
	return n, id[i:]
}
