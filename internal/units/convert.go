package units

import "fmt"

// MismatchError reports a unit requested for a field of another quantity.
type MismatchError struct {
	Unit     Unit
	Expected Quantity
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("unit %s is a %s unit, expected %s", e.Unit, e.Unit.Quantity(), e.Expected)
}

// Check reports whether u belongs to quantity q.
func Check(u Unit, q Quantity) error {
	if _, ok := unitDefs[u]; !ok || u.Quantity() != q {
		return &MismatchError{Unit: u, Expected: q}
	}
	return nil
}

// AssertQuantity panics when u is not a unit of q. A mismatch means a field
// was wired to the wrong accessor, which is a driver bug and not bad input.
func AssertQuantity(u Unit, q Quantity) {
	if err := Check(u, q); err != nil {
		panic(err)
	}
}

// Convert rescales v from one unit to another of the same quantity.
func Convert(v float64, from, to Unit) float64 {
	if from == to {
		return v
	}
	AssertQuantity(to, from.Quantity())
	src := unitDefs[from]
	dst := unitDefs[to]
	base := v*src.factor + src.offset
	return (base - dst.offset) / dst.factor
}
