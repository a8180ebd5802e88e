package worth

import (
	"fmt"
	"strconv"
	"strings"
)

// Target selects which entity an external source spec is evaluated against.
type Target string

const (
	TargetPlayer Target = "PLAYER"
	TargetGroup  Target = "GROUP"
)

// Spec is a parsed external source entry of the form
// "TYPE;multiplier;expression". The expression may reference {name}.
type Spec struct {
	Target     Target
	Multiplier float64
	Expression string
}

func ParseSpec(raw string) (Spec, error) {
	parts := strings.SplitN(raw, ";", 3)
	if len(parts) != 3 {
		return Spec{}, fmt.Errorf("%w: %q", ErrMalformedSpec, raw)
	}
	target := Target(strings.ToUpper(strings.TrimSpace(parts[0])))
	if target != TargetPlayer && target != TargetGroup {
		return Spec{}, fmt.Errorf("%w: unknown type %q", ErrMalformedSpec, parts[0])
	}
	mult, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: multiplier %q", ErrMalformedSpec, parts[1])
	}
	expr := strings.TrimSpace(parts[2])
	if expr == "" {
		return Spec{}, fmt.Errorf("%w: empty expression", ErrMalformedSpec)
	}
	return Spec{Target: target, Multiplier: mult, Expression: expr}, nil
}

// Expand substitutes {name} in the expression.
func (s Spec) Expand(name string) string {
	return strings.ReplaceAll(s.Expression, "{name}", name)
}
