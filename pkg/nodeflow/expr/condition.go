package expr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingOperand indicates an operator with nothing on one side,
// or an empty expression.
var ErrMissingOperand = errors.New("missing operand")

// BinaryOp compares two resolved values.
type BinaryOp func(left, right any) bool

// Condition is a parsed boolean expression. It is immutable and can be
// evaluated any number of times against different variable sets.
type Condition struct {
	src  string
	root cond
}

type cond interface {
	eval(vars map[string]any) bool
}

type orCond struct{ left, right cond }

func (c orCond) eval(vars map[string]any) bool { return c.left.eval(vars) || c.right.eval(vars) }

type andCond struct{ left, right cond }

func (c andCond) eval(vars map[string]any) bool { return c.left.eval(vars) && c.right.eval(vars) }

type notCond struct{ inner cond }

func (c notCond) eval(vars map[string]any) bool { return !c.inner.eval(vars) }

type compareCond struct {
	left, right string
	op          BinaryOp
}

func (c compareCond) eval(vars map[string]any) bool {
	return c.op(Resolve(c.left, vars), Resolve(c.right, vars))
}

type truthCond struct{ operand string }

func (c truthCond) eval(vars map[string]any) bool { return IsTruthy(Resolve(c.operand, vars)) }

// comparisons are tried in order; two-character operators precede
// their one-character prefixes.
var comparisons = []struct {
	token string
	op    BinaryOp
}{
	{"==", compareEquals},
	{"!=", compareNotEquals},
	{">=", compareGTE},
	{"<=", compareLTE},
	{">", compareGT},
	{"<", compareLT},
	{" contains ", compareContains},
}

// Compile parses src into a Condition.
//
// Precedence from loosest to tightest: or, and, not / !, comparison.
func Compile(src string) (*Condition, error) {
	root, err := parse(strings.TrimSpace(src))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return &Condition{src: src, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Condition {
	c, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return c
}

func parse(s string) (cond, error) {
	if s == "" {
		return nil, ErrMissingOperand
	}

	if left, right, ok := strings.Cut(s, " or "); ok {
		return parseBinary(left, right, func(l, r cond) cond { return orCond{l, r} })
	}
	if left, right, ok := strings.Cut(s, " and "); ok {
		return parseBinary(left, right, func(l, r cond) cond { return andCond{l, r} })
	}

	if rest, ok := strings.CutPrefix(s, "not "); ok {
		inner, err := parse(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		return notCond{inner}, nil
	}
	if rest, ok := strings.CutPrefix(s, "!"); ok && !strings.HasPrefix(rest, "=") {
		inner, err := parse(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		return notCond{inner}, nil
	}

	for _, c := range comparisons {
		if left, right, ok := strings.Cut(s, c.token); ok {
			left, right = strings.TrimSpace(left), strings.TrimSpace(right)
			if left == "" || right == "" {
				return nil, fmt.Errorf("%w for %q", ErrMissingOperand, strings.TrimSpace(c.token))
			}
			return compareCond{left: left, right: right, op: c.op}, nil
		}
	}

	return truthCond{operand: s}, nil
}

func parseBinary(left, right string, build func(l, r cond) cond) (cond, error) {
	l, err := parse(strings.TrimSpace(left))
	if err != nil {
		return nil, err
	}
	r, err := parse(strings.TrimSpace(right))
	if err != nil {
		return nil, err
	}
	return build(l, r), nil
}

// String returns the source text.
func (c *Condition) String() string {
	return c.src
}

// Eval evaluates the condition against vars.
func (c *Condition) Eval(vars map[string]any) bool {
	return c.root.eval(vars)
}

// Mask evaluates the condition once per element of values. Each evaluation
// sees vars plus "x" bound to the element and "i" bound to its index.
func (c *Condition) Mask(values []any, vars map[string]any) []bool {
	scope := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		scope[k] = v
	}

	mask := make([]bool, len(values))
	for i, v := range values {
		scope["x"] = v
		scope["i"] = i
		mask[i] = c.root.eval(scope)
	}
	return mask
}

// Eval compiles and evaluates src in one step.
func Eval(src string, vars map[string]any) (bool, error) {
	c, err := Compile(src)
	if err != nil {
		return false, err
	}
	return c.Eval(vars), nil
}

func compareEquals(left, right any) bool {
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func compareNotEquals(left, right any) bool {
	return !compareEquals(left, right)
}

func compareLT(left, right any) bool  { return ToFloat64(left) < ToFloat64(right) }
func compareGT(left, right any) bool  { return ToFloat64(left) > ToFloat64(right) }
func compareLTE(left, right any) bool { return ToFloat64(left) <= ToFloat64(right) }
func compareGTE(left, right any) bool { return ToFloat64(left) >= ToFloat64(right) }

func compareContains(left, right any) bool {
	return strings.Contains(fmt.Sprintf("%v", left), fmt.Sprintf("%v", right))
}
