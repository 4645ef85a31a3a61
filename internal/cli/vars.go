package cli

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"gopkg.in/yaml.v3"
)

// varPattern matches ${name}.
var varPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// UndefinedVariableError lists the ${name} references a script made
// without defining them.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// expander substitutes script variables into step fields.
type expander struct {
	vars    map[string]any
	missing map[string]struct{}
}

// Expand substitutes ${name} references in node names, types, links and
// parameters. overrides take precedence over the script's vars section. A
// parameter that is exactly one reference takes the variable's value with
// its type, so "${n}" can stand for a number.
func (s *Script) Expand(overrides map[string]string) error {
	vars := maps.Clone(s.Vars)
	if vars == nil {
		vars = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		vars[k] = scalar(v)
	}
	x := &expander{vars: vars, missing: make(map[string]struct{})}

	s.Tree = x.str(s.Tree)
	for i := range s.Steps {
		x.notification(&s.Steps[i].Notification)
	}
	if len(x.missing) > 0 {
		return &UndefinedVariableError{Names: slices.Sorted(maps.Keys(x.missing))}
	}
	return nil
}

// scalar decodes a command line value the way YAML would, so --var n=3
// gives a number. Anything but a plain scalar stays a string.
func scalar(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case int, float64, bool:
		return v
	default:
		return s
	}
}

func (x *expander) notification(n *event.Notification) {
	n.Tree = x.str(n.Tree)
	n.NodeType = x.str(n.NodeType)
	n.NodeName = x.str(n.NodeName)
	n.SourceName = x.str(n.SourceName)
	if n.Link != nil {
		l := x.link(*n.Link)
		n.Link = &l
	}
	for i, l := range n.Links {
		n.Links[i] = x.link(l)
	}
	if n.Params != nil {
		n.Params = x.params(n.Params)
	}
}

func (x *expander) link(l event.LinkSpec) event.LinkSpec {
	return event.LinkSpec{
		FromNode:   x.str(l.FromNode),
		FromSocket: x.str(l.FromSocket),
		ToNode:     x.str(l.ToNode),
		ToSocket:   x.str(l.ToSocket),
	}
}

func (x *expander) params(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = x.value(v)
	}
	return out
}

func (x *expander) value(v any) any {
	switch val := v.(type) {
	case string:
		if m := varPattern.FindStringSubmatch(val); m != nil && m[0] == val {
			if raw, ok := x.vars[m[1]]; ok {
				return raw
			}
		}
		return x.str(val)
	case map[string]any:
		return x.params(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = x.value(e)
		}
		return out
	default:
		return v
	}
}

func (x *expander) str(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := x.vars[name]; ok {
			return fmt.Sprint(v)
		}
		x.missing[name] = struct{}{}
		return match
	})
}
