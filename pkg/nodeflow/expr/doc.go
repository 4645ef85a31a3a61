/*
Package expr evaluates small boolean conditions over node data.

Conditions are compiled once and evaluated many times, typically once per
element of a socket's sequence:

	c, err := expr.Compile("x >= lo and x < hi")
	mask := c.Mask(values, map[string]any{"lo": 2, "hi": 5})

# Syntax

	<cond> := <cond> 'or' <cond>
	        | <cond> 'and' <cond>
	        | 'not' <cond> | '!' <cond>
	        | <operand> <op> <operand>
	        | <operand>

	<op>      := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains'
	<operand> := 'string' | "string" | number | true | false | null | identifier

Equality compares the formatted values, ordering compares numerically
(non-numeric operands count as 0) and contains is a substring test. A bare
operand is tested for truthiness.

Identifiers resolve through the variable map; an unknown identifier is
treated as a string literal. Mask binds "x" to the current element and "i"
to its index.
*/
package expr
