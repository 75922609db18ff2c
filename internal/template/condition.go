package template

import (
	"strings"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
)

// Condition grammar:
//
//	expr  := cmp ( ("and"|"or") cmp )*
//	cmp   := value ("=="|"!=") value | boolean-literal
//	value := template | quoted-literal
//
// Evaluation is strictly left-to-right with no operator precedence beyond
// written order and no parentheses. Mixed and/or chains fold in the order
// written: "a or b and c" means "(a or b) and c". This is a deliberate
// simplicity trade-off; recipes needing grouping should split into
// multiple conditional steps.
//
// Conditions are evaluated eagerly: every comparison is resolved before
// the boolean fold, so an undefined variable anywhere in the expression
// fails the step even where short-circuiting would have skipped it.

type tokenKind int

const (
	tokValue tokenKind = iota
	tokOp              // == or !=
	tokAnd
	tokOr
)

type token struct {
	kind tokenKind
	text string
	// quoted marks string literals, which are taken verbatim rather
	// than resolved as templates.
	quoted bool
}

// EvalCondition parses and evaluates a condition expression.
// An empty condition is true. Undefined variables and syntax errors are
// configuration errors that fail the step regardless of its on_error.
func (r *Resolver) EvalCondition(cond string) (bool, error) {
	if strings.TrimSpace(cond) == "" {
		return true, nil
	}

	tokens, err := lexCondition(cond)
	if err != nil {
		return false, err
	}

	// Parse into comparisons separated by connectors.
	var cmps []bool
	var conns []tokenKind

	i := 0
	for {
		val, n, err := r.parseComparison(cond, tokens[i:])
		if err != nil {
			return false, err
		}
		cmps = append(cmps, val)
		i += n

		if i == len(tokens) {
			break
		}
		if tokens[i].kind != tokAnd && tokens[i].kind != tokOr {
			return false, recerr.MalformedCondition(cond, "expected 'and' or 'or' between comparisons")
		}
		conns = append(conns, tokens[i].kind)
		i++
		if i == len(tokens) {
			return false, recerr.MalformedCondition(cond, "expression ends with a dangling connector")
		}
	}

	// Strict left-to-right fold, no precedence.
	result := cmps[0]
	for j, conn := range conns {
		if conn == tokAnd {
			result = result && cmps[j+1]
		} else {
			result = result || cmps[j+1]
		}
	}
	return result, nil
}

// parseComparison consumes one comparison (or bare boolean) from tokens
// and returns its eagerly evaluated value and the number of tokens used.
func (r *Resolver) parseComparison(cond string, tokens []token) (bool, int, error) {
	if len(tokens) == 0 || tokens[0].kind != tokValue {
		return false, 0, recerr.MalformedCondition(cond, "expected a value")
	}

	left, err := r.resolveValue(tokens[0])
	if err != nil {
		return false, 0, err
	}

	// Bare boolean literal with no comparison operator
	if len(tokens) == 1 || tokens[1].kind != tokOp {
		switch strings.ToLower(left) {
		case "true":
			return true, 1, nil
		case "false":
			return false, 1, nil
		}
		return false, 0, recerr.MalformedCondition(cond, "bare value must be 'true' or 'false'")
	}

	if len(tokens) < 3 || tokens[2].kind != tokValue {
		return false, 0, recerr.MalformedCondition(cond, "comparison missing right-hand value")
	}

	right, err := r.resolveValue(tokens[2])
	if err != nil {
		return false, 0, err
	}

	if tokens[1].text == "==" {
		return left == right, 3, nil
	}
	return left != right, 3, nil
}

// resolveValue renders a value token to its comparison string.
// Quoted literals are verbatim; anything else goes through template
// resolution, so undefined variables surface here.
func (r *Resolver) resolveValue(tok token) (string, error) {
	if tok.quoted {
		return tok.text, nil
	}
	return r.Resolve(tok.text)
}

// lexCondition splits a condition into value, operator, and connector tokens.
func lexCondition(cond string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(cond)

	for i < n {
		switch {
		case cond[i] == ' ' || cond[i] == '\t':
			i++

		case cond[i] == '\'' || cond[i] == '"':
			quote := cond[i]
			end := strings.IndexByte(cond[i+1:], quote)
			if end < 0 {
				return nil, recerr.MalformedCondition(cond, "unterminated string literal")
			}
			tokens = append(tokens, token{kind: tokValue, text: cond[i+1 : i+1+end], quoted: true})
			i += end + 2

		case strings.HasPrefix(cond[i:], "==") || strings.HasPrefix(cond[i:], "!="):
			tokens = append(tokens, token{kind: tokOp, text: cond[i : i+2]})
			i += 2

		default:
			// Bare word or template; runs until whitespace or an
			// operator, keeping {{...}} contents intact.
			start := i
			for i < n {
				if cond[i] == ' ' || cond[i] == '\t' {
					break
				}
				if strings.HasPrefix(cond[i:], "==") || strings.HasPrefix(cond[i:], "!=") {
					break
				}
				if strings.HasPrefix(cond[i:], "{{") {
					end := strings.Index(cond[i:], "}}")
					if end < 0 {
						return nil, recerr.MalformedCondition(cond, "unterminated {{ reference")
					}
					i += end + 2
					continue
				}
				i++
			}
			word := cond[start:i]
			switch word {
			case "and":
				tokens = append(tokens, token{kind: tokAnd, text: word})
			case "or":
				tokens = append(tokens, token{kind: tokOr, text: word})
			default:
				tokens = append(tokens, token{kind: tokValue, text: word})
			}
		}
	}

	if len(tokens) == 0 {
		return nil, recerr.MalformedCondition(cond, "empty expression")
	}
	return tokens, nil
}
