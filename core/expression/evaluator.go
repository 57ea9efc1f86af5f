package expression

import (
	"math"

	"costrules/internal/errors"
)

var precedence = map[TokenType]int{
	TokenPlus:     1,
	TokenMinus:    1,
	TokenMultiply: 2,
	TokenDivide:   2,
	TokenNegate:   3,
}

// functions outrank every arithmetic operator when the stack is compared
const functionPrecedence = 4

func rank(t Token) int {
	if t.isFunction() {
		return functionPrecedence
	}
	return precedence[t.Type]
}

// ToRPN converts infix tokens to reverse Polish notation with the
// shunting-yard algorithm.
func ToRPN(tokens []Token) ([]Token, error) {
	var (
		output []Token
		stack  []Token
	)

	pop := func() Token {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top
	}

	for _, tok := range tokens {
		switch {
		case tok.Type == TokenNumber:
			output = append(output, tok)

		case tok.isFunction(), tok.Type == TokenLParen:
			stack = append(stack, tok)

		case tok.Type == TokenComma:
			for len(stack) > 0 && stack[len(stack)-1].Type != TokenLParen {
				output = append(output, pop())
			}
			if len(stack) == 0 {
				return nil, errors.Syntax("argument separator outside of a function call")
			}

		case tok.Type == TokenRParen:
			for len(stack) > 0 && stack[len(stack)-1].Type != TokenLParen {
				output = append(output, pop())
			}
			if len(stack) == 0 {
				return nil, errors.Syntax("unbalanced parenthesis: ')' without matching '('")
			}
			pop()
			if len(stack) > 0 && stack[len(stack)-1].isFunction() {
				output = append(output, pop())
			}

		case tok.isOperator():
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.Type == TokenLParen {
					break
				}
				// negation is right-associative, the binary operators are left-associative
				if tok.Type == TokenNegate && rank(top) <= rank(tok) {
					break
				}
				if rank(top) < rank(tok) {
					break
				}
				output = append(output, pop())
			}
			stack = append(stack, tok)
		}
	}

	for len(stack) > 0 {
		top := pop()
		if top.Type == TokenLParen {
			return nil, errors.Syntax("unbalanced parenthesis: '(' is never closed")
		}
		output = append(output, top)
	}

	return output, nil
}

// EvaluateRPN reduces an RPN sequence to a single value.
func EvaluateRPN(rpn []Token) (float64, error) {
	stack := make([]float64, 0, len(rpn))

	for _, tok := range rpn {
		if tok.Type == TokenNumber {
			stack = append(stack, tok.Value)
			continue
		}

		if tok.Type == TokenNegate {
			if len(stack) < 1 {
				return 0, errors.Syntaxf("missing operand for %s", tok)
			}
			stack[len(stack)-1] = -stack[len(stack)-1]
			continue
		}

		if len(stack) < 2 {
			return 0, errors.Syntaxf("missing operand for %s", tok)
		}
		y := stack[len(stack)-1]
		x := stack[len(stack)-2]
		stack = stack[:len(stack)-2]

		var v float64
		switch tok.Type {
		case TokenPlus:
			v = x + y
		case TokenMinus:
			v = x - y
		case TokenMultiply:
			v = x * y
		case TokenDivide:
			v = x / y
		case TokenMin:
			v = math.Min(x, y)
		case TokenMax:
			v = math.Max(x, y)
		default:
			return 0, errors.Syntaxf("unexpected %s in expression", tok)
		}
		stack = append(stack, v)
	}

	if len(stack) != 1 {
		return 0, errors.Syntaxf("expression reduces to %d values, expected 1", len(stack))
	}
	return stack[0], nil
}

// Evaluate tokenizes, parses and evaluates expr. Division by zero is not
// trapped: it yields NaN or ±Inf like any float64 division.
func Evaluate(expr string) (float64, error) {
	tokens, err := Tokenize(expr)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, errors.Syntax("empty expression")
	}

	rpn, err := ToRPN(tokens)
	if err != nil {
		return 0, err
	}

	v, err := EvaluateRPN(rpn)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			return 0, e.WithContext("expression", expr).WithContext("rpn", formatTokens(rpn))
		}
		return 0, err
	}
	return v, nil
}
