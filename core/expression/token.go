// Package expression evaluates the arithmetic formulas attached to
// post-processing rules. A formula is fully substituted before it reaches this
// package: it only ever contains numeric literals, + - * /, parentheses and the
// MIN/MAX functions.
package expression

import (
	"fmt"
	"strconv"
	"strings"

	"costrules/internal/errors"
)

// TokenType represents the type of a token in a formula
type TokenType int

const (
	// TokenNumber is a numeric literal
	TokenNumber TokenType = iota
	// TokenPlus is the + operator
	TokenPlus
	// TokenMinus is the binary - operator
	TokenMinus
	// TokenNegate is a - in prefix position
	TokenNegate
	// TokenMultiply is the * operator
	TokenMultiply
	// TokenDivide is the / operator
	TokenDivide
	// TokenLParen is (
	TokenLParen
	// TokenRParen is )
	TokenRParen
	// TokenComma separates function arguments
	TokenComma
	// TokenMin is the MIN function
	TokenMin
	// TokenMax is the MAX function
	TokenMax
)

// String returns the string representation of a token type
func (tt TokenType) String() string {
	switch tt {
	case TokenNumber:
		return "NUMBER"
	case TokenPlus:
		return "+"
	case TokenMinus:
		return "-"
	case TokenNegate:
		return "NEG"
	case TokenMultiply:
		return "*"
	case TokenDivide:
		return "/"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenComma:
		return ","
	case TokenMin:
		return "MIN"
	case TokenMax:
		return "MAX"
	default:
		return "UNKNOWN"
	}
}

// Token is a single lexical element of a formula
type Token struct {
	Type  TokenType
	Text  string
	Value float64
}

// String returns a representation of the token for error messages
func (t Token) String() string {
	if t.Type == TokenNumber {
		return t.Text
	}
	return t.Type.String()
}

func (t Token) isOperator() bool {
	switch t.Type {
	case TokenPlus, TokenMinus, TokenNegate, TokenMultiply, TokenDivide:
		return true
	}
	return false
}

func (t Token) isFunction() bool {
	return t.Type == TokenMin || t.Type == TokenMax
}

var delimiters = map[byte]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenMultiply,
	'/': TokenDivide,
	'(': TokenLParen,
	')': TokenRParen,
	',': TokenComma,
}

// Tokenize splits a formula on + - * / ( ) , space and tab.
//
// A - that directly follows an E inside a numeric literal is kept as part of
// the exponent, so 1E-5 is a single number. A - in prefix position (at the
// start, or after an operator, an opening parenthesis or a comma) becomes
// TokenNegate.
func Tokenize(expr string) ([]Token, error) {
	var (
		tokens []Token
		word   strings.Builder
	)

	flush := func() error {
		if word.Len() == 0 {
			return nil
		}
		tok, err := classify(word.String())
		if err != nil {
			return err
		}
		tokens = append(tokens, tok)
		word.Reset()
		return nil
	}

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c == ' ' || c == '\t' {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		tt, isDelim := delimiters[c]
		if !isDelim {
			word.WriteByte(c)
			continue
		}

		if c == '-' && inExponent(word.String()) {
			word.WriteByte(c)
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		if tt == TokenMinus && prefixPosition(tokens) {
			tt = TokenNegate
		}
		tokens = append(tokens, Token{Type: tt, Text: string(c)})
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return tokens, nil
}

// inExponent reports whether word is a numeric literal awaiting its exponent sign.
func inExponent(word string) bool {
	if len(word) < 2 {
		return false
	}
	last := word[len(word)-1]
	if last != 'E' && last != 'e' {
		return false
	}
	first := word[0]
	return (first >= '0' && first <= '9') || first == '.'
}

func prefixPosition(tokens []Token) bool {
	if len(tokens) == 0 {
		return true
	}
	prev := tokens[len(tokens)-1]
	return prev.isOperator() || prev.Type == TokenLParen || prev.Type == TokenComma
}

func classify(word string) (Token, error) {
	switch strings.ToUpper(word) {
	case "MIN":
		return Token{Type: TokenMin, Text: word}, nil
	case "MAX":
		return Token{Type: TokenMax, Text: word}, nil
	}

	v, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return Token{}, errors.Syntaxf("malformed token %q", word)
	}
	return Token{Type: TokenNumber, Text: word, Value: v}, nil
}

// formatTokens renders tokens back to text; used in error messages and tests.
func formatTokens(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = fmt.Sprint(t)
	}
	return strings.Join(parts, " ")
}
