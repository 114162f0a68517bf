/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenBareword
	TokenInteger
	TokenString
	TokenChar

	TokenEq
	TokenNe
	TokenAllEq
	TokenAllNe
	TokenLt
	TokenLe
	TokenGt
	TokenGe
	TokenContains
	TokenMatches
	TokenIn

	TokenAnd
	TokenOr
	TokenXor
	TokenNot

	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenAmp

	TokenHash
	TokenRange
	TokenLParen
	TokenRParen
	TokenLBracket
	TokenRBracket
	TokenLBrace
	TokenRBrace
	TokenComma
	TokenColon
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "end of input",
	TokenIdent:    "identifier",
	TokenBareword: "literal",
	TokenInteger:  "integer",
	TokenString:   "string",
	TokenChar:     "character constant",
	TokenEq:       "'=='",
	TokenNe:       "'!='",
	TokenAllEq:    "'==='",
	TokenAllNe:    "'!=='",
	TokenLt:       "'<'",
	TokenLe:       "'<='",
	TokenGt:       "'>'",
	TokenGe:       "'>='",
	TokenContains: "'contains'",
	TokenMatches:  "'matches'",
	TokenIn:       "'in'",
	TokenAnd:      "'and'",
	TokenOr:       "'or'",
	TokenXor:      "'xor'",
	TokenNot:      "'not'",
	TokenPlus:     "'+'",
	TokenMinus:    "'-'",
	TokenStar:     "'*'",
	TokenSlash:    "'/'",
	TokenPercent:  "'%'",
	TokenAmp:      "'&'",
	TokenHash:     "'#'",
	TokenRange:    "'..'",
	TokenLParen:   "'('",
	TokenRParen:   "')'",
	TokenLBracket: "'['",
	TokenRBracket: "']'",
	TokenLBrace:   "'{'",
	TokenRBrace:   "'}'",
	TokenComma:    "','",
	TokenColon:    "':'",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "unknown"
}

// Token is a lexical unit of filter text.
type Token struct {
	Type TokenType
	// Value is the source text of the token.
	Value string
	// Str holds the decoded contents of string and character literals.
	Str string
	Pos int
	Len int
}

// describe names the token for error messages.
func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenString:
		return "string " + t.Value
	}
	return "'" + t.Value + "'"
}

var keywords = map[string]TokenType{
	"and":      TokenAnd,
	"or":       TokenOr,
	"xor":      TokenXor,
	"not":      TokenNot,
	"eq":       TokenEq,
	"ne":       TokenNe,
	"all_eq":   TokenAllEq,
	"all_ne":   TokenAllNe,
	"any_ne":   TokenNe,
	"lt":       TokenLt,
	"le":       TokenLe,
	"gt":       TokenGt,
	"ge":       TokenGe,
	"contains": TokenContains,
	"matches":  TokenMatches,
	"in":       TokenIn,
}
