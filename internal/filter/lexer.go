/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"strings"
	"unicode/utf8"
)

type Lexer struct {
	input string
	pos   int
	ch    byte
	// depth counts open brackets, the lexer reads byte slices while inside.
	depth int
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// Tokenize splits input into tokens, the last one being TokenEOF.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) readChar() {
	if l.pos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input) + 1
		return
	}
	l.ch = l.input[l.pos]
	l.pos++
}

func (l *Lexer) peekChar() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) offset() int {
	return l.pos - 1
}

func (l *Lexer) eof() bool {
	return l.pos > len(l.input)
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func (l *Lexer) token(typ TokenType, start int) Token {
	end := l.offset()
	return Token{Type: typ, Value: l.input[start:end], Pos: start, Len: end - start}
}

func (l *Lexer) single(typ TokenType, start int) (Token, error) {
	l.readChar()
	return l.token(typ, start), nil
}

func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	start := l.offset()
	if l.eof() {
		return Token{Type: TokenEOF, Pos: len(l.input)}, nil
	}
	if l.depth > 0 {
		return l.sliceToken(start)
	}

	switch c := l.ch; {
	case c == '"':
		return l.readString(start, false)
	case c == 'r' && l.peekChar() == '"':
		l.readChar()
		return l.readString(start, true)
	case c == '\'':
		return l.readCharConst(start)
	case isAlnum(c) || c == '_':
		return l.readWord(start), nil
	case c == ':' && l.peekChar() == ':':
		return l.readWord(start), nil
	}
	return l.readOperator(start)
}

func (l *Lexer) readOperator(start int) (Token, error) {
	c := l.ch
	l.readChar()

	var typ TokenType
	switch c {
	case '=':
		if l.ch != '=' {
			return Token{}, diagf(StageLex, start, 1, "unexpected character '=', did you mean '=='")
		}
		l.readChar()
		typ = TokenEq
		if l.ch == '=' {
			l.readChar()
			typ = TokenAllEq
		}
	case '!':
		typ = TokenNot
		if l.ch == '=' {
			l.readChar()
			typ = TokenNe
			if l.ch == '=' {
				l.readChar()
				typ = TokenAllNe
			}
		}
	case '<':
		typ = TokenLt
		if l.ch == '=' {
			l.readChar()
			typ = TokenLe
		}
	case '>':
		typ = TokenGt
		if l.ch == '=' {
			l.readChar()
			typ = TokenGe
		}
	case '&':
		typ = TokenAmp
		if l.ch == '&' {
			l.readChar()
			typ = TokenAnd
		}
	case '|':
		if l.ch != '|' {
			return Token{}, diagf(StageLex, start, 1, "unexpected character '|', did you mean '||'")
		}
		l.readChar()
		typ = TokenOr
	case '^':
		if l.ch != '^' {
			return Token{}, diagf(StageLex, start, 1, "unexpected character '^', did you mean '^^'")
		}
		l.readChar()
		typ = TokenXor
	case '.':
		if l.ch != '.' {
			return Token{}, diagf(StageLex, start, 1, "unexpected character '.'")
		}
		l.readChar()
		typ = TokenRange
	case '~':
		typ = TokenMatches
	case '+':
		typ = TokenPlus
	case '-':
		typ = TokenMinus
	case '*':
		typ = TokenStar
	case '/':
		typ = TokenSlash
	case '%':
		typ = TokenPercent
	case '#':
		typ = TokenHash
	case ',':
		typ = TokenComma
	case ':':
		typ = TokenColon
	case '(':
		typ = TokenLParen
	case ')':
		typ = TokenRParen
	case '{':
		typ = TokenLBrace
	case '}':
		typ = TokenRBrace
	case '[':
		typ = TokenLBracket
		l.depth++
	case ']':
		typ = TokenRBracket
	default:
		return Token{}, diagf(StageLex, start, 1, "unexpected character %q", c)
	}
	return l.token(typ, start), nil
}

// sliceToken reads the contents of a byte slice such as [0:2, -1, 4-6].
func (l *Lexer) sliceToken(start int) (Token, error) {
	switch l.ch {
	case ':':
		return l.single(TokenColon, start)
	case '-':
		return l.single(TokenMinus, start)
	case ',':
		return l.single(TokenComma, start)
	case ']':
		l.depth--
		return l.single(TokenRBracket, start)
	}
	if !isDigit(l.ch) {
		return Token{}, diagf(StageLex, start, 1, "unexpected character %q in byte slice", l.ch)
	}
	for isAlnum(l.ch) {
		l.readChar()
	}
	tok := l.token(TokenInteger, start)
	if !isInteger(tok.Value) {
		return Token{}, diagf(StageLex, start, tok.Len, "invalid slice offset '%s'", tok.Value)
	}
	return tok, nil
}

// readWord reads identifiers, integers and barewords such as addresses,
// networks and byte strings.
func (l *Lexer) readWord(start int) Token {
	first := l.ch
	colon, dot := false, false
loop:
	for {
		switch {
		case isAlnum(l.ch) || l.ch == '_':
		case l.ch == '.':
			if l.peekChar() == '.' {
				break loop
			}
			dot = true
		case l.ch == ':':
			colon = true
		case l.ch == '-' && l.hyphenPair(start):
		case l.ch == '/' && (colon || (dot && isDigit(first))) && isDigit(l.peekChar()):
		default:
			break loop
		}
		l.readChar()
	}

	tok := l.token(TokenBareword, start)
	if isInteger(tok.Value) {
		tok.Type = TokenInteger
	} else if kw, ok := keywords[strings.ToLower(tok.Value)]; ok {
		tok.Type = kw
	} else if isIdent(tok.Value) {
		tok.Type = TokenIdent
	}
	return tok
}

// hyphenPair reports whether the '-' at the current position joins two hex
// pairs of a byte string such as 00-1b-21. Subtraction of two-digit
// operands needs spaces.
func (l *Lexer) hyphenPair(start int) bool {
	word := l.input[start:l.offset()]
	if len(word)%3 != 2 {
		return false
	}
	for i := 0; i < len(word); i++ {
		if i%3 == 2 {
			if word[i] != '-' {
				return false
			}
		} else if !isHex(word[i]) {
			return false
		}
	}

	next := l.input[l.pos:]
	if len(next) < 2 || !isHex(next[0]) || !isHex(next[1]) {
		return false
	}
	return len(next) == 2 || !(isAlnum(next[2]) || next[2] == '_' || next[2] == '.' || next[2] == ':')
}

func (l *Lexer) readString(start int, raw bool) (Token, error) {
	l.readChar()

	var sb strings.Builder
	for {
		switch {
		case l.eof():
			return Token{}, diagf(StageLex, start, l.offset()-start, "unterminated string literal")
		case l.ch == '"':
			l.readChar()
			tok := l.token(TokenString, start)
			tok.Str = sb.String()
			return tok, nil
		case l.ch == '\\' && !raw:
			c, err := l.readEscape()
			if err != nil {
				return Token{}, err
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func (l *Lexer) readCharConst(start int) (Token, error) {
	l.readChar()

	var r rune
	switch {
	case l.eof():
		return Token{}, diagf(StageLex, start, l.offset()-start, "unterminated character constant")
	case l.ch == '\'':
		return Token{}, diagf(StageLex, start, 2, "empty character constant")
	case l.ch == '\\':
		c, err := l.readEscape()
		if err != nil {
			return Token{}, err
		}
		r = rune(c)
	default:
		var size int
		r, size = utf8.DecodeRuneInString(l.input[l.offset():])
		for range size {
			l.readChar()
		}
	}

	if l.eof() || l.ch != '\'' {
		return Token{}, diagf(StageLex, start, l.offset()-start, "unterminated character constant")
	}
	l.readChar()

	tok := l.token(TokenChar, start)
	tok.Str = string(r)
	return tok, nil
}

func (l *Lexer) readEscape() (byte, error) {
	start := l.offset()
	l.readChar()
	if l.eof() {
		return 0, diagf(StageLex, start, 1, "unterminated escape sequence")
	}
	c := l.ch
	l.readChar()

	switch c {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case 'a':
		return '\a', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case 'v':
		return '\v', nil
	case '\\', '"', '\'':
		return c, nil
	case 'x':
		v, n := 0, 0
		for ; n < 2 && isHex(l.ch); n++ {
			v = v<<4 | unhex(l.ch)
			l.readChar()
		}
		if n == 0 {
			return 0, diagf(StageLex, start, 2, "invalid escape sequence '\\x'")
		}
		return byte(v), nil
	}

	if isOctal(c) {
		v := int(c - '0')
		for n := 1; n < 3 && isOctal(l.ch); n++ {
			v = v<<3 | int(l.ch-'0')
			l.readChar()
		}
		if v > 0xff {
			return 0, diagf(StageLex, start, l.offset()-start, "octal escape out of range")
		}
		return byte(v), nil
	}
	return 0, diagf(StageLex, start, 2, "invalid escape sequence '\\%c'", c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isAlnum(c byte) bool {
	return isLetter(c) || isDigit(c)
}

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return int(c-'A') + 10
}

func allBytes(s string, pred func(byte) bool) bool {
	for i := 0; i < len(s); i++ {
		if !pred(s[i]) {
			return false
		}
	}
	return true
}

func isInteger(s string) bool {
	switch {
	case len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X'):
		return allBytes(s[2:], isHex)
	case len(s) > 2 && s[0] == '0' && (s[1] == 'b' || s[1] == 'B'):
		return allBytes(s[2:], func(c byte) bool { return c == '0' || c == '1' })
	case len(s) > 1 && s[0] == '0':
		return allBytes(s[1:], isOctal)
	}
	return len(s) > 0 && allBytes(s, isDigit)
}

func isIdent(s string) bool {
	if s == "" || !(isLetter(s[0]) || s[0] == '_') || s[len(s)-1] == '.' {
		return false
	}
	return allBytes(s, func(c byte) bool {
		return isAlnum(c) || c == '_' || c == '.'
	})
}
