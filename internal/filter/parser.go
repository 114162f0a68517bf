/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

type Parser struct {
	lexer   *Lexer
	current Token
	peek    Token
}

var (
	orOps  = map[TokenType]TestOp{TokenOr: OpOr}
	xorOps = map[TokenType]TestOp{TokenXor: OpXor}
	andOps = map[TokenType]TestOp{TokenAnd: OpAnd}
	addOps = map[TokenType]TestOp{TokenPlus: OpAdd, TokenMinus: OpSub}
	mulOps = map[TokenType]TestOp{
		TokenStar:    OpMul,
		TokenSlash:   OpDiv,
		TokenPercent: OpMod,
		TokenAmp:     OpBitAnd,
	}
	relOps = map[TokenType]TestOp{
		TokenEq:       OpEq,
		TokenNe:       OpNe,
		TokenAllEq:    OpAllEq,
		TokenAllNe:    OpAllNe,
		TokenLt:       OpLt,
		TokenLe:       OpLe,
		TokenGt:       OpGt,
		TokenGe:       OpGe,
		TokenContains: OpContains,
		TokenMatches:  OpMatches,
	}
)

// Parse parses filter text into an unresolved syntax tree.
func Parse(input string) (Node, error) {
	p, err := NewParser(input)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

func NewParser(input string) (*Parser, error) {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to initialize current and peek
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) nextToken() error {
	p.current = p.peek
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) unexpected(want string) error {
	return diagf(StageParse, p.current.Pos, max(p.current.Len, 1),
		"expected %s, got %s", want, p.current.describe())
}

func (p *Parser) expect(tokType TokenType) (Token, error) {
	tok := p.current
	if tok.Type != tokType {
		return tok, p.unexpected(tokType.String())
	}
	return tok, p.nextToken()
}

// Parse parses a complete filter expression.
func (p *Parser) Parse() (Node, error) {
	n, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.unexpected("end of input")
	}
	return n, nil
}

func (p *Parser) parseExpression() (Node, error) {
	return p.parseBinary(p.parseXorExpr, orOps)
}

func (p *Parser) parseXorExpr() (Node, error) {
	return p.parseBinary(p.parseAndExpr, xorOps)
}

func (p *Parser) parseAndExpr() (Node, error) {
	return p.parseBinary(p.parseNotExpr, andOps)
}

func (p *Parser) parseAdditive() (Node, error) {
	return p.parseBinary(p.parseMultiplicative, addOps)
}

func (p *Parser) parseMultiplicative() (Node, error) {
	return p.parseBinary(p.parseUnary, mulOps)
}

// parseBinary parses a left associative chain of the given operators.
func (p *Parser) parseBinary(next func() (Node, error), ops map[TokenType]TestOp) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for {
		op, ok := ops[p.current.Type]
		if !ok {
			return left, nil
		}
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = NewTest(op, left, right)
	}
}

func (p *Parser) parseNotExpr() (Node, error) {
	if p.current.Type != TokenNot {
		return p.parseRelation()
	}

	tok := p.current
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	operand, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}
	return prefixed(NewTest(OpNot, operand, nil), tok), nil
}

func (p *Parser) parseRelation() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	if op, ok := relOps[p.current.Type]; ok {
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return NewTest(op, left, right), nil
	}

	negate := p.current.Type == TokenNot && p.peek.Type == TokenIn
	if negate {
		if err := p.nextToken(); err != nil {
			return nil, err
		}
	}
	if p.current.Type != TokenIn {
		return left, nil
	}
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	set, err := p.parseSet()
	if err != nil {
		return nil, err
	}

	var n Node = NewTest(OpIn, left, set)
	if negate {
		n = NewTest(OpNot, n, nil)
	}
	return n, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if p.current.Type != TokenMinus {
		return p.parsePrimary()
	}

	tok := p.current
	adjacent := p.peek.Pos == tok.Pos+1
	if adjacent && (p.peek.Type == TokenInteger || p.peek.Type == TokenBareword) {
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		lit := p.current
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		if lit.Type == TokenInteger {
			return NewInteger("-"+lit.Value, tok.Pos), nil
		}
		return NewUnparsed("-"+lit.Value, tok.Pos), nil
	}

	if err := p.nextToken(); err != nil {
		return nil, err
	}
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return prefixed(NewTest(OpNeg, operand, nil), tok), nil
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.current

	switch tok.Type {
	case TokenLParen:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		n.base().Paren = true
		return n, nil
	case TokenString:
		n := &StringNode{
			nodeBase: at(tok.Pos, tok.Len),
			Value:    tok.Str,
			Raw:      strings.HasPrefix(tok.Value, "r"),
		}
		return n, p.nextToken()
	case TokenChar:
		r, _ := utf8.DecodeRuneInString(tok.Str)
		n := &CharNode{nodeBase: at(tok.Pos, tok.Len), Value: r}
		return n, p.nextToken()
	case TokenInteger:
		return NewInteger(tok.Value, tok.Pos), p.nextToken()
	case TokenBareword:
		return NewUnparsed(tok.Value, tok.Pos), p.nextToken()
	case TokenIdent:
		return p.parseIdent()
	case TokenLBrace:
		return nil, diagf(StageParse, tok.Pos, 1, "sets are only allowed after 'in'")
	}
	return nil, p.unexpected("a field or value")
}

// parseIdent parses a field reference, possibly with layer and slice, a
// function call or a word left to the resolver.
func (p *Parser) parseIdent() (Node, error) {
	tok := p.current
	if err := p.nextToken(); err != nil {
		return nil, err
	}

	if p.current.Type == TokenLParen {
		return p.parseCall(tok)
	}

	layer := 0
	end := tok.Pos + tok.Len
	if p.current.Type == TokenHash {
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		n, last, err := p.parseOffset("layer number")
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, diagf(StageParse, last.Pos, last.Len, "layer numbers start at 1")
		}
		layer = n
		end = last.Pos + last.Len
	}

	if p.current.Type == TokenLBracket {
		return p.parseSlice(NewField(tok.Value, layer, tok.Pos, end-tok.Pos))
	}
	if layer != 0 {
		return NewField(tok.Value, layer, tok.Pos, end-tok.Pos), nil
	}
	return NewUnparsed(tok.Value, tok.Pos), nil
}

func (p *Parser) parseCall(name Token) (Node, error) {
	if err := p.nextToken(); err != nil {
		return nil, err
	}

	fn := &FunctionNode{Name: name.Value}
	for p.current.Type != TokenRParen {
		if len(fn.Args) > 0 {
			if _, err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		fn.Args = append(fn.Args, arg)
	}

	rparen := p.current
	fn.nodeBase = at(name.Pos, rparen.Pos+1-name.Pos)
	return fn, p.nextToken()
}

func (p *Parser) parseSlice(entity Node) (Node, error) {
	if err := p.nextToken(); err != nil {
		return nil, err
	}

	var ranges []Range
	for {
		r, err := p.parseRange()
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
		if p.current.Type != TokenComma {
			break
		}
		if err := p.nextToken(); err != nil {
			return nil, err
		}
	}

	rbracket, err := p.expect(TokenRBracket)
	if err != nil {
		return nil, err
	}
	pos, _ := Span(entity)
	return &SliceNode{
		nodeBase: at(pos, rbracket.Pos+1-pos),
		Entity:   entity,
		Ranges:   ranges,
	}, nil
}

func (p *Parser) parseRange() (Range, error) {
	if p.current.Type == TokenColon {
		if err := p.nextToken(); err != nil {
			return Range{}, err
		}
		n, tok, err := p.parseOffset("slice length")
		if err != nil {
			return Range{}, err
		}
		if n <= 0 {
			return Range{}, diagf(StageParse, tok.Pos, tok.Len, "slice length must be positive")
		}
		return Range{Start: 0, End: n, Mode: RangeLength}, nil
	}

	start, _, err := p.parseOffset("slice offset")
	if err != nil {
		return Range{}, err
	}

	switch p.current.Type {
	case TokenColon:
		if err := p.nextToken(); err != nil {
			return Range{}, err
		}
		if p.current.Type != TokenInteger {
			return Range{Start: start, Mode: RangeToEnd}, nil
		}
		n, tok, err := p.parseOffset("slice length")
		if err != nil {
			return Range{}, err
		}
		if n <= 0 {
			return Range{}, diagf(StageParse, tok.Pos, tok.Len, "slice length must be positive")
		}
		return Range{Start: start, End: n, Mode: RangeLength}, nil
	case TokenMinus:
		if err := p.nextToken(); err != nil {
			return Range{}, err
		}
		end, tok, err := p.parseOffset("slice end")
		if err != nil {
			return Range{}, err
		}
		if start >= 0 && end >= 0 && end < start {
			return Range{}, diagf(StageParse, tok.Pos, tok.Len, "slice end %d lies before start %d", end, start)
		}
		return Range{Start: start, End: end, Mode: RangeEnd}, nil
	}
	return Range{Start: start, Mode: RangeSingle}, nil
}

// parseOffset parses an optionally negative integer and returns it along
// with its token.
func (p *Parser) parseOffset(what string) (int, Token, error) {
	neg := p.current.Type == TokenMinus
	if neg {
		if err := p.nextToken(); err != nil {
			return 0, Token{}, err
		}
	}

	tok := p.current
	if tok.Type != TokenInteger {
		return 0, tok, p.unexpected(what)
	}
	v, err := strconv.ParseInt(tok.Value, 0, 32)
	if err != nil {
		return 0, tok, diagf(StageParse, tok.Pos, tok.Len, "invalid %s '%s'", what, tok.Value)
	}
	if neg {
		v = -v
	}
	return int(v), tok, p.nextToken()
}

func (p *Parser) parseSet() (Node, error) {
	lbrace, err := p.expect(TokenLBrace)
	if err != nil {
		return nil, err
	}

	set := &SetNode{}
	separated := true
	for p.current.Type != TokenRBrace {
		if p.current.Type == TokenEOF {
			return nil, p.unexpected("'}'")
		}
		if !separated {
			set.Deprecated = "set elements separated by whitespace, use commas"
		}

		var elem SetElem
		if elem.Low, err = p.parseAdditive(); err != nil {
			return nil, err
		}
		if p.current.Type == TokenRange {
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			if elem.High, err = p.parseAdditive(); err != nil {
				return nil, err
			}
		}
		set.Elems = append(set.Elems, elem)

		separated = p.current.Type == TokenComma
		if separated {
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			if p.current.Type == TokenRBrace {
				return nil, p.unexpected("a set element")
			}
		}
	}

	if len(set.Elems) == 0 {
		return nil, diagf(StageParse, lbrace.Pos, p.current.Pos+1-lbrace.Pos, "empty set")
	}
	set.Pos = lbrace.Pos
	set.Len = p.current.Pos + 1 - lbrace.Pos
	return set, p.nextToken()
}

// prefixed extends the span of n to start at the operator token.
func prefixed(n *TestNode, op Token) *TestNode {
	n.Len += n.Pos - op.Pos
	n.Pos = op.Pos
	return n
}
