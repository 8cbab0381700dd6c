package fhirpath

import (
	"fmt"
	"strings"
)

// ParseError reports a syntax error with the offending token's position.
type ParseError struct {
	Pos int
	Msg string
}

func (e ParseError) Error() string { return fmt.Sprintf("%d: %s", e.Pos, e.Msg) }

// Parse scans and parses expr into an AST, using the explicit Pratt binding
// powers from 4.A:
//
//	implies=1  xor|or=2  and=3  in|contains=5  equality=9  relational=20
//	union(|)=21  is|as=40  additive(+ - &)=45  multiplicative(* / div mod)=50
//	path(.)=60  index([])=75  function-call binds at the primary level
func Parse(expr string) (Node, error) {
	toks, errs := Scan(expr)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	p := &parser{toks: toks}
	node, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, ParseError{Pos: p.peek().Pos, Msg: fmt.Sprintf("unexpected trailing token %q", p.peek().Text)}
	}
	return node, nil
}

type parser struct {
	toks []Token
	pos  int
}

func (p *parser) peek() Token {
	if p.pos >= len(p.toks) {
		return Token{Kind: TokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) atEOF() bool { return p.peek().Kind == TokEOF }

func (p *parser) advance() Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind Kind, text string) (Token, error) {
	t := p.peek()
	if t.Kind != kind || (text != "" && t.Text != text) {
		return t, ParseError{Pos: t.Pos, Msg: fmt.Sprintf("expected %q, got %q", text, t.Text)}
	}
	return p.advance(), nil
}

// infixBinding returns the binding power of tok as an infix/postfix operator,
// or ok=false if tok cannot continue an expression.
func infixBinding(tok Token) (bp int, ok bool) {
	switch tok.Kind {
	case TokDot:
		return 60, true
	case TokLBracket:
		return 75, true
	case TokKeyword:
		switch tok.Text {
		case "implies":
			return 1, true
		case "xor", "or":
			return 2, true
		case "and":
			return 3, true
		case "in", "contains":
			return 5, true
		case "is", "as":
			return 40, true
		case "div", "mod":
			return 50, true
		}
	case TokOp:
		switch tok.Text {
		case "=", "!=", "~", "!~":
			return 9, true
		case "<", "<=", ">", ">=":
			return 20, true
		case "|":
			return 21, true
		case "+", "-", "&":
			return 45, true
		case "*", "/":
			return 50, true
		}
	}
	return 0, false
}

func (p *parser) parseExpr(minBp int) (Node, error) {
	lhs, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		bp, ok := infixBinding(tok)
		if !ok || bp < minBp {
			break
		}
		p.advance()
		switch {
		case tok.Kind == TokDot:
			rhs, err := p.parsePostfixPrimary()
			if err != nil {
				return nil, err
			}
			lhs = SubExpr{Lhs: lhs, Rhs: rhs}
		case tok.Kind == TokLBracket:
			idx, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket, "]"); err != nil {
				return nil, err
			}
			lhs = ArrayIndex{Base: lhs, Index: idx}
		case tok.Text == "as":
			typeName, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			lhs = buildTypeCast(lhs, typeName)
		case tok.Text == "is":
			typeName, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			lhs = TypeIs{Expr: lhs, TypeName: typeName}
		default:
			op := BinaryOp(tok.Text)
			rhs, err := p.parseExpr(bp + 1)
			if err != nil {
				return nil, err
			}
			lhs = Binary{Lhs: lhs, Op: op, Rhs: rhs}
		}
	}
	return lhs, nil
}

// parseTypeName consumes a (possibly dotted, e.g. "FHIR.Quantity") type
// specifier and returns its final component, which is what dual-name lookup
// needs for the fused field name.
func (p *parser) parseTypeName() (string, error) {
	tok, err := p.expect(TokIdent, "")
	if err != nil {
		return "", ParseError{Pos: tok.Pos, Msg: "expected type name"}
	}
	name := tok.Text
	for p.peek().Kind == TokDot {
		p.advance()
		next, err := p.expect(TokIdent, "")
		if err != nil {
			return "", err
		}
		name = next.Text
	}
	return name, nil
}

// buildTypeCast turns "lhs as Type" into a TypeCast node. When lhs is a bare
// Path or the final segment of a SubExpr chain, the cast rewrites that final
// navigation step into a dual-name lookup (bare name, and name+Type fused);
// this is what lets `value as Quantity` resolve either a literal `value`
// field or a polymorphic `valueQuantity` field (4.A).
func buildTypeCast(lhs Node, typeName string) Node {
	switch n := lhs.(type) {
	case Path:
		return TypeCast{Parent: Path{Name: ""}, Bare: n.Name, Fused: n.Name + typeName}
	case SubExpr:
		if inner, ok := n.Rhs.(Path); ok {
			return TypeCast{Parent: n.Lhs, Bare: inner.Name, Fused: inner.Name + typeName}
		}
	}
	// Fall back to a plain type test when lhs isn't a navigable attribute.
	return TypeIs{Expr: lhs, TypeName: typeName}
}

func (p *parser) parsePrefix() (Node, error) {
	tok := p.peek()
	if tok.Kind == TokOp && (tok.Text == "+" || tok.Text == "-") {
		p.advance()
		inner, err := p.parsePrefix()
		if err != nil {
			return nil, err
		}
		return Unary{Op: BinaryOp(tok.Text), Expr: inner}, nil
	}
	return p.parsePostfixPrimary()
}

// parsePostfixPrimary parses one primary term. Further dot/index/as/is
// postfix chaining is handled by the caller's infix loop, not here, so this
// only returns the single next atomic term.
func (p *parser) parsePostfixPrimary() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokNumber:
		p.advance()
		return Literal{Kind: LitNumber, Text: tok.Text}, nil
	case TokQuantityUnit:
		p.advance()
		parts := strings.SplitN(tok.Text, "\x00", 2)
		return Literal{Kind: LitQuantity, Text: parts[0], Unit: parts[1]}, nil
	case TokString:
		p.advance()
		return Literal{Kind: LitString, Text: tok.Text}, nil
	case TokDateTime:
		p.advance()
		return Literal{Kind: LitDateTime, Text: tok.Text}, nil
	case TokEnvVar:
		p.advance()
		return EnvVariable{Name: tok.Text}, nil
	case TokLParen:
		p.advance()
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokKeyword:
		switch tok.Text {
		case "true":
			p.advance()
			return Literal{Kind: LitBool, Bool: true}, nil
		case "false":
			p.advance()
			return Literal{Kind: LitBool, Bool: false}, nil
		}
		return nil, ParseError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected keyword %q", tok.Text)}
	case TokIdent:
		p.advance()
		if p.peek().Kind == TokLParen {
			p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return Function{Name: tok.Text, Args: args}, nil
		}
		return Path{Name: tok.Text}, nil
	default:
		return nil, ParseError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected token %q", tok.Text)}
	}
}

func (p *parser) parseArgs() ([]Node, error) {
	var args []Node
	if p.peek().Kind == TokRParen {
		p.advance()
		return args, nil
	}
	for {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return args, nil
}
