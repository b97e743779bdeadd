package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar (precedence tower, weakest to strongest):
//
//	expr           = logical_or
//	logical_or     = logical_and ("||" logical_and)*
//	logical_and    = comparison ("&&" comparison)*
//	comparison     = additive (("=="|"!="|"<"|">"|"<="|">=") additive)*
//	additive       = multiplicative (("+"|"-") multiplicative)*
//	multiplicative = postfix (("*"|"/"|"%") postfix)*
//	postfix        = unary ("[" expr "]" | "." IDENT | "->" IDENT)*
//	unary          = ("-"|"!") unary | "&" postfix | "*" postfix (lookahead) | primary
//	primary        = INTEGER | STRING | "[" expr_list "]" | IDENT struct_literal?
//	               | IDENT "(" args ")" | IDENT | "(" expr ")"
//
// Sugar is rewritten during parsing: x++/x-- and x op= e become plain
// assignments, for loops become while loops, p->f becomes (*p).f, and
// assignments whose left side parsed as an Index or MemberExpr become
// IndexAssign / MemberAssign nodes.
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
	opt         int // optimization level; >=1 enables constant folding
	structNames map[string]bool
}

// NewParser builds a parser over tokens. opt is the optimization level
// from the compile options; it only controls parse-time constant folding.
func NewParser(tokens []Token, rawSource string, opt int) *Parser {
	return &Parser{
		tokens:      tokens,
		sourceLines: strings.Split(rawSource, "\n"),
		opt:         opt,
		structNames: make(map[string]bool),
	}
}

// fmtError wraps a parse diagnostic with the source line where the token
// appears. The leading "Parse error at line L, col C" prefix is a stable
// contract the CLI prints verbatim.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1 // lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}

	return fmt.Errorf("Parse error at line %d, col %d: %s\n  |> %s", tok.Line, tok.Col, msg, snippet)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise fails.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

// parseType parses a type annotation: T, *T, *mut T, or [T; N].
func (p *Parser) parseType() (*TypeSpec, error) {
	switch p.peek().Type {
	case STAR:
		p.advance()
		spec := &TypeSpec{IsPointer: true}
		if p.peek().Type == MUT {
			p.advance()
			spec.IsMutable = true
		}
		base, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		spec.Base = base.Lexeme
		return spec, nil

	case LBRACKET:
		p.advance()
		base, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		countTok, err := p.expect(INTEGER)
		if err != nil {
			return nil, err
		}
		count, _ := strconv.Atoi(countTok.Lexeme)
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
		return &TypeSpec{Base: base.Lexeme, IsArray: true, ArrayCount: count}, nil

	default:
		base, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		return &TypeSpec{Base: base.Lexeme}, nil
	}
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseLogicalOr()
}

// parseLogicalOr handles ||
func (p *Parser) parseLogicalOr() (Expr, error) {
	expr, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == OR_LOGICAL {
		op := p.advance().Type
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseLogicalAnd handles &&
func (p *Parser) parseLogicalAnd() (Expr, error) {
	expr, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND_LOGICAL {
		op := p.advance().Type
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseComparison handles == != < > <= >=
func (p *Parser) parseComparison() (Expr, error) {
	expr, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != EQUALS && tt != NOT_EQ && tt != LESS && tt != GREATER &&
			tt != LESS_EQ && tt != GREATER_EQ {
			break
		}
		op := p.advance().Type
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		expr = &CompareExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive() (Expr, error) {
	expr, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != PLUS && tt != MINUS {
			break
		}
		op := p.advance().Type
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = p.fold(&BinaryExpr{Op: op, Left: expr, Right: right})
	}
	return expr, nil
}

// parseMultiplicative handles * / %
func (p *Parser) parseMultiplicative() (Expr, error) {
	expr, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != STAR && tt != SLASH && tt != PERCENT {
			break
		}
		op := p.advance().Type
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		expr = p.fold(&BinaryExpr{Op: op, Left: expr, Right: right})
	}
	return expr, nil
}

// parsePostfix handles array index [], struct access ., and -> sugar.
// ptr->field rewrites to (*ptr).field during parsing.
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case LBRACKET:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Left: expr, Index: index}

		case DOT:
			p.advance()
			memberTok, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			expr = &MemberExpr{Left: expr, Member: memberTok.Lexeme}

		case ARROW:
			p.advance()
			memberTok, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			expr = &MemberExpr{Left: &DerefExpr{Right: expr}, Member: memberTok.Lexeme}

		default:
			return expr, nil
		}
	}
}

// beginsPrefixExpr reports whether tt can start a prefix expression. Used
// to tell a dereference from a multiplication after a '*' token.
func beginsPrefixExpr(tt TokenType) bool {
	return tt == IDENTIFIER || tt == LPAREN || tt == STAR || tt == AND
}

// parseUnary handles prefix operators -, !, &, and * (dereference).
func (p *Parser) parseUnary() (Expr, error) {
	switch p.peek().Type {
	case MINUS, NOT:
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op, Right: right}, nil

	case AND:
		p.advance()
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return &AddrOfExpr{Right: right}, nil

	case STAR:
		// Dereference only when the next token can begin a prefix
		// expression; otherwise the star is left for the enclosing
		// multiplicative rule (which reports it as unexpected here,
		// since an operand position cannot start with a binary '*').
		if beginsPrefixExpr(p.peekAt(1).Type) {
			p.advance()
			right, err := p.parsePostfix()
			if err != nil {
				return nil, err
			}
			return &DerefExpr{Right: right}, nil
		}
		return p.parsePrimary()

	default:
		return p.parsePrimary()
	}
}

// parseCallArgs parses a comma-separated argument list up to ')'.
func (p *Parser) parseCallArgs() ([]Expr, error) {
	var args []Expr
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

// parseStructLiteral parses TypeName{f: v, ...} after the name token.
func (p *Parser) parseStructLiteral(typeName string) (Expr, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	var fields []FieldInit
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		nameTok, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		fields = append(fields, FieldInit{Name: nameTok.Lexeme, Value: value})
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return &StructLiteral{TypeName: typeName, Fields: fields}, nil
}

// parsePrimary handles literals, variables, calls, struct and array
// literals, and parenthesised expressions.
func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		val, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, p.fmtError(tok, "integer %q out of 64-bit range", tok.Lexeme)
		}
		return &Literal{Value: val}, nil

	case STRING:
		p.advance()
		return &StringLiteral{Raw: tok.Lexeme}, nil

	case LBRACKET:
		p.advance()
		var elems []Expr
		if p.peek().Type != RBRACKET {
			for {
				e, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
				if p.peek().Type != COMMA {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
		return &InitializerList{Elements: elems}, nil

	case IDENTIFIER:
		p.advance()
		if p.peek().Type == LPAREN {
			p.advance()
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			return &FunctionCall{Name: tok.Lexeme, Args: args}, nil
		}
		if p.peek().Type == LBRACE && p.structNames[tok.Lexeme] {
			return p.parseStructLiteral(tok.Lexeme)
		}
		return &VarRef{Name: tok.Lexeme}, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil

	default:
		return nil, p.fmtError(tok, "expected expression, got %s (%q)", tok.Type, tok.Lexeme)
	}
}

// parseLet parses  let name[: T] [= expr] ;  The leading LET token has
// already been consumed.
func (p *Parser) parseLet() (string, *TypeSpec, Expr, error) {
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return "", nil, nil, err
	}
	var spec *TypeSpec
	if p.peek().Type == COLON {
		p.advance()
		spec, err = p.parseType()
		if err != nil {
			return "", nil, nil, err
		}
	}
	var init Expr
	if p.peek().Type == ASSIGN {
		p.advance()
		init, err = p.parseExpression()
		if err != nil {
			return "", nil, nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return "", nil, nil, err
	}
	return nameTok.Lexeme, spec, init, nil
}

// binaryOpFor maps a compound-assignment token to the underlying operator.
func binaryOpFor(tt TokenType) (TokenType, bool) {
	switch tt {
	case PLUS_ASSIGN:
		return PLUS, true
	case MINUS_ASSIGN:
		return MINUS, true
	case STAR_ASSIGN:
		return STAR, true
	case SLASH_ASSIGN:
		return SLASH, true
	case PERCENT_ASSIGN:
		return PERCENT, true
	}
	return tt, false
}

// parseSimpleStmt parses an expression statement, an assignment, or the
// ++/--/op= sugar. When requireSemi is false (the for-loop increment
// position), the trailing semicolon is not consumed.
func (p *Parser) parseSimpleStmt(requireSemi bool) (Stmt, error) {
	startTok := p.peek()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	var stmt Stmt
	switch p.peek().Type {
	case ASSIGN:
		p.advance()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		switch lhs := expr.(type) {
		case *VarRef:
			stmt = &Assignment{Name: lhs.Name, Value: value}
		case *IndexExpr:
			stmt = &IndexAssign{Base: lhs.Left, Index: lhs.Index, Value: value}
		case *MemberExpr:
			stmt = &MemberAssign{Object: lhs.Left, Member: lhs.Member, Value: value}
		default:
			return nil, p.fmtError(startTok, "expression is not assignable")
		}

	case PLUS_PLUS, MINUS_MINUS:
		op := PLUS
		if p.peek().Type == MINUS_MINUS {
			op = MINUS
		}
		p.advance()
		ref, ok := expr.(*VarRef)
		if !ok {
			return nil, p.fmtError(startTok, "%s requires a plain variable", p.peekAt(-1).Lexeme)
		}
		// x++ => x = x + 1
		stmt = &Assignment{
			Name:  ref.Name,
			Value: &BinaryExpr{Op: op, Left: &VarRef{Name: ref.Name}, Right: &Literal{Value: 1}},
		}

	case PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN, PERCENT_ASSIGN:
		op, _ := binaryOpFor(p.advance().Type)
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		ref, ok := expr.(*VarRef)
		if !ok {
			return nil, p.fmtError(startTok, "compound assignment requires a plain variable")
		}
		// x op= e => x = x op e
		stmt = &Assignment{
			Name:  ref.Name,
			Value: &BinaryExpr{Op: op, Left: &VarRef{Name: ref.Name}, Right: value},
		}

	default:
		stmt = &ExprStmt{Expr: expr}
	}

	if requireSemi {
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// parseBlock parses { stmt* }. The leading LBRACE has not been consumed.
func (p *Parser) parseBlock() (*BlockStmt, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return &BlockStmt{Stmts: stmts}, nil
}

// parseIf parses if (cond) { } [else { } | else if ...]. The leading IF
// has already been consumed.
func (p *Parser) parseIf() (Stmt, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	var elseBody Stmt
	if p.peek().Type == ELSE {
		p.advance()
		if p.peek().Type == IF {
			p.advance()
			elseBody, err = p.parseIf()
		} else {
			elseBody, err = p.parseBlock()
		}
		if err != nil {
			return nil, err
		}
	}
	return &IfStmt{Condition: cond, Body: body, ElseBody: elseBody}, nil
}

// parseWhile parses while (cond) { }. The leading WHILE has already been
// consumed.
func (p *Parser) parseWhile() (Stmt, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Condition: cond, Body: body}, nil
}

// parseFor parses for (init; cond; inc) { } and desugars it into
// { init; while (cond) { body...; inc; } }. The leading FOR has already
// been consumed.
func (p *Parser) parseFor() (Stmt, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var init Stmt
	if p.peek().Type == SEMICOLON {
		p.advance()
	} else if p.peek().Type == LET {
		p.advance()
		name, spec, initExpr, err := p.parseLet()
		if err != nil {
			return nil, err
		}
		init = &VariableDecl{Name: name, Type: spec, Init: initExpr}
	} else {
		var err error
		init, err = p.parseSimpleStmt(true)
		if err != nil {
			return nil, err
		}
	}

	var cond Expr
	if p.peek().Type != SEMICOLON {
		var err error
		cond, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	} else {
		cond = &Literal{Value: 1}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}

	var inc Stmt
	if p.peek().Type != RPAREN {
		var err error
		inc, err = p.parseSimpleStmt(false)
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if inc != nil {
		body.Stmts = append(body.Stmts, inc)
	}

	loop := &WhileStmt{Condition: cond, Body: body}
	outer := &BlockStmt{}
	if init != nil {
		outer.Stmts = append(outer.Stmts, init)
	}
	outer.Stmts = append(outer.Stmts, loop)
	return outer, nil
}

// parseStatement dispatches to the correct sub-parser based on the
// leading token.
func (p *Parser) parseStatement() (Stmt, error) {
	switch p.peek().Type {
	case LET:
		p.advance()
		name, spec, init, err := p.parseLet()
		if err != nil {
			return nil, err
		}
		return &VariableDecl{Name: name, Type: spec, Init: init}, nil

	case RETURN:
		p.advance()
		var expr Expr
		if p.peek().Type != SEMICOLON {
			var err error
			expr, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ReturnStmt{Expr: expr}, nil

	case IF:
		p.advance()
		return p.parseIf()

	case WHILE:
		p.advance()
		return p.parseWhile()

	case FOR:
		p.advance()
		return p.parseFor()

	case LBRACE:
		return p.parseBlock()

	default:
		return p.parseSimpleStmt(true)
	}
}

// parseStructDecl parses  struct Name { f: T, ... }  The leading STRUCT
// has already been consumed.
func (p *Parser) parseStructDecl() (Stmt, error) {
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	var fields []StructField
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		fieldTok, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		spec, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, StructField{Name: fieldTok.Lexeme, Type: *spec})
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	p.structNames[nameTok.Lexeme] = true
	return &StructDecl{Name: nameTok.Lexeme, Fields: fields}, nil
}

// parseFunctionDecl parses  fn name(p: T, ...) [-> T] { ... }  or the
// forward-declaration form ending in ';'. The leading FN has already been
// consumed.
func (p *Parser) parseFunctionDecl() (Stmt, error) {
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var params []Param
	if p.peek().Type != RPAREN {
		for {
			paramTok, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(COLON); err != nil {
				return nil, err
			}
			spec, err := p.parseType()
			if err != nil {
				return nil, err
			}
			params = append(params, Param{Name: paramTok.Lexeme, Type: *spec})
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	retType := ""
	if p.peek().Type == ARROW {
		p.advance()
		spec, err := p.parseType()
		if err != nil {
			return nil, err
		}
		retType = spec.String()
	}

	if p.peek().Type == SEMICOLON {
		p.advance()
		return &FunctionDecl{
			Name:       nameTok.Lexeme,
			Params:     params,
			ReturnType: retType,
			Body:       &BlockStmt{},
			IsForward:  true,
		}, nil
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FunctionDecl{Name: nameTok.Lexeme, Params: params, ReturnType: retType, Body: body}, nil
}

// Parse builds the Program from the token stream. Top-level items are
// struct definitions, global lets, and function definitions.
func Parse(tokens []Token, rawSource string, opt int) (*Program, error) {
	p := NewParser(tokens, rawSource, opt)
	prog := &Program{}
	for p.peek().Type != EOF {
		switch p.peek().Type {
		case STRUCT:
			p.advance()
			s, err := p.parseStructDecl()
			if err != nil {
				return nil, err
			}
			prog.Decls = append(prog.Decls, s)

		case FN:
			p.advance()
			f, err := p.parseFunctionDecl()
			if err != nil {
				return nil, err
			}
			prog.Decls = append(prog.Decls, f)

		case LET:
			p.advance()
			name, spec, init, err := p.parseLet()
			if err != nil {
				return nil, err
			}
			prog.Decls = append(prog.Decls, &GlobalDecl{Name: name, Type: spec, Init: init})

		default:
			tok := p.peek()
			return nil, p.fmtError(tok, "expected fn, let, or struct at top level, got %s (%q)",
				tok.Type, tok.Lexeme)
		}
	}
	return prog, nil
}
