package compiler

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for raster-algebra scripts
// ---------------------------------------------------------------------------

// Script is parsed source text. It is never modified after Parse returns;
// the resolver annotates a clone of AST.
type Script struct {
	Source string
	AST    *Program
}

// Parse parses script text. It returns either a Script or the syntax
// problems found, never both.
func Parse(source string) (*Script, Problems) {
	p := NewParser(source)
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		return nil, p.Errors()
	}
	return &Script{Source: source, AST: prog}, nil
}

// Parser parses script source into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position // end of the last consumed token
	errors    Problems

	// panicMode suppresses cascading errors until the parser resynchronizes
	// at a statement boundary.
	panicMode bool
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevEnd = tokenEnd(p.curToken)
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func tokenEnd(t Token) Position {
	return Position{
		Offset: t.Pos.Offset + len(t.Literal),
		Line:   t.Pos.Line,
		Column: t.Pos.Column + utf8.RuneCountInString(t.Literal),
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, describe(p.curToken))
	return false
}

func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenError:
		return t.Literal
	}
	return fmt.Sprintf("%q", t.Literal)
}

// errorf records a syntax error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.errorAt(p.curToken.Pos, format, args...)
}

func (p *Parser) errorAt(pos Position, format string, args ...interface{}) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.errors = append(p.errors, NewProblem(SyntaxError, "", MakeSpan(pos, pos), format, args...))
}

// Errors returns accumulated syntax errors.
func (p *Parser) Errors() Problems {
	return p.errors
}

// synchronize skips tokens up to the next statement boundary: past a ';'
// at the current nesting depth, or up to (not past) a '}' closing the
// enclosing block.
func (p *Parser) synchronize() {
	depth := 0
	for !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenSemicolon:
			if depth == 0 {
				p.nextToken()
				p.panicMode = false
				return
			}
		case TokenLBrace:
			depth++
		case TokenRBrace:
			if depth == 0 {
				p.panicMode = false
				return
			}
			depth--
			if depth == 0 {
				p.nextToken()
				p.panicMode = false
				return
			}
		}
		p.nextToken()
	}
	p.panicMode = false
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses an optional init block followed by statements.
func (p *Parser) ParseProgram() *Program {
	startPos := p.curToken.Pos
	prog := &Program{}

	if p.curTokenIs(TokenInit) {
		prog.Init = p.parseInit()
	}

	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenRBrace) {
			p.errorf("unexpected '}' with no open block")
			p.nextToken()
			p.panicMode = false
			continue
		}
		if stmt := p.ParseStatement(); stmt != nil {
			prog.Body = append(prog.Body, stmt)
		}
	}

	prog.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return prog
}

// parseInit parses init { stmts }.
func (p *Parser) parseInit() *InitBlock {
	startPos := p.curToken.Pos
	p.nextToken() // consume init

	if !p.curTokenIs(TokenLBrace) {
		p.errorf("expected '{' after init, got %s", describe(p.curToken))
		p.synchronize()
		return nil
	}
	block := p.parseBlock()
	return &InitBlock{
		SpanVal:    MakeSpan(startPos, p.prevEnd),
		Statements: block.Statements,
	}
}

// ParseStatement parses a single statement. It returns nil for an empty
// statement or after a syntax error.
func (p *Parser) ParseStatement() Node {
	switch p.curToken.Type {
	case TokenLBrace:
		return p.parseBlock()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenSemicolon:
		p.nextToken()
		return nil
	case TokenInit:
		p.errorf("init block must be the first statement of a script")
		p.synchronize()
		return nil
	}

	expr := p.ParseExpression()
	if expr == nil {
		p.synchronize()
		return nil
	}
	if !p.curTokenIs(TokenSemicolon) {
		p.errorf("expected ';' after expression, got %s", describe(p.curToken))
		p.synchronize()
		return nil
	}
	p.nextToken()
	return expr
}

// parseBlock parses { stmts }.
func (p *Parser) parseBlock() *Block {
	startPos := p.curToken.Pos
	p.nextToken() // consume {

	block := &Block{}
	for !p.curTokenIs(TokenRBrace) {
		if p.curTokenIs(TokenEOF) {
			p.panicMode = false
			p.errorf("expected '}' to close block opened at line %d, column %d", startPos.Line, startPos.Column)
			block.SpanVal = MakeSpan(startPos, p.curToken.Pos)
			return block
		}
		if stmt := p.ParseStatement(); stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
	}
	p.nextToken() // consume }

	block.SpanVal = MakeSpan(startPos, p.prevEnd)
	return block
}

// parseIf parses if (cond) stmt [else stmt].
func (p *Parser) parseIf() Node {
	startPos := p.curToken.Pos
	p.nextToken() // consume if

	cond := p.parseCondition("if")
	if cond == nil {
		p.synchronize()
		return nil
	}

	then := p.parseBranch()
	if then == nil {
		return nil
	}

	node := &If{Cond: cond, Then: then}
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		node.Else = p.parseBranch()
		if node.Else == nil {
			return nil
		}
	}
	node.SpanVal = MakeSpan(startPos, p.prevEnd)
	return node
}

// parseWhile parses while (cond) stmt.
func (p *Parser) parseWhile() Node {
	startPos := p.curToken.Pos
	p.nextToken() // consume while

	cond := p.parseCondition("while")
	if cond == nil {
		p.synchronize()
		return nil
	}

	body := p.parseBranch()
	if body == nil {
		return nil
	}
	return &While{SpanVal: MakeSpan(startPos, p.prevEnd), Cond: cond, Body: body}
}

// parseCondition parses ( expr ).
func (p *Parser) parseCondition(keyword string) Node {
	if !p.curTokenIs(TokenLParen) {
		p.errorf("expected '(' after %s, got %s", keyword, describe(p.curToken))
		return nil
	}
	p.nextToken()
	cond := p.ParseExpression()
	if cond == nil {
		return nil
	}
	if !p.expect(TokenRParen) {
		return nil
	}
	return cond
}

// parseBranch parses the statement controlled by if/else/while. An empty
// statement becomes an empty block.
func (p *Parser) parseBranch() Node {
	if p.curTokenIs(TokenSemicolon) {
		pos := p.curToken.Pos
		p.nextToken()
		return &Block{SpanVal: MakeSpan(pos, p.prevEnd)}
	}
	errs := len(p.errors)
	stmt := p.ParseStatement()
	if stmt == nil && len(p.errors) > errs {
		return nil
	}
	if stmt == nil {
		return &Block{SpanVal: MakeSpan(p.curToken.Pos, p.curToken.Pos)}
	}
	return stmt
}

// ---------------------------------------------------------------------------
// Expression parsing (lowest to highest precedence)
// ---------------------------------------------------------------------------

// ParseExpression parses a full expression including assignment.
func (p *Parser) ParseExpression() Node {
	return p.parseAssignment()
}

var compoundOps = map[TokenType]BinaryOperator{
	TokenPlusAssign:  OpAdd,
	TokenMinusAssign: OpSub,
	TokenStarAssign:  OpMul,
	TokenSlashAssign: OpDiv,
}

// parseAssignment parses target = value (right-associative).
func (p *Parser) parseAssignment() Node {
	if p.curTokenIs(TokenIdentifier) && p.peekToken.Type.IsAssignOp() {
		target := p.curToken
		if _, ok := reservedConstants[target.Literal]; ok {
			p.errorf("cannot assign to constant %s", target.Literal)
			return nil
		}
		p.nextToken()
		opTok := p.curToken
		p.nextToken()

		value := p.parseAssignment()
		if value == nil {
			return nil
		}
		node := &Assignment{
			SpanVal: MakeSpan(target.Pos, value.Span().End),
			Target:  target.Literal,
			Value:   value,
		}
		if op, ok := compoundOps[opTok.Type]; ok {
			node.Compound = true
			node.Op = op
		}
		return node
	}

	expr := p.parseOr()
	if expr == nil {
		return nil
	}
	if p.curToken.Type.IsAssignOp() {
		p.errorf("invalid assignment target")
		return nil
	}
	return expr
}

// binaryLevel parses a left-associative chain of operators at one
// precedence level.
func (p *Parser) binaryLevel(next func() Node, ops map[TokenType]BinaryOperator) Node {
	left := next()
	if left == nil {
		return nil
	}
	for {
		op, ok := ops[p.curToken.Type]
		if !ok {
			return left
		}
		p.nextToken()
		right := next()
		if right == nil {
			return nil
		}
		left = &BinaryOp{
			SpanVal: MakeSpan(left.Span().Start, right.Span().End),
			Op:      op,
			Left:    left,
			Right:   right,
		}
	}
}

var (
	orOps             = map[TokenType]BinaryOperator{TokenOr: OpOr}
	andOps            = map[TokenType]BinaryOperator{TokenAnd: OpAnd}
	equalityOps       = map[TokenType]BinaryOperator{TokenEQ: OpEQ, TokenNE: OpNE}
	relationalOps     = map[TokenType]BinaryOperator{TokenLT: OpLT, TokenLE: OpLE, TokenGT: OpGT, TokenGE: OpGE}
	additiveOps       = map[TokenType]BinaryOperator{TokenPlus: OpAdd, TokenMinus: OpSub}
	multiplicativeOps = map[TokenType]BinaryOperator{TokenStar: OpMul, TokenSlash: OpDiv, TokenPercent: OpMod}
)

func (p *Parser) parseOr() Node         { return p.binaryLevel(p.parseAnd, orOps) }
func (p *Parser) parseAnd() Node        { return p.binaryLevel(p.parseEquality, andOps) }
func (p *Parser) parseEquality() Node   { return p.binaryLevel(p.parseRelational, equalityOps) }
func (p *Parser) parseRelational() Node { return p.binaryLevel(p.parseAdditive, relationalOps) }
func (p *Parser) parseAdditive() Node   { return p.binaryLevel(p.parseMultiplicative, additiveOps) }
func (p *Parser) parseMultiplicative() Node {
	return p.binaryLevel(p.parseUnary, multiplicativeOps)
}

// parseUnary parses prefix operators, including ++x and --x.
func (p *Parser) parseUnary() Node {
	startPos := p.curToken.Pos

	switch p.curToken.Type {
	case TokenMinus, TokenPlus, TokenNot:
		op := OpNeg
		if p.curTokenIs(TokenPlus) {
			op = OpPlus
		} else if p.curTokenIs(TokenNot) {
			op = OpNot
		}
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &UnaryOp{SpanVal: MakeSpan(startPos, operand.Span().End), Op: op, Operand: operand}

	case TokenIncrement, TokenDecrement:
		dec := p.curTokenIs(TokenDecrement)
		p.nextToken()
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected variable after %s, got %s", map[bool]string{false: "++", true: "--"}[dec], describe(p.curToken))
			return nil
		}
		name := p.curToken.Literal
		p.nextToken()
		return &IncDec{SpanVal: MakeSpan(startPos, p.prevEnd), Target: name, Decrement: dec, Prefix: true}
	}

	return p.parsePower()
}

// parsePower parses base ^ exponent (right-associative, binds tighter
// than unary minus on its left: -2^2 == -4).
func (p *Parser) parsePower() Node {
	base := p.parsePostfix()
	if base == nil {
		return nil
	}
	if !p.curTokenIs(TokenCaret) {
		return base
	}
	p.nextToken()
	exp := p.parseUnary()
	if exp == nil {
		return nil
	}
	return &BinaryOp{SpanVal: MakeSpan(base.Span().Start, exp.Span().End), Op: OpPow, Left: base, Right: exp}
}

// parsePostfix parses x++ and x--.
func (p *Parser) parsePostfix() Node {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}
	if !p.curTokenIs(TokenIncrement) && !p.curTokenIs(TokenDecrement) {
		return expr
	}
	ref, ok := expr.(*VariableRef)
	if !ok {
		p.errorf("%s requires a variable operand", p.curToken.Literal)
		return nil
	}
	dec := p.curTokenIs(TokenDecrement)
	p.nextToken()
	return &IncDec{SpanVal: MakeSpan(ref.SpanVal.Start, p.prevEnd), Target: ref.Name, Decrement: dec}
}

// parsePrimary parses literals, variables, calls and parenthesized
// expressions.
func (p *Parser) parsePrimary() Node {
	tok := p.curToken

	switch tok.Type {
	case TokenNumber:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf("invalid number %q", tok.Literal)
			return nil
		}
		p.nextToken()
		return &Literal{SpanVal: MakeSpan(tok.Pos, p.prevEnd), Value: v}

	case TokenIdentifier:
		if v, ok := reservedConstants[tok.Literal]; ok {
			p.nextToken()
			return &Literal{SpanVal: MakeSpan(tok.Pos, p.prevEnd), Value: v}
		}
		if p.peekTokenIs(TokenLParen) {
			return p.parseCall()
		}
		p.nextToken()
		return &VariableRef{SpanVal: MakeSpan(tok.Pos, p.prevEnd), Name: tok.Literal}

	case TokenLParen:
		p.nextToken()
		expr := p.ParseExpression()
		if expr == nil {
			return nil
		}
		if !p.expect(TokenRParen) {
			return nil
		}
		return expr

	default:
		p.errorf("unexpected %s", describe(tok))
		return nil
	}
}

// parseCall parses name(args...). Positional and info built-ins are
// tagged here so later passes never confuse them with registry functions.
func (p *Parser) parseCall() Node {
	nameTok := p.curToken
	p.nextToken() // name
	p.nextToken() // (

	call := &FunctionCall{Name: nameTok.Literal, Builtin: builtinNames[nameTok.Literal]}

	if !p.curTokenIs(TokenRParen) {
		for {
			arg := p.ParseExpression()
			if arg == nil {
				return nil
			}
			call.Args = append(call.Args, arg)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}
	if !p.expect(TokenRParen) {
		return nil
	}

	call.SpanVal = MakeSpan(nameTok.Pos, p.prevEnd)
	return call
}
