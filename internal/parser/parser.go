// Package parser builds an AST from pattern-expression tokens.
//
// Expressions use top-down operator precedence. Ranges and parenthesised
// groups share "(" and a first expression, so the token after it picks the
// form. Mutation sequences and bare "<" comparisons are told apart with a
// checkpoint on the token cursor that scans literals only and always
// rewinds.
package parser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/patex/internal/ast"
	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/lexer"
	"github.com/roach88/patex/internal/scalar"
	"github.com/roach88/patex/internal/token"
)

// Binding powers, low to high.
const (
	precLowest = iota
	precBitwise
	precCompare
	precAdditive
	precMultiplicative
	precShift
	precOr
	precAnd
	precUnary
)

var infixPrec = map[string]int{
	"&":  precBitwise,
	"|":  precBitwise,
	"^":  precBitwise,
	"==": precCompare,
	"!=": precCompare,
	"<":  precCompare,
	">":  precCompare,
	"<=": precCompare,
	">=": precCompare,
	"+":  precAdditive,
	"-":  precAdditive,
	"*":  precMultiplicative,
	"/":  precMultiplicative,
	"%":  precMultiplicative,
	"<<": precShift,
	">>": precShift,
	"||": precOr,
	"&&": precAnd,
}

var compareOps = map[string]bool{
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
}

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// Parser holds the cursor for one parse.
type Parser struct {
	cur *token.Cursor
}

// Parse tokenizes and parses src. The returned program keeps the NFC
// normalised source in Source.
func Parse(src string) (*ast.Program, error) {
	norm, toks, err := lexer.Scan(src)
	if err != nil {
		return nil, err
	}
	prog, err := ParseTokens(toks)
	if err != nil {
		return nil, err
	}
	prog.Source = norm
	return prog, nil
}

// ParseTokens parses an already tokenized source.
func ParseTokens(toks []token.Token) (*ast.Program, error) {
	p := &Parser{cur: token.NewCursor(toks)}
	return p.parseProgram()
}

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for {
		p.skipSemicolons()
		if p.cur.Peek().Kind == token.EOF {
			return prog, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmt)
	}
}

func (p *Parser) skipSemicolons() {
	for p.cur.Peek().IsOp(";") {
		p.cur.Next()
	}
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	tok := p.cur.Peek()
	if tok.Kind == token.Keyword {
		switch tok.Text {
		case "let":
			return p.parseLet()
		case "if":
			return p.parseIf()
		case "func":
			return p.parseFunc()
		case "return":
			return p.parseReturn()
		case "while":
			return p.parseWhile()
		case "break":
			p.cur.Next()
			return &ast.Break{Token: tok}, nil
		case "for":
			return nil, p.errorAt(tok, diag.CodeUnsupported, "for loops are not supported")
		default:
			return nil, p.unexpected(tok)
		}
	}

	if tok.Kind == token.Identifier {
		if op := p.cur.PeekAt(1); op.Kind == token.Operator && assignOps[op.Text] {
			return p.parseAssign()
		}
	}

	x, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	return &ast.ExprStmt{X: x}, nil
}

func (p *Parser) parseLet() (ast.Stmt, error) {
	letTok := p.cur.Next()
	name, err := p.expectKind(token.Identifier, "identifier")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp("="); err != nil {
		return nil, err
	}
	value, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	return &ast.Let{Token: letTok, Name: name.Text, Value: value}, nil
}

func (p *Parser) parseAssign() (ast.Stmt, error) {
	name := p.cur.Next()
	op := p.cur.Next()
	value, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	return &ast.Assign{Token: name, Name: name.Text, Op: op.Text, Value: value}, nil
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	ifTok := p.cur.Next()
	cond, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &ast.If{Token: ifTok, Cond: cond, Then: then}

	if !p.cur.Peek().Is(token.Keyword, "else") {
		return stmt, nil
	}
	p.cur.Next()
	if p.cur.Peek().Is(token.Keyword, "if") {
		stmt.Else, err = p.parseIf()
	} else {
		stmt.Else, err = p.parseBlock()
	}
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseFunc() (ast.Stmt, error) {
	funcTok := p.cur.Next()
	name, err := p.expectKind(token.Identifier, "function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectBracket("("); err != nil {
		return nil, err
	}

	var params []string
	for !p.cur.Peek().IsBracket(")") {
		if len(params) > 0 {
			if _, err := p.expectOp(","); err != nil {
				return nil, err
			}
		}
		param, err := p.expectKind(token.Identifier, "parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, param.Text)
	}
	p.cur.Next()

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Func{Token: funcTok, Name: name.Text, Params: params, Body: body}, nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	retTok := p.cur.Next()
	next := p.cur.Peek()
	if next.Kind == token.EOF || next.IsOp(";") || next.IsBracket("}") {
		return &ast.Return{Token: retTok}, nil
	}
	value, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	return &ast.Return{Token: retTok, Value: value}, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	whileTok := p.cur.Next()
	cond, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.While{Token: whileTok, Cond: cond, Body: body}, nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	open, err := p.expectBracket("{")
	if err != nil {
		return nil, err
	}
	block := &ast.Block{Token: open}
	for {
		p.skipSemicolons()
		tok := p.cur.Peek()
		if tok.IsBracket("}") {
			p.cur.Next()
			return block, nil
		}
		if tok.Kind == token.EOF {
			return nil, p.unexpected(tok)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
}

// parseExpr parses an expression whose infix operators bind tighter than
// minPrec.
func (p *Parser) parseExpr(minPrec int) (ast.Expr, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		op := p.cur.Peek()
		if op.Kind != token.Operator {
			return left, nil
		}
		prec, ok := infixPrec[op.Text]
		if !ok || prec <= minPrec {
			return left, nil
		}
		p.cur.Next()
		right, err := p.parseExpr(prec)
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Token: op, Op: op.Text, Left: left, Right: right}
	}
}

func (p *Parser) parsePrefix() (ast.Expr, error) {
	tok := p.cur.Peek()
	switch tok.Kind {
	case token.EOF:
		return nil, p.unexpected(tok)
	case token.Integer, token.Float:
		return p.parseNumber()
	case token.String:
		p.cur.Next()
		return &ast.Scalar{Token: tok, Value: scalar.String(tok.Text)}, nil
	case token.Boolean:
		p.cur.Next()
		return &ast.Scalar{Token: tok, Value: scalar.Bool(tok.Text == "true")}, nil
	case token.Identifier:
		return p.parseIdentifier()
	case token.Operator:
		return p.parsePrefixOperator()
	case token.Bracket:
		switch tok.Text {
		case "(":
			return p.parseParen()
		case "[":
			return p.parseRange()
		case "{":
			return p.parseArrow()
		}
	}
	return nil, p.unexpected(tok)
}

func (p *Parser) parseNumber() (ast.Expr, error) {
	tok := p.cur.Next()
	var value scalar.Value
	if tok.Kind == token.Integer {
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, p.errorAt(tok, diag.CodeBadLiteral, "invalid integer %s", tok.Text)
		}
		value = scalar.Int(n)
	} else {
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, p.errorAt(tok, diag.CodeBadLiteral, "invalid float %s", tok.Text)
		}
		value = scalar.Float(f)
	}

	// A unit glued to the number makes a duration: "5s", "250ms".
	unit := p.cur.Peek()
	if unit.Kind == token.Identifier && unit.Offset == tok.End() {
		scale, ok := durationUnits[unit.Text]
		if !ok {
			return nil, p.errorAt(unit, diag.CodeBadLiteral, "unknown duration unit %q", unit.Text)
		}
		p.cur.Next()
		f, _ := scalar.ToFloat(value)
		return &ast.Duration{
			Token: tok,
			Text:  tok.Text + unit.Text,
			Value: time.Duration(f * float64(scale)),
		}, nil
	}
	return &ast.Scalar{Token: tok, Value: value}, nil
}

// parseIdentifier handles variables, calls and chains.
func (p *Parser) parseIdentifier() (ast.Expr, error) {
	name := p.cur.Next()
	if !p.atCallOpen() {
		return &ast.Variable{Token: name, Name: name.Text}, nil
	}

	first, err := p.parseCallRest(name)
	if err != nil {
		return nil, err
	}
	stages := []*ast.Call{first}
	for p.cur.Peek().IsOp(".") {
		p.cur.Next()
		stageName, err := p.expectKind(token.Identifier, "stage name")
		if err != nil {
			return nil, err
		}
		if !p.atCallOpen() {
			return nil, p.expected("(", p.cur.Peek())
		}
		stage, err := p.parseCallRest(stageName)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}

	// Link right to left so stage order reads left to right.
	var chain ast.Expr = stages[len(stages)-1]
	for i := len(stages) - 2; i >= 0; i-- {
		chain = &ast.Pipe{Token: stages[i].Token, Stage: stages[i], Next: chain}
	}
	return chain, nil
}

// atCallOpen reports whether the next tokens open an argument list, either
// "(" or the strict form "!(".
func (p *Parser) atCallOpen() bool {
	next := p.cur.Peek()
	if next.IsBracket("(") {
		return true
	}
	if !next.IsOp("!") {
		return false
	}
	p.cur.Next()
	ok := p.cur.Peek().IsBracket("(")
	p.cur.PutBack()
	return ok
}

func (p *Parser) parseCallRest(name token.Token) (*ast.Call, error) {
	call := &ast.Call{Token: name, Name: name.Text}
	if p.cur.Peek().IsOp("!") {
		p.cur.Next()
		call.Strict = true
	}
	if _, err := p.expectBracket("("); err != nil {
		return nil, err
	}
	for !p.cur.Peek().IsBracket(")") {
		if len(call.Args) > 0 {
			if _, err := p.expectOp(","); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
	}
	p.cur.Next()
	return call, nil
}

func (p *Parser) parsePrefixOperator() (ast.Expr, error) {
	tok := p.cur.Peek()
	switch {
	case tok.Text == "<":
		if p.probeMutation() {
			return p.parseMutation()
		}
		return p.parseCompare()
	case compareOps[tok.Text]:
		return p.parseCompare()
	case tok.Text == "!" || tok.Text == "-":
		p.cur.Next()
		operand, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Token: tok, Op: tok.Text, Operand: operand}, nil
	case tok.Text == "+":
		p.cur.Next()
		return p.parseExpr(precUnary)
	}
	return nil, p.unexpected(tok)
}

// parseCompare parses a bare comparison whose left operand is the current
// event value.
func (p *Parser) parseCompare() (ast.Expr, error) {
	op := p.cur.Next()
	operand, err := p.parseExpr(precUnary)
	if err != nil {
		return nil, err
	}
	return &ast.Compare{Token: op, Op: op.Text, Operand: operand}, nil
}

// probeMutation scans ahead for "<" scalar ("," scalar)* ">" without
// consuming anything.
func (p *Parser) probeMutation() bool {
	p.cur.Record()
	defer p.cur.Rewind()

	p.cur.Next() // <
	for {
		if !p.cur.Next().IsLiteral() {
			return false
		}
		sep := p.cur.Next()
		switch {
		case sep.IsOp(">"):
			return true
		case sep.IsOp(","):
			continue
		default:
			return false
		}
	}
}

// parseMutation lowers "<a,b,c>" to the arrow sequence {==a}->{==b}->{==c}.
func (p *Parser) parseMutation() (ast.Expr, error) {
	open := p.cur.Next()
	arrow := &ast.Arrow{Token: open}
	for {
		lit, err := p.parsePrefix()
		if err != nil {
			return nil, err
		}
		eq := token.Token{
			Kind:   token.Operator,
			Text:   "==",
			Offset: lit.Tok().Offset,
			Line:   lit.Tok().Line,
			Column: lit.Tok().Column,
		}
		arrow.Stages = append(arrow.Stages, &ast.Compare{Token: eq, Op: "==", Operand: lit})

		sep := p.cur.Next()
		if sep.IsOp(">") {
			return arrow, nil
		}
		if !sep.IsOp(",") {
			return nil, p.expected("',' or '>'", sep)
		}
	}
}

// parseParen parses "(" and one expression, then lets the next token
// decide: "," makes it a range, ")" closes a group. "(1,2)" is a range,
// "((1,1)||(1,2))" is a group of two ranges.
func (p *Parser) parseParen() (ast.Expr, error) {
	open := p.cur.Next()
	x, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	switch next := p.cur.Peek(); {
	case next.IsOp(","):
		return p.finishRange(open, x)
	case next.IsBracket(")"):
		p.cur.Next()
		return x, nil
	default:
		return nil, p.expected("',' or ')'", next)
	}
}

func (p *Parser) parseRange() (ast.Expr, error) {
	open := p.cur.Next()
	lower, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	return p.finishRange(open, lower)
}

// finishRange parses the "," upper closer tail of a range.
func (p *Parser) finishRange(open token.Token, lower ast.Expr) (ast.Expr, error) {
	if _, err := p.expectOp(","); err != nil {
		return nil, err
	}
	upper, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	closer := p.cur.Next()
	if !closer.IsBracket(")") && !closer.IsBracket("]") {
		return nil, p.expected("')' or ']'", closer)
	}
	return &ast.Range{
		Token:          open,
		Lower:          lower,
		Upper:          upper,
		LowerInclusive: open.Text == "[",
		UpperInclusive: closer.Text == "]",
	}, nil
}

func (p *Parser) parseArrow() (ast.Expr, error) {
	arrow := &ast.Arrow{Token: p.cur.Peek()}
	for {
		if _, err := p.expectBracket("{"); err != nil {
			return nil, err
		}
		stage, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expectBracket("}"); err != nil {
			return nil, err
		}
		arrow.Stages = append(arrow.Stages, stage)

		if !p.cur.Peek().IsOp("->") {
			return arrow, nil
		}
		p.cur.Next()
	}
}

func (p *Parser) expectKind(kind token.Kind, what string) (token.Token, error) {
	tok := p.cur.Next()
	if tok.Kind != kind {
		return tok, p.expected(what, tok)
	}
	return tok, nil
}

func (p *Parser) expectOp(text string) (token.Token, error) {
	tok := p.cur.Next()
	if !tok.IsOp(text) {
		return tok, p.expected("'"+text+"'", tok)
	}
	return tok, nil
}

func (p *Parser) expectBracket(text string) (token.Token, error) {
	tok := p.cur.Next()
	if !tok.IsBracket(text) {
		return tok, p.expected("'"+text+"'", tok)
	}
	return tok, nil
}

func (p *Parser) expected(what string, got token.Token) error {
	if got.Kind == token.EOF {
		return p.errorAt(got, diag.CodeUnexpectedEOF, "expected %s, got end of input", what)
	}
	return p.errorAt(got, diag.CodeExpectedToken, "expected %s, got %s", what, describe(got))
}

func (p *Parser) unexpected(tok token.Token) error {
	if tok.Kind == token.EOF {
		return p.errorAt(tok, diag.CodeUnexpectedEOF, "unexpected end of input")
	}
	return p.errorAt(tok, diag.CodeUnexpectedToken, "unexpected %s", describe(tok))
}

func (p *Parser) errorAt(tok token.Token, code, format string, args ...any) error {
	text := tok.Text
	if tok.Kind == token.String {
		text = fmt.Sprintf("%q", tok.Text)
	}
	return diag.New(diag.PhaseSyntax, code, tok.Pos(), format, args...).WithToken(text)
}

func describe(tok token.Token) string {
	switch tok.Kind {
	case token.EOF:
		return "end of input"
	case token.String:
		return fmt.Sprintf("string %q", tok.Text)
	default:
		return fmt.Sprintf("%s %q", tok.Kind, tok.Text)
	}
}
