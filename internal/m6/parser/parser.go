// Package parser is m6's recursive-descent / precedence-climbing parser,
// producing an ast.Program from a token.Token stream. Modeled on
// corelx/parser.go's advance/peek/check/consume helper style and its
// panic/recover-based error-collection driver.
package parser

import (
	"rlvm/internal/m6/ast"
	"rlvm/internal/m6/token"
	"rlvm/internal/rlerr"
)

// Parser holds the token stream and current position.
type Parser struct {
	toks []token.Token
	pos  int
	errs rlerr.Batch
}

// New creates a Parser over a tokenized m6 source.
func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

// Parse runs the parser to completion, returning the parsed Program and a
// batch of accumulated diagnostics (possibly containing only warnings, or
// nil errors). Parsing never aborts early: on a syntax error the driver
// skips tokens until the next `;` or `}` and resumes (spec §4.4).
func Parse(toks []token.Token) (*ast.Program, *rlerr.Batch) {
	p := New(toks)
	prog := &ast.Program{}
	for !p.isAtEnd() {
		stmt := p.parseStmtRecovering()
		if stmt != nil {
			prog.Stmts = append(prog.Stmts, stmt)
		}
	}
	return prog, &p.errs
}

// ---- token stream helpers ----

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) isAtEnd() bool     { return p.cur().Kind == token.KindEOF }
func (p *Parser) advance() token.Token {
	t := p.cur()
	if !p.isAtEnd() {
		p.pos++
	}
	return t
}

func (p *Parser) checkPunct(s string) bool {
	t := p.cur()
	return t.Kind == token.KindPunct && t.Str == s
}

func (p *Parser) checkOp(op token.Op) bool {
	t := p.cur()
	return t.Kind == token.KindOperator && t.Op == op
}

func (p *Parser) checkReserved(r token.Reserved) bool {
	t := p.cur()
	return t.Kind == token.KindReserved && t.Reserved == r
}

func (p *Parser) matchPunct(s string) bool {
	if p.checkPunct(s) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) matchReserved(r token.Reserved) bool {
	if p.checkReserved(r) {
		p.advance()
		return true
	}
	return false
}

type parseError struct{ err *rlerr.Error }

func (p *Parser) fail(span token.Span, format string, args ...interface{}) {
	e := rlerr.Newf(rlerr.KindCompileError, rlerr.StageParse, format, args...)
	e.WithSpan(span.Start, span.End)
	panic(parseError{e})
}

func (p *Parser) expectPunct(s string) token.Span {
	if !p.checkPunct(s) {
		p.fail(p.cur().Span, "expected %q", s)
	}
	return p.advance().Span
}

// parseStmtRecovering wraps parseStmt with the panic/recover error-recovery
// driver: on failure, skip tokens until the next `;` or `}` and resume.
func (p *Parser) parseStmtRecovering() (stmt ast.Stmt) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(parseError)
			if !ok {
				panic(r)
			}
			p.errs.Add(pe.err)
			p.recover()
			stmt = nil
		}
	}()
	return p.parseStmt()
}

func (p *Parser) recover() {
	for !p.isAtEnd() {
		t := p.cur()
		if t.Kind == token.KindPunct && (t.Str == ";" || t.Str == "}") {
			p.advance()
			return
		}
		p.advance()
	}
}

func (p *Parser) parseStmt() ast.Stmt {
	switch {
	case p.checkPunct("{"):
		return p.parseBlock()
	case p.checkReserved(token.ReservedIf):
		return p.parseIf()
	case p.checkReserved(token.ReservedWhile):
		return p.parseWhile()
	case p.checkReserved(token.ReservedFor):
		return p.parseFor()
	case p.checkReserved(token.ReservedFn):
		return p.parseFn()
	case p.checkReserved(token.ReservedClass):
		return p.parseClass()
	case p.checkReserved(token.ReservedReturn):
		return p.parseReturn()
	case p.checkReserved(token.ReservedYield):
		return p.parseYield()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseBlock() *ast.BlockStmt {
	start := p.expectPunct("{")
	b := &ast.BlockStmt{Sp: token.Span{Start: start.Start}}
	for !p.checkPunct("}") && !p.isAtEnd() {
		if s := p.parseStmtRecovering(); s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
	end := p.expectPunct("}")
	b.Sp.End = end.End
	return b
}

func (p *Parser) parseIf() ast.Stmt {
	start := p.advance().Span // 'if'
	p.expectPunct("(")
	cond := p.parseExpr()
	p.expectPunct(")")
	then := p.parseStmt()
	stmt := &ast.IfStmt{Sp: token.Span{Start: start.Start, End: then.Span().End}, Cond: cond, Then: then}
	if p.matchReserved(token.ReservedElse) {
		elseStmt := p.parseStmt()
		stmt.Else = elseStmt
		stmt.Sp.End = elseStmt.Span().End
	}
	return stmt
}

func (p *Parser) parseWhile() ast.Stmt {
	start := p.advance().Span
	p.expectPunct("(")
	cond := p.parseExpr()
	p.expectPunct(")")
	body := p.parseStmt()
	return &ast.WhileStmt{Sp: token.Span{Start: start.Start, End: body.Span().End}, Cond: cond, Body: body}
}

func (p *Parser) parseFor() ast.Stmt {
	start := p.advance().Span
	p.expectPunct("(")

	var init ast.Stmt
	if !p.checkPunct(";") {
		init = p.parseExprStmtNoSemi()
	}
	p.expectPunct(";")

	var cond ast.Expr
	if !p.checkPunct(";") {
		cond = p.parseExpr()
	}
	p.expectPunct(";")

	var post ast.Expr
	if !p.checkPunct(")") {
		post = p.parseExpr()
	}
	p.expectPunct(")")

	body := p.parseStmt()
	return &ast.ForStmt{Sp: token.Span{Start: start.Start, End: body.Span().End}, Init: init, Cond: cond, Post: post, Body: body}
}

func (p *Parser) parseFn() *ast.FnDecl {
	start := p.advance().Span // 'fn'
	name := p.expectIdent()
	p.expectPunct("(")
	var params []ast.Param
	for !p.checkPunct(")") {
		param := p.parseParam()
		params = append(params, param)
		if !p.matchPunct(",") {
			break
		}
	}
	p.expectPunct(")")
	body := p.parseBlock()
	return &ast.FnDecl{Sp: token.Span{Start: start.Start, End: body.Sp.End}, Name: name, Params: params, Body: body}
}

func (p *Parser) parseParam() ast.Param {
	if p.matchOperator2("**") {
		name := p.expectIdent()
		return ast.Param{Name: name, KwRest: true}
	}
	if p.checkOp(token.OpMul) {
		p.advance()
		name := p.expectIdent()
		return ast.Param{Name: name, Rest: true}
	}
	name := p.expectIdent()
	var def ast.Expr
	if p.checkOp(token.OpAssign) {
		p.advance()
		def = p.parseAssignment()
	}
	return ast.Param{Name: name, Default: def}
}

// matchOperator2 handles the `**` kwrest marker, which the tokenizer yields
// as two consecutive OpMul tokens (no `**` entry exists in m6's expression
// operator table since `**` is not an expression operator).
func (p *Parser) matchOperator2(two string) bool {
	if two != "**" {
		return false
	}
	if p.checkOp(token.OpMul) && p.pos+1 < len(p.toks) {
		next := p.toks[p.pos+1]
		if next.Kind == token.KindOperator && next.Op == token.OpMul && next.Span.Start == p.cur().Span.End {
			p.advance()
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) parseClass() *ast.ClassDecl {
	start := p.advance().Span // 'class'
	name := p.expectIdent()
	p.expectPunct("{")
	var members []ast.ClassMember
	for !p.checkPunct("}") && !p.isAtEnd() {
		if p.checkReserved(token.ReservedFn) {
			fn := p.parseFn()
			members = append(members, ast.ClassMember{Name: fn.Name, Fn: fn})
		} else {
			name := p.expectIdent()
			p.matchPunct(";")
			members = append(members, ast.ClassMember{Name: name})
		}
	}
	end := p.expectPunct("}")
	return &ast.ClassDecl{Sp: token.Span{Start: start.Start, End: end.End}, Name: name, Members: members}
}

func (p *Parser) parseReturn() ast.Stmt {
	start := p.advance().Span
	var val ast.Expr
	if !p.checkPunct(";") {
		val = p.parseExpr()
	}
	end := p.expectPunct(";")
	return &ast.ReturnStmt{Sp: token.Span{Start: start.Start, End: end.End}, Value: val}
}

func (p *Parser) parseYield() ast.Stmt {
	start := p.advance().Span
	var val ast.Expr
	if !p.checkPunct(";") {
		val = p.parseExpr()
	}
	end := p.expectPunct(";")
	return &ast.YieldStmt{Sp: token.Span{Start: start.Start, End: end.End}, Value: val}
}

func (p *Parser) parseExprStmt() ast.Stmt {
	expr := p.parseExpr()
	end := p.expectPunct(";")
	return &ast.ExprStmt{Sp: token.Span{Start: expr.Span().Start, End: end.End}, Expr: expr}
}

// parseExprStmtNoSemi parses a for-loop init-clause expression statement
// without consuming the trailing `;` (the caller does that uniformly).
func (p *Parser) parseExprStmtNoSemi() ast.Stmt {
	expr := p.parseExpr()
	return &ast.ExprStmt{Sp: expr.Span(), Expr: expr}
}

func (p *Parser) expectIdent() string {
	if p.cur().Kind != token.KindID {
		p.fail(p.cur().Span, "expected identifier")
	}
	return p.advance().Str
}

// ---- expressions ----

func (p *Parser) parseExpr() ast.Expr { return p.parseComma() }

func (p *Parser) parseComma() ast.Expr {
	first := p.parseAssignment()
	if !p.checkPunct(",") {
		return first
	}
	exprs := []ast.Expr{first}
	for p.checkPunct(",") {
		p.advance()
		exprs = append(exprs, p.parseAssignment())
	}
	return &ast.CommaExpr{Sp: token.Span{Start: first.Span().Start, End: exprs[len(exprs)-1].Span().End}, Exprs: exprs}
}

func isLValue(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Ident, *ast.IndexExpr, *ast.MemberExpr:
		return true
	default:
		return false
	}
}

func (p *Parser) parseAssignment() ast.Expr {
	left := p.parseLogicalOr()
	if p.cur().Kind == token.KindOperator && token.IsAssignOp(p.cur().Op) {
		op := p.cur().Op
		if !isLValue(left) {
			p.fail(left.Span(), "left-hand side of assignment must be an identifier")
		}
		p.advance()
		right := p.parseAssignment() // right-associative
		base, compound := token.BaseOp(op)
		return &ast.AssignExpr{
			Sp:         token.Span{Start: left.Span().Start, End: right.Span().End},
			Target:     left,
			Op:         base,
			IsCompound: compound,
			Value:      right,
		}
	}
	return left
}

func (p *Parser) binaryLevel(next func() ast.Expr, ops ...token.Op) func() ast.Expr {
	return func() ast.Expr {
		left := next()
		for {
			matched := false
			for _, op := range ops {
				if p.checkOp(op) {
					p.advance()
					right := next()
					left = &ast.BinaryExpr{Sp: token.Span{Start: left.Span().Start, End: right.Span().End}, Op: op, Left: left, Right: right}
					matched = true
					break
				}
			}
			if !matched {
				return left
			}
		}
	}
}

func (p *Parser) parseLogicalOr() ast.Expr {
	return p.binaryLevel(p.parseLogicalAnd, token.OpLogicalOr)()
}
func (p *Parser) parseLogicalAnd() ast.Expr {
	return p.binaryLevel(p.parseBitOr, token.OpLogicalAnd)()
}
func (p *Parser) parseBitOr() ast.Expr { return p.binaryLevel(p.parseBitXor, token.OpBitOr)() }
func (p *Parser) parseBitXor() ast.Expr { return p.binaryLevel(p.parseBitAnd, token.OpBitXor)() }
func (p *Parser) parseBitAnd() ast.Expr { return p.binaryLevel(p.parseEquality, token.OpBitAnd)() }
func (p *Parser) parseEquality() ast.Expr {
	return p.binaryLevel(p.parseComparison, token.OpEqual, token.OpNotEqual)()
}
func (p *Parser) parseComparison() ast.Expr {
	return p.binaryLevel(p.parseShift, token.OpLess, token.OpLessEqual, token.OpGreater, token.OpGreaterEqual)()
}
func (p *Parser) parseShift() ast.Expr {
	return p.binaryLevel(p.parseAdditive, token.OpShl, token.OpShr, token.OpShrUnsigned)()
}
func (p *Parser) parseAdditive() ast.Expr {
	return p.binaryLevel(p.parseMultiplicative, token.OpAdd, token.OpSub)()
}
func (p *Parser) parseMultiplicative() ast.Expr {
	return p.binaryLevel(p.parseUnary, token.OpMul, token.OpDiv, token.OpMod)()
}

func (p *Parser) parseUnary() ast.Expr {
	if p.cur().Kind == token.KindOperator {
		switch p.cur().Op {
		case token.OpAdd, token.OpSub, token.OpTilde:
			op := p.cur().Op
			start := p.advance().Span
			operand := p.parseUnary()
			return &ast.UnaryExpr{Sp: token.Span{Start: start.Start, End: operand.Span().End}, Op: op, Operand: operand}
		}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch {
		case p.checkPunct("("):
			p.advance()
			var args []ast.Expr
			for !p.checkPunct(")") {
				args = append(args, p.parseAssignment())
				if !p.matchPunct(",") {
					break
				}
			}
			end := p.expectPunct(")")
			expr = &ast.CallExpr{Sp: token.Span{Start: expr.Span().Start, End: end.End}, Callee: expr, Args: args}
		case p.checkPunct("["):
			p.advance()
			idx := p.parseExpr()
			end := p.expectPunct("]")
			expr = &ast.IndexExpr{Sp: token.Span{Start: expr.Span().Start, End: end.End}, Target: expr, Idx: idx}
		case p.checkPunct("."):
			p.advance()
			name := p.expectIdent()
			expr = &ast.MemberExpr{Sp: token.Span{Start: expr.Span().Start, End: p.toks[p.pos-1].Span.End}, Target: expr, Name: name}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	t := p.cur()
	switch {
	case t.Kind == token.KindInt:
		p.advance()
		return &ast.IntLit{Sp: t.Span, Value: t.IntVal}
	case t.Kind == token.KindLiteral:
		p.advance()
		return &ast.StringLit{Sp: t.Span, Value: t.Str}
	case t.Kind == token.KindID:
		p.advance()
		return &ast.Ident{Sp: t.Span, Name: t.Str}
	case p.checkPunct("("):
		p.advance()
		e := p.parseExpr()
		p.expectPunct(")")
		return e
	default:
		p.fail(t.Span, "expected expression")
		return nil
	}
}
