package compiler

import (
	"fmt"

	"rlvm/internal/m6/ast"
	"rlvm/internal/m6/token"
	"rlvm/internal/rlerr"
	"rlvm/internal/rlvalue"
)

// scope is one PushScope/PopScope frame: a name→local-slot map. Scopes form
// a chain so FindLocal can walk from innermost outward (spec §4.5).
type scope struct {
	parent *scope
	names  map[string]int
}

// funcCtx tracks per-function compilation state: its local-slot counter and
// emitted code, plus the scope chain currently open within it.
type funcCtx struct {
	fn        *Function
	cur       *scope
	nextLocal int
}

// Compiler lowers an *ast.Program into a *Program. The package-level
// Compile function constructs one with New from a list of native names.
type Compiler struct {
	consts    []rlvalue.Value
	constIdx  map[string]int // dedup key -> index, keyed by Kind+literal text
	globals   map[string]struct{}
	natives   map[string]struct{}
	functions map[string]*Function
	errs      rlerr.Batch

	fc *funcCtx
}

// New creates a Compiler. natives lists native function names. A call by
// name compiles to OpCall carrying the name, which the VM resolves against
// its native table at run time; a native name used as a plain value
// compiles to OpLoadGlobal without being recorded as a global. Natives are
// not lowered to constant loads.
func New(natives []string) *Compiler {
	c := &Compiler{
		constIdx:  make(map[string]int),
		globals:   make(map[string]struct{}),
		natives:   make(map[string]struct{}, len(natives)),
		functions: make(map[string]*Function),
	}
	for _, n := range natives {
		c.natives[n] = struct{}{}
	}
	return c
}

// Compile lowers prog to a bytecode Program. Compiler errors are
// accumulated into a Batch and never abort the pass early (spec §4.5,
// mirroring the tokenizer/parser's error-recovery contract).
func Compile(prog *ast.Program, natives []string) (*Program, *rlerr.Batch) {
	c := New(natives)
	top := &Function{Name: "<main>"}
	c.fc = &funcCtx{fn: top}
	c.pushScope()
	// The trailing top-level expression statement, if any, keeps its value
	// on the stack instead of discarding it with the usual OpPop: this is
	// the "intermediate result" the ScriptEngine/REPL driver snapshots
	// (spec §4.5) — the VM itself neither knows nor cares that this is the
	// last statement, it is simply bytecode that happens not to pop.
	for i, stmt := range prog.Stmts {
		if i == len(prog.Stmts)-1 {
			if es, ok := stmt.(*ast.ExprStmt); ok {
				c.compileExpr(es.Expr)
				continue
			}
		}
		c.compileTopStmt(stmt)
	}
	c.popScope()

	top.Code = append(top.Code, Instr{Op: OpHalt})
	top.NumLocals = c.fc.nextLocal

	return &Program{
		Constants: c.consts,
		Functions: c.functions,
		Code:      top.Code,
		NumLocals: top.NumLocals,
	}, &c.errs
}

// compileTopStmt recognizes FnDecl/ClassDecl at the top level (registered
// into the function table) and otherwise compiles a normal statement.
func (c *Compiler) compileTopStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.FnDecl:
		c.compileFnDecl(s)
	case *ast.ClassDecl:
		c.compileClassDecl(s)
	default:
		c.compileStmt(stmt)
	}
}

func (c *Compiler) fail(span token.Span, format string, args ...interface{}) {
	e := rlerr.Newf(rlerr.KindCompileError, rlerr.StageCompile, format, args...)
	e.WithSpan(span.Start, span.End)
	c.errs.Add(e)
}

// ---- scopes ----

func (c *Compiler) pushScope() {
	c.fc.cur = &scope{parent: c.fc.cur, names: make(map[string]int)}
}

func (c *Compiler) popScope() {
	c.fc.cur = c.fc.cur.parent
}

// addLocal assigns the next slot in the current function's local frame.
func (c *Compiler) addLocal(name string) int {
	slot := c.fc.nextLocal
	c.fc.nextLocal++
	c.fc.cur.names[name] = slot
	return slot
}

// findLocal walks scopes from innermost outward, per spec §4.5.
func (c *Compiler) findLocal(name string) (int, bool) {
	for s := c.fc.cur; s != nil; s = s.parent {
		if slot, ok := s.names[name]; ok {
			return slot, true
		}
	}
	return 0, false
}

// ---- constants ----

func (c *Compiler) constInt(v int32) int    { return c.internConst(fmt.Sprintf("i%d", v), rlvalue.Int(v)) }
func (c *Compiler) constStr(v string) int   { return c.internConst("s"+v, rlvalue.Str(v)) }

func (c *Compiler) internConst(key string, v rlvalue.Value) int {
	if idx, ok := c.constIdx[key]; ok {
		return idx
	}
	idx := len(c.consts)
	c.consts = append(c.consts, v)
	c.constIdx[key] = idx
	return idx
}

func (c *Compiler) emit(i Instr) int {
	c.fc.fn.Code = append(c.fc.fn.Code, i)
	return len(c.fc.fn.Code) - 1
}

// patchJumpHere rewrites the target of a previously emitted Jump/JumpIfFalse
// instruction at idx to point at the current end of the code (the
// just-compiled statement's start, or the current length for "after").
func (c *Compiler) patchJumpHere(idx int) {
	c.fc.fn.Code[idx].A = int32(len(c.fc.fn.Code))
}

// ---- statements ----

func (c *Compiler) compileStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		c.pushScope()
		for _, st := range s.Stmts {
			c.compileTopStmt(st)
		}
		c.popScope()
	case *ast.ExprStmt:
		c.compileExpr(s.Expr)
		c.emit(Instr{Op: OpPop})
	case *ast.IfStmt:
		c.compileIf(s)
	case *ast.WhileStmt:
		c.compileWhile(s)
	case *ast.ForStmt:
		c.compileFor(s)
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.emit(Instr{Op: OpConst, A: int32(c.internConst("nil", rlvalue.Nil)) })
		}
		c.emit(Instr{Op: OpReturn})
	case *ast.YieldStmt:
		// m6 has no coroutine scheduler in this runtime; yield evaluates its
		// operand for side effects and discards the result, same as a bare
		// expression statement, since there is no generator frame to suspend.
		if s.Value != nil {
			c.compileExpr(s.Value)
			c.emit(Instr{Op: OpPop})
		}
	case *ast.FnDecl:
		c.compileFnDecl(s)
	case *ast.ClassDecl:
		c.compileClassDecl(s)
	default:
		c.fail(stmt.Span(), "unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileIf(s *ast.IfStmt) {
	c.compileExpr(s.Cond)
	jf := c.emit(Instr{Op: OpJumpIfFalse})
	c.compileStmt(s.Then)
	if s.Else == nil {
		c.patchJumpHere(jf)
		return
	}
	jend := c.emit(Instr{Op: OpJump})
	c.patchJumpHere(jf)
	c.compileStmt(s.Else)
	c.patchJumpHere(jend)
}

func (c *Compiler) compileWhile(s *ast.WhileStmt) {
	loopStart := len(c.fc.fn.Code)
	c.compileExpr(s.Cond)
	jf := c.emit(Instr{Op: OpJumpIfFalse})
	c.compileStmt(s.Body)
	c.emit(Instr{Op: OpJump, A: int32(loopStart)})
	c.patchJumpHere(jf)
}

func (c *Compiler) compileFor(s *ast.ForStmt) {
	c.pushScope()
	if s.Init != nil {
		c.compileStmt(s.Init)
	}
	loopStart := len(c.fc.fn.Code)
	var jf int
	hasCond := s.Cond != nil
	if hasCond {
		c.compileExpr(s.Cond)
		jf = c.emit(Instr{Op: OpJumpIfFalse})
	}
	c.compileStmt(s.Body)
	if s.Post != nil {
		c.compileExpr(s.Post)
		c.emit(Instr{Op: OpPop})
	}
	c.emit(Instr{Op: OpJump, A: int32(loopStart)})
	if hasCond {
		c.patchJumpHere(jf)
	}
	c.popScope()
}

func (c *Compiler) compileFnDecl(s *ast.FnDecl) {
	parent := c.fc
	fn := &Function{Name: s.Name}
	c.fc = &funcCtx{fn: fn}
	c.pushScope()
	var params []string
	var defaults []*Function
	for _, p := range s.Params {
		c.addLocal(p.Name)
		params = append(params, p.Name)
		if p.Default != nil {
			dfn := c.compileDefaultThunk(p.Default)
			defaults = append(defaults, dfn)
		} else {
			defaults = append(defaults, nil)
		}
		fn.Rest = fn.Rest || p.Rest
		fn.KwRest = fn.KwRest || p.KwRest
	}
	fn.ParamNames = params
	fn.Defaults = defaults
	c.compileStmt(s.Body)
	c.emit(Instr{Op: OpConst, A: int32(c.internConst("nil", rlvalue.Nil))})
	c.emit(Instr{Op: OpReturn})
	fn.NumLocals = c.fc.nextLocal
	c.popScope()
	c.fc = parent
	c.functions[s.Name] = fn
}

// compileDefaultThunk compiles a parameter default into its own tiny
// zero-local function, evaluated by the VM when a call omits the argument.
func (c *Compiler) compileDefaultThunk(e ast.Expr) *Function {
	parent := c.fc
	fn := &Function{Name: "<default>"}
	c.fc = &funcCtx{fn: fn}
	c.pushScope()
	c.compileExpr(e)
	c.emit(Instr{Op: OpReturn})
	fn.NumLocals = c.fc.nextLocal
	c.popScope()
	c.fc = parent
	return fn
}

// compileClassDecl lowers each method to a function named "ClassName.method";
// m6 classes carry no runtime instance representation in this engine beyond
// their method table (spec's object model is covered by rlvalue.Object).
func (c *Compiler) compileClassDecl(s *ast.ClassDecl) {
	for _, m := range s.Members {
		if m.Fn == nil {
			continue
		}
		named := *m.Fn
		named.Name = s.Name + "." + m.Fn.Name
		c.compileFnDecl(&named)
	}
}

// ---- expressions ----

func (c *Compiler) compileExpr(e ast.Expr) {
	switch x := e.(type) {
	case *ast.IntLit:
		c.emit(Instr{Op: OpConst, A: int32(c.constInt(x.Value))})
	case *ast.StringLit:
		c.emit(Instr{Op: OpConst, A: int32(c.constStr(x.Value))})
	case *ast.Ident:
		c.compileLoad(x)
	case *ast.BinaryExpr:
		c.compileExpr(x.Right)
		c.compileExpr(x.Left)
		c.emit(Instr{Op: OpBinary, Bin: binOpFor(x.Op)})
	case *ast.UnaryExpr:
		c.compileExpr(x.Operand)
		// Unary + is the identity: per spec §4.4 it's accepted at the same
		// precedence level as - and ~, but it has no effect on the operand,
		// so no UnaryOp instruction is emitted at all.
		if x.Op != token.OpAdd {
			c.emit(Instr{Op: OpUnary, Un: unaryOpFor(x.Op)})
		}
	case *ast.AssignExpr:
		c.compileAssign(x)
	case *ast.CallExpr:
		c.compileCall(x)
	case *ast.IndexExpr:
		c.compileExpr(x.Target)
		c.compileExpr(x.Idx)
		c.emit(Instr{Op: OpIndex})
	case *ast.MemberExpr:
		c.compileExpr(x.Target)
		c.emit(Instr{Op: OpMember, Str: x.Name})
	case *ast.CommaExpr:
		for i, sub := range x.Exprs {
			c.compileExpr(sub)
			if i != len(x.Exprs)-1 {
				c.emit(Instr{Op: OpPop})
			}
		}
	default:
		c.fail(e.Span(), "unsupported expression %T", e)
	}
}

func (c *Compiler) compileLoad(id *ast.Ident) {
	if slot, ok := c.findLocal(id.Name); ok {
		c.emit(Instr{Op: OpLoadLocal, A: int32(slot)})
		return
	}
	if _, ok := c.natives[id.Name]; ok {
		c.emit(Instr{Op: OpLoadGlobal, Str: id.Name})
		return
	}
	c.globals[id.Name] = struct{}{}
	c.emit(Instr{Op: OpLoadGlobal, Str: id.Name})
}

func (c *Compiler) compileStore(id *ast.Ident) {
	if slot, ok := c.findLocal(id.Name); ok {
		c.emit(Instr{Op: OpStoreLocal, A: int32(slot)})
		return
	}
	c.globals[id.Name] = struct{}{}
	c.emit(Instr{Op: OpStoreGlobal, Str: id.Name})
}

// compileAssign lowers `target = value` and `target OP= value`. Plain
// BinaryExpr compilation pushes rhs then lhs so the VM can pop lhs, rhs in
// that order (spec §4.5); compound assignment to a local/global follows the
// same convention. Compound assignment to a computed l-value (x[i] or
// x.name) instead uses a dedicated read-combine-write opcode so the target
// expression is evaluated exactly once.
func (c *Compiler) compileAssign(a *ast.AssignExpr) {
	switch target := a.Target.(type) {
	case *ast.Ident:
		if a.IsCompound {
			c.compileExpr(a.Value)
			c.compileLoad(target)
			c.emit(Instr{Op: OpBinary, Bin: binOpFor(a.Op)})
		} else {
			c.compileExpr(a.Value)
		}
		c.emit(Instr{Op: OpDup})
		c.compileStore(target)
	case *ast.IndexExpr:
		c.compileExpr(target.Target)
		c.compileExpr(target.Idx)
		c.compileExpr(a.Value)
		if a.IsCompound {
			c.emit(Instr{Op: OpCompoundSetIndex, Bin: binOpFor(a.Op)})
		} else {
			c.emit(Instr{Op: OpSetIndex})
		}
	case *ast.MemberExpr:
		c.compileExpr(target.Target)
		c.compileExpr(a.Value)
		if a.IsCompound {
			c.emit(Instr{Op: OpCompoundSetMember, Str: target.Name, Bin: binOpFor(a.Op)})
		} else {
			c.emit(Instr{Op: OpSetMember, Str: target.Name})
		}
	default:
		c.fail(a.Span(), "invalid assignment target %T", a.Target)
	}
}

func (c *Compiler) compileCall(call *ast.CallExpr) {
	for _, arg := range call.Args {
		c.compileExpr(arg)
	}
	if id, ok := call.Callee.(*ast.Ident); ok {
		c.emit(Instr{Op: OpCall, A: int32(len(call.Args)), Str: id.Name})
		return
	}
	c.compileExpr(call.Callee)
	c.emit(Instr{Op: OpCall, A: int32(len(call.Args))})
}

func binOpFor(op token.Op) rlvalue.Op {
	switch op {
	case token.OpAdd:
		return rlvalue.OpAdd
	case token.OpSub:
		return rlvalue.OpSub
	case token.OpMul:
		return rlvalue.OpMul
	case token.OpDiv:
		return rlvalue.OpDiv
	case token.OpMod:
		return rlvalue.OpMod
	case token.OpBitAnd:
		return rlvalue.OpBitAnd
	case token.OpBitOr:
		return rlvalue.OpBitOr
	case token.OpBitXor:
		return rlvalue.OpBitXor
	case token.OpShl:
		return rlvalue.OpShl
	case token.OpShr:
		return rlvalue.OpShr
	case token.OpShrUnsigned:
		return rlvalue.OpShrUnsigned
	case token.OpEqual:
		return rlvalue.OpEqual
	case token.OpNotEqual:
		return rlvalue.OpNotEqual
	case token.OpLess:
		return rlvalue.OpLess
	case token.OpLessEqual:
		return rlvalue.OpLessEqual
	case token.OpGreater:
		return rlvalue.OpGreater
	case token.OpGreaterEqual:
		return rlvalue.OpGreaterEqual
	case token.OpLogicalAnd:
		return rlvalue.OpLogicalAnd
	case token.OpLogicalOr:
		return rlvalue.OpLogicalOr
	default:
		return rlvalue.OpAdd
	}
}

// unaryOpFor maps a unary operator token to its rlvalue op. Unary + never
// reaches here (the identity case is handled in compileExpr before this is
// called), and parseUnary never produces any other operator, so default is
// an internal-error path rather than a silent alias for negation.
func unaryOpFor(op token.Op) rlvalue.UnaryOp {
	switch op {
	case token.OpSub:
		return rlvalue.UnaryNeg
	case token.OpTilde:
		return rlvalue.UnaryBitNot
	default:
		panic(fmt.Sprintf("unaryOpFor: unreachable unary operator %v", op))
	}
}
