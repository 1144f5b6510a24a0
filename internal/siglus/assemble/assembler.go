package assemble

import (
	"rlvm/internal/rlerr"
	"rlvm/internal/rllog"
	"rlvm/internal/rlvalue"
	"rlvm/internal/siglus/lexer"
)

func binOpFor(code OperatorCode) (rlvalue.Op, bool) {
	switch code {
	case OperPlus:
		return rlvalue.OpAdd, true
	case OperMinus:
		return rlvalue.OpSub, true
	case OperMult:
		return rlvalue.OpMul, true
	case OperDiv:
		return rlvalue.OpDiv, true
	case OperMod:
		return rlvalue.OpMod, true
	case OperEqual:
		return rlvalue.OpEqual, true
	case OperNe:
		return rlvalue.OpNotEqual, true
	case OperGt:
		return rlvalue.OpGreater, true
	case OperGe:
		return rlvalue.OpGreaterEqual, true
	case OperLt:
		return rlvalue.OpLess, true
	case OperLe:
		return rlvalue.OpLessEqual, true
	case OperLogicalAnd:
		return rlvalue.OpLogicalAnd, true
	case OperLogicalOr:
		return rlvalue.OpLogicalOr, true
	case OperAnd:
		return rlvalue.OpBitAnd, true
	case OperOr:
		return rlvalue.OpBitOr, true
	case OperXor:
		return rlvalue.OpBitXor, true
	case OperSl:
		return rlvalue.OpShl, true
	case OperSr:
		return rlvalue.OpShr, true
	case OperSru:
		return rlvalue.OpShrUnsigned, true
	default:
		return 0, false
	}
}

func unaryOpFor(code OperatorCode) (rlvalue.UnaryOp, bool) {
	switch code {
	case OperMinus:
		return rlvalue.UnaryNeg, true
	case OperInv:
		return rlvalue.UnaryBitNot, true
	default:
		return 0, false
	}
}

// Result is the assembler's output: the emitted instructions plus any
// non-fatal warnings accumulated along the way (e.g. the non-0x7F property
// flag case).
type Result struct {
	Instructions []Instruction
	Warnings     []*rlerr.Error
}

// Assembler walks a lexeme stream maintaining the dual int/string operand
// stacks and the marker stack, emitting Instructions.
type Assembler struct {
	Strings []string // scene string table, indexed by Push(String, idx).Value

	intStack []Operand
	strStack []Operand
	markers  []int

	nextVar int
	line    int32

	log *rllog.Logger

	out      []Instruction
	warnings []*rlerr.Error
}

// New creates an Assembler bound to a scene's string table.
func New(strings []string, log *rllog.Logger) *Assembler {
	return &Assembler{Strings: strings, log: log}
}

func (a *Assembler) freshVar() int {
	v := a.nextVar
	a.nextVar++
	return v
}

func (a *Assembler) emit(i Instruction) { a.out = append(a.out, i) }

func (a *Assembler) warn(msg string) {
	e := rlerr.New(rlerr.KindValueError, rlerr.StageAssemble, msg)
	e.Severity = rlerr.SeverityWarning
	a.warnings = append(a.warnings, e)
}

// Assemble processes the complete lexeme stream and returns the result.
// StackUnderflow and similar fatal diagnostics abort the pass immediately
// per spec §4.2; they are returned as the error, not batched, since the
// Siglus assembler (unlike the m6 compiler) does not recover mid-scene.
func Assemble(lexemes []lexer.Lexeme, strings []string, log *rllog.Logger) (*Result, error) {
	a := New(strings, log)
	for i := 0; i < len(lexemes); i++ {
		consumed, err := a.step(lexemes, i)
		if err != nil {
			return nil, err
		}
		i += consumed
	}
	return &Result{Instructions: a.out, Warnings: a.warnings}, nil
}

// step processes lexemes[i] and returns how many *additional* lexemes (0 or
// 1) it consumed via lookahead, so the caller's loop can skip them.
func (a *Assembler) step(lexemes []lexer.Lexeme, i int) (int, error) {
	lx := lexemes[i]

	switch lx.Op {
	case lexer.OpLine:
		a.line = lx.Line
		return 0, nil

	case lexer.OpPush:
		return a.pushLiteral(lexemes, i)

	case lexer.OpPop:
		return 0, a.pop(lx.TypeTag)

	case lexer.OpCopy:
		return 0, a.copy(lx.TypeTag)

	case lexer.OpMarker:
		a.markers = append(a.markers, len(a.intStack))
		return 0, nil

	case lexer.OpProperty, lexer.OpCopyElm:
		return 0, a.stripPropertyFlag()

	case lexer.OpOp1:
		return a.op1(lexemes, i)

	case lexer.OpOp2:
		return a.op2(lexemes, i)

	case lexer.OpAssign:
		return 0, a.assign(lx)

	case lexer.OpGoto:
		a.emit(Goto{Label: lx.Label})
		return 0, nil

	case lexer.OpGotoIfTrue:
		cond, err := a.popInt()
		if err != nil {
			return 0, err
		}
		a.emit(GotoIf{Cond: cond, Label: lx.Label, Negate: false})
		return 0, nil

	case lexer.OpGotoIfFalse:
		cond, err := a.popInt()
		if err != nil {
			return 0, err
		}
		a.emit(GotoIf{Cond: cond, Label: lx.Label, Negate: true})
		return 0, nil

	case lexer.OpGosubInt, lexer.OpGosubStr:
		args, err := a.popArgs(lx.Args)
		if err != nil {
			return 0, err
		}
		a.emit(Gosub{Label: lx.Label, Args: args})
		return 0, nil

	case lexer.OpReturn:
		vals, err := a.popArgs(lx.Args)
		if err != nil {
			return 0, err
		}
		a.emit(Return{Values: vals})
		return 0, nil

	case lexer.OpCommand:
		return a.command(lexemes, i)

	case lexer.OpTextout:
		s, err := a.popStr()
		if err != nil {
			return 0, err
		}
		a.emit(Textout{Kidoku: lx.Kidoku, Text: s.Value.AsString()})
		return 0, nil

	case lexer.OpNamae:
		s, err := a.popStr()
		if err != nil {
			return 0, err
		}
		a.emit(Name{Text: s.Value.AsString()})
		return 0, nil

	case lexer.OpEndOfScene, lexer.OpArg, lexer.OpDeclare, lexer.OpSelBegin, lexer.OpSelEnd:
		return 0, nil

	default:
		return 0, rlerr.Newf(rlerr.KindCompileError, rlerr.StageAssemble,
			"unhandled lexeme opcode 0x%02x at offset %d", lx.Op, lx.Offset)
	}
}

func (a *Assembler) isStringType(tag uint32) bool {
	return tag == TypeString || tag == TypeStrList || tag == TypeStrRef || tag == TypeStrListRef
}

func (a *Assembler) pushLiteral(lexemes []lexer.Lexeme, i int) (int, error) {
	lx := lexemes[i]
	var val rlvalue.Value
	if a.isStringType(lx.TypeTag) {
		idx := int(lx.Value)
		if idx < 0 || idx >= len(a.Strings) {
			return 0, rlerr.Newf(rlerr.KindRuntimeError, rlerr.StageAssemble,
				"string table index %d out of range", idx)
		}
		val = rlvalue.Str(a.Strings[idx])
	} else {
		val = rlvalue.Int(lx.Value)
	}

	op := LitOperand(val)
	if a.isStringType(lx.TypeTag) {
		a.strStack = append(a.strStack, op)
	} else {
		a.intStack = append(a.intStack, op)
	}
	return 0, nil
}

// pop implements the Pop opcode: drop the top of the matching stack. A Pop
// that directly follows a constant-folded Op1/Op2 never reaches here:
// foldResult consumes it.
func (a *Assembler) pop(tag uint32) error {
	if a.isStringType(tag) {
		if len(a.strStack) == 0 {
			return rlerr.New(rlerr.KindStackUnderflow, rlerr.StageAssemble, "Pop(String) on empty string stack")
		}
		a.strStack = a.strStack[:len(a.strStack)-1]
		return nil
	}
	if len(a.intStack) == 0 {
		return rlerr.New(rlerr.KindStackUnderflow, rlerr.StageAssemble, "Pop(Int) on empty int stack")
	}
	a.intStack = a.intStack[:len(a.intStack)-1]
	return nil
}

func (a *Assembler) copy(tag uint32) error {
	if a.isStringType(tag) {
		if len(a.strStack) == 0 {
			return rlerr.New(rlerr.KindStackUnderflow, rlerr.StageAssemble, "Copy(String) on empty string stack")
		}
		a.strStack = append(a.strStack, a.strStack[len(a.strStack)-1])
		return nil
	}
	if len(a.intStack) == 0 {
		return rlerr.New(rlerr.KindStackUnderflow, rlerr.StageAssemble, "Copy(Int) on empty int stack")
	}
	a.intStack = append(a.intStack, a.intStack[len(a.intStack)-1])
	return nil
}

func (a *Assembler) popInt() (Operand, error) {
	if len(a.intStack) == 0 {
		return Operand{}, rlerr.New(rlerr.KindStackUnderflow, rlerr.StageAssemble, "pop on empty int stack")
	}
	v := a.intStack[len(a.intStack)-1]
	a.intStack = a.intStack[:len(a.intStack)-1]
	return v, nil
}

func (a *Assembler) popStr() (Operand, error) {
	if len(a.strStack) == 0 {
		return Operand{}, rlerr.New(rlerr.KindStackUnderflow, rlerr.StageAssemble, "pop on empty string stack")
	}
	v := a.strStack[len(a.strStack)-1]
	a.strStack = a.strStack[:len(a.strStack)-1]
	return v, nil
}

// stripPropertyFlag implements the Property/CopyElm rule: pop the top
// element-code int, strip the high 0x7F flag byte, and re-push it. A flag
// byte other than 0x7F is a warning, not fatal (per original_source's
// observed behaviour, carried through per SPEC_FULL.md).
func (a *Assembler) stripPropertyFlag() error {
	top, err := a.popInt()
	if err != nil {
		return err
	}
	if !top.Literal {
		a.intStack = append(a.intStack, top)
		return nil
	}
	v := uint32(top.Value.AsInt())
	flag := (v >> 24) & 0xFF
	if flag != 0x7F {
		a.warn("property reference flag byte is not 0x7F")
	}
	stripped := int32(v &^ (0xFF << 24))
	a.intStack = append(a.intStack, LitOperand(rlvalue.Int(stripped)))
	return nil
}

// op1 handles a unary Op1 lexeme, folding when the operand is a literal and
// otherwise emitting Operate1. Mirrors the peek-and-materialize pattern
// documented on foldResult.
func (a *Assembler) op1(lexemes []lexer.Lexeme, i int) (int, error) {
	lx := lexemes[i]
	operand, err := a.popFor(lx.TypeTag)
	if err != nil {
		return 0, err
	}

	if operand.Literal {
		if uop, ok := unaryOpFor(OperatorCode(lx.OperCode)); ok {
			folded, err := rlvalue.UnaryOpEval(uop, operand.Value)
			if err == nil {
				return a.foldResult(lexemes, i, lx.TypeTag, folded)
			}
		}
	}

	dst := a.freshVar()
	a.emit(Operate1{TypeTag: lx.TypeTag, OpCode: lx.OperCode, Operand: operand, Dst: dst})
	a.pushFor(lx.TypeTag, VarOperand(dst))
	return 0, nil
}

func (a *Assembler) op2(lexemes []lexer.Lexeme, i int) (int, error) {
	lx := lexemes[i]
	// Spec: Op2 pops two values (rhs popped before lhs, since the stack is
	// LIFO and the rule text processes "one/two values" after they were
	// pushed lhs-then-rhs at the source level).
	rhs, err := a.popFor(lx.RType)
	if err != nil {
		return 0, err
	}
	lhs, err := a.popFor(lx.LType)
	if err != nil {
		return 0, err
	}

	if lhs.Literal && rhs.Literal {
		if bop, ok := binOpFor(OperatorCode(lx.OperCode)); ok {
			folded, err := rlvalue.BinaryOp(bop, lhs.Value, rhs.Value)
			if err == nil {
				resultType := lx.LType
				if folded.Kind() == rlvalue.KindString {
					resultType = TypeString
				} else {
					resultType = TypeInt
				}
				return a.foldResult(lexemes, i, resultType, folded)
			}
		}
	}

	dst := a.freshVar()
	a.emit(Operate2{LType: lx.LType, RType: lx.RType, OpCode: lx.OperCode, Lhs: lhs, Rhs: rhs, Dst: dst})
	resultType := lx.LType
	a.pushFor(resultType, VarOperand(dst))
	return 0, nil
}

// foldResult implements the peek-ahead materialize rule: if the next
// lexeme is a Pop of the matching type, the folded literal vanishes with no
// instruction emitted and the Pop is consumed; otherwise the literal is
// pushed back onto the stack AND materialized as a Push instruction (spec
// §8 scenario 1).
func (a *Assembler) foldResult(lexemes []lexer.Lexeme, i int, typeTag uint32, folded rlvalue.Value) (int, error) {
	if i+1 < len(lexemes) {
		next := lexemes[i+1]
		if next.Op == lexer.OpPop && a.sameStackFamily(next.TypeTag, typeTag) {
			return 1, nil // fold vanishes; Pop consumed, nothing emitted, nothing pushed
		}
	}
	a.emit(Push{TypeTag: typeTag, Value: folded})
	a.pushFor(typeTag, LitOperand(folded))
	return 0, nil
}

func (a *Assembler) sameStackFamily(a1, a2 uint32) bool {
	return a.isStringType(a1) == a.isStringType(a2)
}

func (a *Assembler) popFor(tag uint32) (Operand, error) {
	if a.isStringType(tag) {
		return a.popStr()
	}
	return a.popInt()
}

func (a *Assembler) pushFor(tag uint32, op Operand) {
	if a.isStringType(tag) {
		a.strStack = append(a.strStack, op)
	} else {
		a.intStack = append(a.intStack, op)
	}
}

func (a *Assembler) assign(lx lexer.Lexeme) error {
	src, err := a.popFor(lx.RType)
	if err != nil {
		return err
	}
	elm, err := a.popElementCode()
	if err != nil {
		return err
	}
	a.emit(Assign{Dst: elm, Src: src})
	return nil
}

// popElementCode implements Popelm: return the integers pushed since the
// last marker, in insertion order, and drop that marker. Popping with no
// marker on the stack raises StackUnderflow.
func (a *Assembler) popElementCode() (ElementCode, error) {
	if len(a.markers) == 0 {
		return nil, rlerr.New(rlerr.KindStackUnderflow, rlerr.StageAssemble, "Popelm with no marker on the stack")
	}
	height := a.markers[len(a.markers)-1]
	a.markers = a.markers[:len(a.markers)-1]

	if height > len(a.intStack) {
		return nil, rlerr.New(rlerr.KindStackUnderflow, rlerr.StageAssemble, "marker height exceeds current stack height")
	}

	elm := make(ElementCode, 0, len(a.intStack)-height)
	for _, op := range a.intStack[height:] {
		if op.Literal {
			elm = append(elm, op.Value.AsInt())
		} else {
			elm = append(elm, int32(op.Var))
		}
	}
	a.intStack = a.intStack[:height]
	return elm, nil
}

func (a *Assembler) popArgs(decl lexer.ArgumentList) ([]Operand, error) {
	args := make([]Operand, len(decl.Types))
	for i := len(decl.Types) - 1; i >= 0; i-- {
		op, err := a.popFor(decl.Types[i])
		if err != nil {
			return nil, err
		}
		args[i] = op
	}
	return args, nil
}

func (a *Assembler) command(lexemes []lexer.Lexeme, i int) (int, error) {
	lx := lexemes[i]

	named := make(map[int32]Operand, len(lx.TagValues))
	for idx := len(lx.TagValues) - 1; idx >= 0; idx-- {
		op, err := a.popInt()
		if err != nil {
			return 0, err
		}
		named[lx.TagValues[idx]] = op
	}

	args := make([]Operand, len(lx.ArgTypes))
	for idx := len(lx.ArgTypes) - 1; idx >= 0; idx-- {
		op, err := a.popFor(lx.ArgTypes[idx])
		if err != nil {
			return 0, err
		}
		args[idx] = op
	}

	elm, err := a.popElementCode()
	if err != nil {
		return 0, err
	}

	returnType := TypeInt
	dst := -1
	consumed := 0
	if i+1 < len(lexemes) {
		next := lexemes[i+1]
		if next.Op == lexer.OpPop {
			returnType = next.TypeTag
			consumed = 1
		}
	}
	if consumed == 0 {
		dst = a.freshVar()
	}

	a.emit(Command{
		Elm:        elm,
		OverloadID: lx.Overload,
		Args:       args,
		NamedArgs:  named,
		ReturnType: returnType,
		Dst:        dst,
	})
	return consumed, nil
}
