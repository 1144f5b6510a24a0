// Package assemble turns a decoded Siglus lexeme stream into a higher-level
// instruction sequence addressing abstract variables and element codes,
// maintaining the dual int/string operand stacks and the marker stack the
// lexemes assume. Modeled on corelx's parser/compiler staged-diagnostics
// style, generalized from a text-token stream to a typed-stack bytecode
// stream.
package assemble

import "rlvm/internal/rlvalue"

// ElementCode is an ordered sequence of integers addressing a member of the
// Siglus object model.
type ElementCode []int32

// Operand is either a compile-time literal or a reference to a pseudo
// variable produced by an earlier instruction.
type Operand struct {
	Literal bool
	Value   rlvalue.Value
	Var     int
}

// LitOperand builds a literal Operand.
func LitOperand(v rlvalue.Value) Operand { return Operand{Literal: true, Value: v} }

// VarOperand builds a pseudo-variable-reference Operand.
func VarOperand(id int) Operand { return Operand{Var: id} }

// Instruction is one emitted instruction in the higher-level stream.
type Instruction interface{ isInstruction() }

// Push materializes a literal back onto the notional operand stack — the
// "else" branch of constant folding (spec §8 scenario 1): emitted only when
// a folded (or plain) literal is not immediately consumed by a matching Pop.
type Push struct {
	TypeTag uint32
	Value   rlvalue.Value
}

// Operate1 is a unary operator applied to a non-constant operand (constant
// operands fold at assemble time and never reach this instruction).
type Operate1 struct {
	TypeTag uint32
	OpCode  uint8
	Operand Operand
	Dst     int // pseudo-variable receiving the result
}

// Operate2 is a binary operator applied when at least one operand is
// non-constant.
type Operate2 struct {
	LType, RType uint32
	OpCode       uint8
	Lhs, Rhs     Operand
	Dst          int
	Folded       *rlvalue.Value // set if, despite being emitted for debugging, the value is statically known
}

// Assign stores src into the destination element code.
type Assign struct {
	Dst ElementCode
	Src Operand
}

// Goto is an unconditional jump to Label.
type Goto struct{ Label int32 }

// GotoIf is a conditional jump; Negate true means "jump if false".
type GotoIf struct {
	Cond   Operand
	Label  int32
	Negate bool
}

// Gosub calls the subroutine at Label with the given argument operands.
type Gosub struct {
	Label int32
	Args  []Operand
}

// Command is a Siglus object-model method call addressed by an element
// code, with positional and named arguments and an overload disambiguator.
type Command struct {
	Elm          ElementCode
	OverloadID   int32
	Args         []Operand
	NamedArgs    map[int32]Operand
	ReturnType   uint32
	Dst          int // -1 if the return value is discarded
}

// Textout emits kidoku-tagged narration text.
type Textout struct {
	Kidoku int32
	Text   string
}

// Name emits a character-name line.
type Name struct{ Text string }

// Return returns the given values from the current subroutine.
type Return struct{ Values []Operand }

func (Push) isInstruction()     {}
func (Operate1) isInstruction() {}
func (Operate2) isInstruction() {}
func (Assign) isInstruction()   {}
func (Goto) isInstruction()     {}
func (GotoIf) isInstruction()   {}
func (Gosub) isInstruction()    {}
func (Command) isInstruction()  {}
func (Textout) isInstruction()  {}
func (Name) isInstruction()     {}
func (Return) isInstruction()   {}
