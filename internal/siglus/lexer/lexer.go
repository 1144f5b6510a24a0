// Package lexer decodes a Siglus scene byte stream into a sequence of
// lexemes, one per opcode record. Modeled on corelx.Lexer's
// position/line/column bookkeeping and emitToken helper, generalized from a
// text scanner to a binary-record scanner.
package lexer

import (
	"encoding/binary"

	"rlvm/internal/rlerr"
)

// Opcode is the one-byte record tag read from the scene stream.
type Opcode byte

const (
	OpLine        Opcode = 0x01
	OpPush        Opcode = 0x02
	OpPop         Opcode = 0x03
	OpCopy        Opcode = 0x04
	OpProperty    Opcode = 0x05
	OpCopyElm     Opcode = 0x06
	OpDeclare     Opcode = 0x07
	OpMarker      Opcode = 0x08
	OpArg         Opcode = 0x09
	OpGoto        Opcode = 0x10
	OpGotoIfTrue  Opcode = 0x11
	OpGotoIfFalse Opcode = 0x12
	OpGosubInt    Opcode = 0x13
	OpGosubStr    Opcode = 0x14
	OpReturn      Opcode = 0x15
	OpEndOfScene  Opcode = 0x16
	OpAssign      Opcode = 0x20
	OpOp1         Opcode = 0x21
	OpOp2         Opcode = 0x22
	OpCommand     Opcode = 0x30
	OpTextout     Opcode = 0x31
	OpNamae       Opcode = 0x32
	OpSelBegin    Opcode = 0x33
	OpSelEnd      Opcode = 0x34
)

// typeListSentinel marks a type tag that is itself a nested ArgumentList,
// per libsiglus's Type::List (0xFFFFFFFF) — the "each tag may itself
// recurse" clause in spec §4.1.
const typeListSentinel uint32 = 0xFFFFFFFF

// ArgumentList is `u32 N` followed by N type-tags, any of which may recurse
// into a nested ArgumentList when the tag is the List sentinel.
type ArgumentList struct {
	Types  []uint32
	Nested map[int]*ArgumentList // index into Types -> nested list, when Types[i] == typeListSentinel
}

// Lexeme is one decoded scene record. Only the fields relevant to Op are
// populated; see spec §4.1's opcode table for which fields apply to which
// opcode.
type Lexeme struct {
	Op     Opcode
	Offset int

	Line int32 // Line

	TypeTag uint32 // Push/Pop/Copy type-tag; Op1 type
	Value   int32  // Push value

	DeclType uint32 // Declare type
	DeclSize uint32 // Declare size

	LType uint32 // Assign ltype / Op2 ltype
	RType uint32 // Assign rtype / Op2 rtype
	V1    int32  // Assign v1

	OperCode uint8 // Op1/Op2 operator code

	Label int32        // Goto/GotoIfTrue/GotoIfFalse/Gosub target label
	Args  ArgumentList // Gosub/Return argument types

	Overload  int32    // Command overload id
	ArgTypes  []uint32 // Command positional arg types
	TagValues []int32  // Command named-arg tag values

	Kidoku int32 // Textout kidoku flag
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) truncated() error {
	return rlerr.Newf(rlerr.KindCompileError, rlerr.StageLex,
		"Truncated(offset=%d)", r.pos)
}

func (r *reader) u8() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, r.truncated()
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, r.truncated()
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) argumentList() (ArgumentList, error) {
	n, err := r.u32()
	if err != nil {
		return ArgumentList{}, err
	}
	al := ArgumentList{Types: make([]uint32, n)}
	for i := uint32(0); i < n; i++ {
		tag, err := r.u32()
		if err != nil {
			return ArgumentList{}, err
		}
		al.Types[i] = tag
		if tag == typeListSentinel {
			nested, err := r.argumentList()
			if err != nil {
				return ArgumentList{}, err
			}
			if al.Nested == nil {
				al.Nested = make(map[int]*ArgumentList)
			}
			al.Nested[int(i)] = &nested
		}
	}
	return al, nil
}

// Tokenize decodes the complete scene byte stream into lexemes. Both
// UnknownOpcode and Truncated errors are fatal for the scene — decoding
// stops at the first one.
func Tokenize(data []byte) ([]Lexeme, error) {
	r := &reader{data: data}
	var out []Lexeme

	for r.pos < len(data) {
		start := r.pos
		opByte, err := r.u8()
		if err != nil {
			return out, err
		}
		op := Opcode(opByte)

		lex := Lexeme{Op: op, Offset: start}

		switch op {
		case OpLine:
			v, err := r.i32()
			if err != nil {
				return out, err
			}
			lex.Line = v

		case OpPush:
			tag, err := r.u32()
			if err != nil {
				return out, err
			}
			v, err := r.i32()
			if err != nil {
				return out, err
			}
			lex.TypeTag, lex.Value = tag, v

		case OpPop, OpCopy:
			tag, err := r.u32()
			if err != nil {
				return out, err
			}
			lex.TypeTag = tag

		case OpProperty, OpCopyElm, OpMarker, OpArg, OpEndOfScene, OpNamae, OpSelBegin, OpSelEnd:
			// no operand

		case OpDeclare:
			t, err := r.u32()
			if err != nil {
				return out, err
			}
			size, err := r.u32()
			if err != nil {
				return out, err
			}
			lex.DeclType, lex.DeclSize = t, size

		case OpGoto, OpGotoIfTrue, OpGotoIfFalse:
			label, err := r.i32()
			if err != nil {
				return out, err
			}
			lex.Label = label

		case OpGosubInt, OpGosubStr:
			label, err := r.i32()
			if err != nil {
				return out, err
			}
			args, err := r.argumentList()
			if err != nil {
				return out, err
			}
			lex.Label, lex.Args = label, args

		case OpReturn:
			args, err := r.argumentList()
			if err != nil {
				return out, err
			}
			lex.Args = args

		case OpAssign:
			lt, err := r.u32()
			if err != nil {
				return out, err
			}
			rt, err := r.u32()
			if err != nil {
				return out, err
			}
			v1, err := r.i32()
			if err != nil {
				return out, err
			}
			lex.LType, lex.RType, lex.V1 = lt, rt, v1

		case OpOp1:
			t, err := r.u32()
			if err != nil {
				return out, err
			}
			oc, err := r.u8()
			if err != nil {
				return out, err
			}
			lex.TypeTag, lex.OperCode = t, oc

		case OpOp2:
			lt, err := r.u32()
			if err != nil {
				return out, err
			}
			rt, err := r.u32()
			if err != nil {
				return out, err
			}
			oc, err := r.u8()
			if err != nil {
				return out, err
			}
			lex.LType, lex.RType, lex.OperCode = lt, rt, oc

		case OpCommand:
			overload, err := r.i32()
			if err != nil {
				return out, err
			}
			nArgs, err := r.u32()
			if err != nil {
				return out, err
			}
			argTypes := make([]uint32, nArgs)
			for i := range argTypes {
				t, err := r.u32()
				if err != nil {
					return out, err
				}
				argTypes[i] = t
			}
			nTags, err := r.u32()
			if err != nil {
				return out, err
			}
			tags := make([]int32, nTags)
			for i := range tags {
				v, err := r.i32()
				if err != nil {
					return out, err
				}
				tags[i] = v
			}
			lex.Overload, lex.ArgTypes, lex.TagValues = overload, argTypes, tags

		case OpTextout:
			v, err := r.i32()
			if err != nil {
				return out, err
			}
			lex.Kidoku = v

		default:
			return out, rlerr.Newf(rlerr.KindCompileError, rlerr.StageLex,
				"UnknownOpcode(offset=%d, byte=0x%02x)", start, opByte)
		}

		out = append(out, lex)
	}

	return out, nil
}
