// Package vm is m6's fetch-execute stack machine. Modeled on internal/cpu's
// fetch-decode-execute loop (internal/cpu/cpu.go), generalized from a fixed
// instruction set over machine words to the compiler's dynamically typed
// bytecode over rlvalue.Value.
package vm

import (
	"fmt"

	"rlvm/internal/m6/compiler"
	"rlvm/internal/rlerr"
	"rlvm/internal/rlvalue"
)

// Native is a host function exposed to m6 scripts.
type Native func(args []rlvalue.Value) (rlvalue.Value, error)

// Indexable is implemented by rlvalue.Object values that support `x[i]` and
// `x[i] = v`.
type Indexable interface {
	Index(idx rlvalue.Value) (rlvalue.Value, error)
	SetIndex(idx rlvalue.Value, v rlvalue.Value) error
}

// MemberAccess is implemented by rlvalue.Object values that support
// `x.name` and `x.name = v`.
type MemberAccess interface {
	Member(name string) (rlvalue.Value, error)
	SetMember(name string, v rlvalue.Value) error
}

// Machine is the VM: a value stack, an instruction pointer, and a halted
// flag, exactly as spec'd (`stack: Vec<Value>`, `ip: usize`, `halted: bool`).
type Machine struct {
	stack   []rlvalue.Value
	ip      int
	halted  bool

	prog    *compiler.Program
	globals map[string]rlvalue.Value
	natives map[string]Native
}

// New creates a Machine bound to a compiled Program and a native-function
// table (must match the names passed to compiler.New at compile time).
func New(prog *compiler.Program, natives map[string]Native) *Machine {
	return &Machine{
		prog:    prog,
		globals: make(map[string]rlvalue.Value),
		natives: natives,
	}
}

func (m *Machine) push(v rlvalue.Value) { m.stack = append(m.stack, v) }

func (m *Machine) pop() (rlvalue.Value, error) {
	if len(m.stack) == 0 {
		return rlvalue.Value{}, rlerr.New(rlerr.KindStackUnderflow, rlerr.StageRun, "pop on empty stack")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) peek() (rlvalue.Value, error) {
	if len(m.stack) == 0 {
		return rlvalue.Value{}, rlerr.New(rlerr.KindStackUnderflow, rlerr.StageRun, "peek on empty stack")
	}
	return m.stack[len(m.stack)-1], nil
}

// Run executes the top-level script to completion and returns the value
// left on top of the stack (the REPL driver's "intermediate result" per
// spec §4.5), or nil if the stack ended empty.
func (m *Machine) Run() (rlvalue.Value, error) {
	locals := make([]rlvalue.Value, m.prog.NumLocals)
	if err := m.exec(m.prog.Code, locals); err != nil {
		return rlvalue.Value{}, err
	}
	if len(m.stack) == 0 {
		return rlvalue.Nil, nil
	}
	return m.stack[len(m.stack)-1], nil
}

// exec runs one instruction span (a function body or the top-level script)
// against its own local-slot frame, sharing the Machine's value stack.
func (m *Machine) exec(code []compiler.Instr, locals []rlvalue.Value) error {
	ip := 0
	for ip < len(code) {
		instr := code[ip]
		switch instr.Op {
		case compiler.OpConst:
			m.push(m.prog.Constants[instr.A])
		case compiler.OpLoadLocal:
			m.push(locals[instr.A])
		case compiler.OpStoreLocal:
			v, err := m.pop()
			if err != nil {
				return err
			}
			locals[instr.A] = v
		case compiler.OpLoadGlobal:
			m.push(m.globals[instr.Str])
		case compiler.OpStoreGlobal:
			v, err := m.pop()
			if err != nil {
				return err
			}
			m.globals[instr.Str] = v
		case compiler.OpPop:
			if _, err := m.pop(); err != nil {
				return err
			}
		case compiler.OpDup:
			v, err := m.peek()
			if err != nil {
				return err
			}
			m.push(v)
		case compiler.OpJump:
			ip = int(instr.A)
			continue
		case compiler.OpJumpIfFalse:
			v, err := m.pop()
			if err != nil {
				return err
			}
			if !v.Truthy() {
				ip = int(instr.A)
				continue
			}
		case compiler.OpBinary:
			lhs, err := m.pop()
			if err != nil {
				return err
			}
			rhs, err := m.pop()
			if err != nil {
				return err
			}
			res, err := rlvalue.BinaryOp(instr.Bin, lhs, rhs)
			if err != nil {
				return err
			}
			m.push(res)
		case compiler.OpUnary:
			v, err := m.pop()
			if err != nil {
				return err
			}
			res, err := rlvalue.UnaryOpEval(instr.Un, v)
			if err != nil {
				return err
			}
			m.push(res)
		case compiler.OpIndex:
			idx, err := m.pop()
			if err != nil {
				return err
			}
			target, err := m.pop()
			if err != nil {
				return err
			}
			v, err := m.doIndex(target, idx)
			if err != nil {
				return err
			}
			m.push(v)
		case compiler.OpSetIndex:
			value, err := m.pop()
			if err != nil {
				return err
			}
			idx, err := m.pop()
			if err != nil {
				return err
			}
			target, err := m.pop()
			if err != nil {
				return err
			}
			if err := m.doSetIndex(target, idx, value); err != nil {
				return err
			}
			m.push(value)
		case compiler.OpCompoundSetIndex:
			value, err := m.pop()
			if err != nil {
				return err
			}
			idx, err := m.pop()
			if err != nil {
				return err
			}
			target, err := m.pop()
			if err != nil {
				return err
			}
			old, err := m.doIndex(target, idx)
			if err != nil {
				return err
			}
			combined, err := rlvalue.BinaryOp(instr.Bin, old, value)
			if err != nil {
				return err
			}
			if err := m.doSetIndex(target, idx, combined); err != nil {
				return err
			}
			m.push(combined)
		case compiler.OpMember:
			target, err := m.pop()
			if err != nil {
				return err
			}
			v, err := m.doMember(target, instr.Str)
			if err != nil {
				return err
			}
			m.push(v)
		case compiler.OpSetMember:
			value, err := m.pop()
			if err != nil {
				return err
			}
			target, err := m.pop()
			if err != nil {
				return err
			}
			if err := m.doSetMember(target, instr.Str, value); err != nil {
				return err
			}
			m.push(value)
		case compiler.OpCompoundSetMember:
			value, err := m.pop()
			if err != nil {
				return err
			}
			target, err := m.pop()
			if err != nil {
				return err
			}
			old, err := m.doMember(target, instr.Str)
			if err != nil {
				return err
			}
			combined, err := rlvalue.BinaryOp(instr.Bin, old, value)
			if err != nil {
				return err
			}
			if err := m.doSetMember(target, instr.Str, combined); err != nil {
				return err
			}
			m.push(combined)
		case compiler.OpCall:
			// When the callee is a computed expression (name == ""), the
			// compiler pushes it last, so it must be popped before the
			// argument list underneath it.
			var callee rlvalue.Value
			name := instr.Str
			if name == "" {
				v, err := m.pop()
				if err != nil {
					return err
				}
				callee = v
			}
			args := make([]rlvalue.Value, instr.A)
			for i := int(instr.A) - 1; i >= 0; i-- {
				v, err := m.pop()
				if err != nil {
					return err
				}
				args[i] = v
			}
			res, err := m.call(name, callee, args)
			if err != nil {
				return err
			}
			m.push(res)
		case compiler.OpReturn:
			v, err := m.pop()
			if err != nil {
				return err
			}
			m.push(v)
			m.halted = false
			return nil
		case compiler.OpHalt:
			m.halted = true
			return nil
		default:
			return rlerr.Newf(rlerr.KindRuntimeError, rlerr.StageRun, "unknown opcode %d", instr.Op)
		}
		ip++
	}
	return nil
}

// call dispatches by name (native, then compiled function) or by a
// first-class Callable value popped from the stack (spec §4.5: "Native
// calls pop N values, invoke the callable, and push the result").
func (m *Machine) call(name string, callee rlvalue.Value, args []rlvalue.Value) (rlvalue.Value, error) {
	if name != "" {
		if nf, ok := m.natives[name]; ok {
			return nf(args)
		}
		if fn, ok := m.prog.Functions[name]; ok {
			return m.callCompiled(fn, args)
		}
		return rlvalue.Value{}, rlerr.Newf(rlerr.KindNameError, rlerr.StageRun, "undefined function %q", name)
	}
	c := callee.AsCallable()
	if c == nil {
		return rlvalue.Value{}, rlerr.New(rlerr.KindTypeError, rlerr.StageRun, "value is not callable")
	}
	return c.Call(args)
}

func (m *Machine) callCompiled(fn *compiler.Function, args []rlvalue.Value) (rlvalue.Value, error) {
	locals := make([]rlvalue.Value, fn.NumLocals)
	for i, pname := range fn.ParamNames {
		if i < len(args) {
			locals[i] = args[i]
		} else if fn.Defaults[i] != nil {
			v, err := m.runThunk(fn.Defaults[i])
			if err != nil {
				return rlvalue.Value{}, err
			}
			locals[i] = v
		} else if fn.Rest || fn.KwRest {
			locals[i] = rlvalue.Nil
		} else {
			return rlvalue.Value{}, rlerr.Newf(rlerr.KindInvalidArgument, rlerr.StageRun, "missing required argument %q to %s", pname, fn.Name)
		}
	}
	sub := &Machine{prog: m.prog, globals: m.globals, natives: m.natives}
	if err := sub.exec(fn.Code, locals); err != nil {
		return rlvalue.Value{}, err
	}
	if len(sub.stack) == 0 {
		return rlvalue.Nil, nil
	}
	return sub.stack[len(sub.stack)-1], nil
}

func (m *Machine) runThunk(fn *compiler.Function) (rlvalue.Value, error) {
	sub := &Machine{prog: m.prog, globals: m.globals, natives: m.natives}
	locals := make([]rlvalue.Value, fn.NumLocals)
	if err := sub.exec(fn.Code, locals); err != nil {
		return rlvalue.Value{}, err
	}
	if len(sub.stack) == 0 {
		return rlvalue.Nil, nil
	}
	return sub.stack[len(sub.stack)-1], nil
}

func (m *Machine) doIndex(target, idx rlvalue.Value) (rlvalue.Value, error) {
	obj := target.AsObject()
	idxer, ok := obj.(Indexable)
	if !ok {
		return rlvalue.Value{}, rlerr.Newf(rlerr.KindTypeError, rlerr.StageRun, "value of kind %s is not indexable", target.Kind())
	}
	return idxer.Index(idx)
}

func (m *Machine) doSetIndex(target, idx, value rlvalue.Value) error {
	obj := target.AsObject()
	idxer, ok := obj.(Indexable)
	if !ok {
		return rlerr.Newf(rlerr.KindTypeError, rlerr.StageRun, "value of kind %s is not indexable", target.Kind())
	}
	return idxer.SetIndex(idx, value)
}

func (m *Machine) doMember(target rlvalue.Value, name string) (rlvalue.Value, error) {
	obj := target.AsObject()
	ma, ok := obj.(MemberAccess)
	if !ok {
		return rlvalue.Value{}, rlerr.Newf(rlerr.KindTypeError, rlerr.StageRun, "value of kind %s has no member %q", target.Kind(), name)
	}
	return ma.Member(name)
}

func (m *Machine) doSetMember(target rlvalue.Value, name string, value rlvalue.Value) error {
	obj := target.AsObject()
	ma, ok := obj.(MemberAccess)
	if !ok {
		return rlerr.Newf(rlerr.KindTypeError, rlerr.StageRun, "value of kind %s has no member %q", target.Kind(), name)
	}
	return ma.SetMember(name, value)
}

// Halted reports whether the last Run completed via an explicit Halt.
func (m *Machine) Halted() bool { return m.halted }

func (m *Machine) String() string {
	return fmt.Sprintf("Machine{stack=%d, halted=%v}", len(m.stack), m.halted)
}
