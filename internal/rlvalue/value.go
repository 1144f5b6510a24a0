// Package rlvalue is the dynamic value model shared by the Siglus constant
// folder and the m6 VM. A single tagged sum plus one monomorphic operator
// table keeps both engines from silently diverging on integer overflow,
// division by zero, or shift semantics.
package rlvalue

import "fmt"

// Kind tags the active member of a Value.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindCallable
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindCallable:
		return "callable"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Callable is a bound native function or compiled chunk invocable from the
// m6 VM. Implementations live outside this package (native registration,
// compiled-chunk entry points).
type Callable interface {
	Call(args []Value) (Value, error)
	Name() string
}

// Object is the capability-set interface opaque values expose; its only
// required method is TypeName; runtimes type-assert to a narrower
// interface for the capability they need.
type Object interface {
	TypeName() string
}

// Value is a tagged sum over Nil, Bool, a 32-bit two's-complement Int, a
// 64-bit Double, a UTF-8 String, a Callable, and an opaque Object.
type Value struct {
	kind     Kind
	b        bool
	i        int32
	f        float64
	s        string
	callable Callable
	obj      Object
}

// Nil is the singular nil value.
var Nil = Value{kind: KindNil}

// Bool constructs a bool Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int constructs an Int Value, wrapping to int32 two's-complement.
func Int(i int32) Value { return Value{kind: KindInt, i: i} }

// Double constructs a Double Value.
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

// Str constructs a String Value.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// Call constructs a Callable Value.
func Call(c Callable) Value { return Value{kind: KindCallable, callable: c} }

// Obj constructs an Object Value.
func Obj(o Object) Value { return Value{kind: KindObject, obj: o} }

// Kind reports the active tag.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the bool payload; only meaningful when Kind() == KindBool.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the int32 payload; only meaningful when Kind() == KindInt.
func (v Value) AsInt() int32 { return v.i }

// AsDouble returns the float64 payload; only meaningful when Kind() == KindDouble.
func (v Value) AsDouble() float64 { return v.f }

// AsString returns the string payload; only meaningful when Kind() == KindString.
func (v Value) AsString() string { return v.s }

// AsCallable returns the Callable payload; only meaningful when Kind() == KindCallable.
func (v Value) AsCallable() Callable { return v.callable }

// AsObject returns the Object payload; only meaningful when Kind() == KindObject.
func (v Value) AsObject() Object { return v.obj }

// Truthy is the value's boolean coercion used by if/while conditions: nil
// and zero-valued primitives are false, everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindDouble:
		return v.f != 0
	case KindString:
		return v.s != ""
	default:
		return true
	}
}

// Desc returns the value's textual description.
func (v Value) Desc() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindDouble:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindCallable:
		if v.callable != nil {
			return fmt.Sprintf("<callable %s>", v.callable.Name())
		}
		return "<callable>"
	case KindObject:
		if v.obj != nil {
			return fmt.Sprintf("<object %s>", v.obj.TypeName())
		}
		return "<object>"
	default:
		return "<?>"
	}
}

// Equal is structural for Nil/Bool/Int/Double/String and identity for
// Callable/Object, per spec §3. This is distinct from the case-insensitive
// string comparison the BinaryOp table uses for Equal/NotEqual — see
// DESIGN.md.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindDouble:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindCallable:
		return v.callable == other.callable
	case KindObject:
		return v.obj == other.obj
	default:
		return false
	}
}
