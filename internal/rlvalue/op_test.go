package rlvalue

import (
	"testing"
)

func TestIntDivModByZero(t *testing.T) {
	tests := []int32{0, 1, -1, 2147483647, -2147483648}
	for _, a := range tests {
		div, err := BinaryOp(OpDiv, Int(a), Int(0))
		if err != nil {
			t.Fatalf("div by zero returned error: %v", err)
		}
		if div.AsInt() != 0 {
			t.Errorf("a=%d: a/0 = %d, want 0", a, div.AsInt())
		}

		mod, err := BinaryOp(OpMod, Int(a), Int(0))
		if err != nil {
			t.Fatalf("mod by zero returned error: %v", err)
		}
		if mod.AsInt() != 0 {
			t.Errorf("a=%d: a%%0 = %d, want 0", a, mod.AsInt())
		}
	}
}

func TestShiftSemantics(t *testing.T) {
	tests := []struct {
		a int32
		n int32
	}{
		{1, 0}, {1, 1}, {-1, 1}, {-8, 2}, {1, 31}, {-1, 31},
	}
	for _, tt := range tests {
		left, err := BinaryOp(OpShl, Int(tt.a), Int(tt.n))
		if err != nil {
			t.Fatalf("shl error: %v", err)
		}
		if want := tt.a << uint(tt.n); left.AsInt() != want {
			t.Errorf("%d << %d = %d, want %d", tt.a, tt.n, left.AsInt(), want)
		}

		right, err := BinaryOp(OpShr, Int(tt.a), Int(tt.n))
		if err != nil {
			t.Fatalf("shr error: %v", err)
		}
		if want := tt.a >> uint(tt.n); right.AsInt() != want {
			t.Errorf("%d >> %d = %d, want %d", tt.a, tt.n, right.AsInt(), want)
		}

		sru, err := BinaryOp(OpShrUnsigned, Int(tt.a), Int(tt.n))
		if err != nil {
			t.Fatalf("sru error: %v", err)
		}
		want := int32(uint32(tt.a) >> uint(tt.n))
		if sru.AsInt() != want {
			t.Errorf("%d >>> %d = %d, want %d", tt.a, tt.n, sru.AsInt(), want)
		}
	}
}

func TestNegativeShiftIsValueError(t *testing.T) {
	_, err := BinaryOp(OpShl, Int(1), Int(-1))
	if err == nil {
		t.Fatal("expected ValueError for negative shift count")
	}
}

func TestStringRepeat(t *testing.T) {
	tests := []struct {
		s string
		n int32
	}{
		{"ab", 0}, {"ab", 1}, {"ab", 3}, {"", 5},
	}
	for _, tt := range tests {
		v, err := BinaryOp(OpMul, Str(tt.s), Int(tt.n))
		if err != nil {
			t.Fatalf("string repeat error: %v", err)
		}
		got := v.AsString()
		if len(got) != len(tt.s)*int(tt.n) {
			t.Errorf("len(%q * %d) = %d, want %d", tt.s, tt.n, len(got), len(tt.s)*int(tt.n))
		}
	}

	empty, err := BinaryOp(OpMul, Str("xyz"), Int(0))
	if err != nil {
		t.Fatal(err)
	}
	if empty.AsString() != "" {
		t.Errorf("s * 0 = %q, want empty", empty.AsString())
	}
}

func TestStringConcat(t *testing.T) {
	v, err := BinaryOp(OpAdd, Str("foo"), Str("bar"))
	if err != nil {
		t.Fatal(err)
	}
	if v.AsString() != "foobar" {
		t.Errorf("got %q, want foobar", v.AsString())
	}
}

func TestUndefinedOperatorOnMixedTypes(t *testing.T) {
	_, err := BinaryOp(OpAdd, Int(1), Str("x"))
	if err == nil {
		t.Fatal("expected UndefinedOperator for int + string")
	}
}

func TestEqualityCrossKind(t *testing.T) {
	v, err := BinaryOp(OpEqual, Int(1), Str("x"))
	if err != nil {
		t.Fatal(err)
	}
	if v.AsBool() {
		t.Error("int(1) == string(x) should be false")
	}
}

func TestValueEqual(t *testing.T) {
	if !Int(5).Equal(Int(5)) {
		t.Error("Int(5).Equal(Int(5)) should be true")
	}
	if Int(5).Equal(Double(5)) {
		t.Error("Int and Double are different kinds, should not be Equal")
	}
	if !Str("Hello").Equal(Str("Hello")) {
		t.Error("identical strings should be Equal")
	}
	if Str("Hello").Equal(Str("hello")) {
		t.Error("Value.Equal is case-sensitive, unlike the BinaryOp comparison rule")
	}
}
