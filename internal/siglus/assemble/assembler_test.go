package assemble

import (
	"testing"

	"rlvm/internal/rlvalue"
	"rlvm/internal/siglus/lexer"
)

func push(tag uint32, v int32) lexer.Lexeme {
	return lexer.Lexeme{Op: lexer.OpPush, TypeTag: tag, Value: v}
}

func TestConstantFoldingWithPop(t *testing.T) {
	lexemes := []lexer.Lexeme{
		{Op: lexer.OpMarker},
		push(TypeInt, 3),
		push(TypeInt, 4),
		{Op: lexer.OpOp2, LType: TypeInt, RType: TypeInt, OperCode: uint8(OperPlus)},
		{Op: lexer.OpPop, TypeTag: TypeInt},
	}

	res, err := Assemble(lexemes, nil, nil)
	if err != nil {
		t.Fatalf("assemble error: %v", err)
	}
	if len(res.Instructions) != 0 {
		t.Fatalf("expected no instructions emitted, got %d: %#v", len(res.Instructions), res.Instructions)
	}
}

func TestConstantFoldingWithoutPop(t *testing.T) {
	lexemes := []lexer.Lexeme{
		{Op: lexer.OpMarker},
		push(TypeInt, 3),
		push(TypeInt, 4),
		{Op: lexer.OpOp2, LType: TypeInt, RType: TypeInt, OperCode: uint8(OperPlus)},
	}

	res, err := Assemble(lexemes, nil, nil)
	if err != nil {
		t.Fatalf("assemble error: %v", err)
	}
	if len(res.Instructions) != 1 {
		t.Fatalf("expected exactly one Push instruction, got %d", len(res.Instructions))
	}
	pushInstr, ok := res.Instructions[0].(Push)
	if !ok {
		t.Fatalf("expected a Push instruction, got %#v", res.Instructions[0])
	}
	if pushInstr.Value.AsInt() != 7 {
		t.Errorf("folded value = %d, want 7", pushInstr.Value.AsInt())
	}
}

func TestPopelmReturnsInsertionOrder(t *testing.T) {
	a := New(nil, nil)
	a.markers = append(a.markers, len(a.intStack))
	a.intStack = append(a.intStack, LitOperand(rlvalue.Int(1)), LitOperand(rlvalue.Int(2)), LitOperand(rlvalue.Int(3)))

	elm, err := a.popElementCode()
	if err != nil {
		t.Fatalf("popElementCode error: %v", err)
	}
	want := ElementCode{1, 2, 3}
	if len(elm) != len(want) {
		t.Fatalf("len(elm) = %d, want %d", len(elm), len(want))
	}
	for i := range want {
		if elm[i] != want[i] {
			t.Errorf("elm[%d] = %d, want %d", i, elm[i], want[i])
		}
	}
	if len(a.intStack) != 0 {
		t.Errorf("int stack should be drained back to the marker height, got %d left", len(a.intStack))
	}
}

func TestPopelmWithNoMarkerIsStackUnderflow(t *testing.T) {
	a := New(nil, nil)
	_, err := a.popElementCode()
	if err == nil {
		t.Fatal("expected StackUnderflow popping an element code with no marker")
	}
}

func TestDivModByZeroFoldsToZero(t *testing.T) {
	lexemes := []lexer.Lexeme{
		push(TypeInt, 10),
		push(TypeInt, 0),
		{Op: lexer.OpOp2, LType: TypeInt, RType: TypeInt, OperCode: uint8(OperDiv)},
	}
	res, err := Assemble(lexemes, nil, nil)
	if err != nil {
		t.Fatalf("assemble error: %v", err)
	}
	if len(res.Instructions) != 1 {
		t.Fatalf("expected one materialized Push instruction, got %d", len(res.Instructions))
	}
	if res.Instructions[0].(Push).Value.AsInt() != 0 {
		t.Errorf("10 / 0 should fold to 0")
	}
}
