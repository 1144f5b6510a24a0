package vm

import (
	"testing"

	"rlvm/internal/m6/compiler"
	"rlvm/internal/m6/parser"
	"rlvm/internal/m6/token"
	"rlvm/internal/rlerr"
	"rlvm/internal/rlvalue"
)

func run(t *testing.T, src string) rlvalue.Value {
	t.Helper()
	toks := token.Tokenize(src)
	prog, perrs := parser.Parse(toks)
	if perrs.HasErrors() {
		t.Fatalf("parse errors for %q: %v", src, perrs.Errors)
	}
	cprog, cerrs := compiler.Compile(prog, nil)
	if cerrs.HasErrors() {
		t.Fatalf("compile errors for %q: %v", src, cerrs.Errors)
	}
	m := New(cprog, nil)
	v, err := m.Run()
	if err != nil {
		t.Fatalf("run error for %q: %v", src, err)
	}
	return v
}

func runErr(t *testing.T, src string) error {
	t.Helper()
	toks := token.Tokenize(src)
	prog, perrs := parser.Parse(toks)
	if perrs.HasErrors() {
		t.Fatalf("parse errors for %q: %v", src, perrs.Errors)
	}
	cprog, cerrs := compiler.Compile(prog, nil)
	if cerrs.HasErrors() {
		t.Fatalf("compile errors for %q: %v", src, cerrs.Errors)
	}
	m := New(cprog, nil)
	_, err := m.Run()
	return err
}

// TestArithmeticPrecedence covers spec §8 scenario 2: 1+2*3 = 7.
func TestArithmeticPrecedence(t *testing.T) {
	v := run(t, "1+2*3;")
	if v.Kind() != rlvalue.KindInt || v.AsInt() != 7 {
		t.Fatalf("expected Int(7), got %#v", v)
	}
}

// TestStringRepeat covers spec §8 scenario 2: "ab"*3 = "ababab".
func TestStringRepeat(t *testing.T) {
	v := run(t, `"ab"*3;`)
	if v.Kind() != rlvalue.KindString || v.AsString() != "ababab" {
		t.Fatalf("expected Str(ababab), got %#v", v)
	}
}

// TestDivByZeroIsZero covers spec §8 scenario 2: 0/0 = 0.
func TestDivByZeroIsZero(t *testing.T) {
	v := run(t, "0/0;")
	if v.Kind() != rlvalue.KindInt || v.AsInt() != 0 {
		t.Fatalf("expected Int(0), got %#v", v)
	}
}

// TestNegativeShiftIsValueError covers spec §8 scenario 2: 1<<-1 -> ValueError.
func TestNegativeShiftIsValueError(t *testing.T) {
	err := runErr(t, "1<<-1;")
	if err == nil {
		t.Fatal("expected a ValueError")
	}
	rerr, ok := err.(*rlerr.Error)
	if !ok || rerr.Kind != rlerr.KindValueError {
		t.Fatalf("expected rlerr.KindValueError, got %#v", err)
	}
}

// TestControlFlowBuildsString covers spec §8 scenario 3's flavor: a for loop
// accumulating a result via globals, driven by if/else branching.
func TestControlFlowBuildsString(t *testing.T) {
	src := `
		s = "";
		for (i = 0; i < 5; i += 1) {
			if (i % 2 == 0) {
				s = s + "e";
			} else {
				s = s + "o";
			}
		}
	`
	toks := token.Tokenize(src)
	prog, perrs := parser.Parse(toks)
	if perrs.HasErrors() {
		t.Fatalf("parse errors: %v", perrs.Errors)
	}
	cprog, cerrs := compiler.Compile(prog, nil)
	if cerrs.HasErrors() {
		t.Fatalf("compile errors: %v", cerrs.Errors)
	}
	m := New(cprog, nil)
	if _, err := m.Run(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got := m.globals["s"]; got.AsString() != "eoeoe" {
		t.Fatalf("expected s = %q, got %q", "eoeoe", got.AsString())
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	src := `
		fn add(a, b) { return a + b; }
		r = add(3, 4);
	`
	toks := token.Tokenize(src)
	prog, perrs := parser.Parse(toks)
	if perrs.HasErrors() {
		t.Fatalf("parse errors: %v", perrs.Errors)
	}
	cprog, cerrs := compiler.Compile(prog, nil)
	if cerrs.HasErrors() {
		t.Fatalf("compile errors: %v", cerrs.Errors)
	}
	m := New(cprog, nil)
	if _, err := m.Run(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got := m.globals["r"]; got.AsInt() != 7 {
		t.Fatalf("expected r = 7, got %#v", got)
	}
}

func TestFunctionDefaultParam(t *testing.T) {
	src := `
		fn greet(n = 1) { return n; }
		r = greet();
	`
	toks := token.Tokenize(src)
	prog, perrs := parser.Parse(toks)
	if perrs.HasErrors() {
		t.Fatalf("parse errors: %v", perrs.Errors)
	}
	cprog, cerrs := compiler.Compile(prog, nil)
	if cerrs.HasErrors() {
		t.Fatalf("compile errors: %v", cerrs.Errors)
	}
	m := New(cprog, nil)
	if _, err := m.Run(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got := m.globals["r"]; got.AsInt() != 1 {
		t.Fatalf("expected default-filled r = 1, got %#v", got)
	}
}

func TestNativeCallDispatch(t *testing.T) {
	src := `r = double(21);`
	toks := token.Tokenize(src)
	prog, perrs := parser.Parse(toks)
	if perrs.HasErrors() {
		t.Fatalf("parse errors: %v", perrs.Errors)
	}
	cprog, cerrs := compiler.Compile(prog, []string{"double"})
	if cerrs.HasErrors() {
		t.Fatalf("compile errors: %v", cerrs.Errors)
	}
	natives := map[string]Native{
		"double": func(args []rlvalue.Value) (rlvalue.Value, error) {
			return rlvalue.Int(args[0].AsInt() * 2), nil
		},
	}
	m := New(cprog, natives)
	if _, err := m.Run(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got := m.globals["r"]; got.AsInt() != 42 {
		t.Fatalf("expected r = 42, got %#v", got)
	}
}

func TestCompoundAssignment(t *testing.T) {
	src := `x = 10; x += 5; r = x;`
	toks := token.Tokenize(src)
	prog, perrs := parser.Parse(toks)
	if perrs.HasErrors() {
		t.Fatalf("parse errors: %v", perrs.Errors)
	}
	cprog, cerrs := compiler.Compile(prog, nil)
	if cerrs.HasErrors() {
		t.Fatalf("compile errors: %v", cerrs.Errors)
	}
	m := New(cprog, nil)
	if _, err := m.Run(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got := m.globals["r"]; got.AsInt() != 15 {
		t.Fatalf("expected r = 15, got %#v", got)
	}
}
