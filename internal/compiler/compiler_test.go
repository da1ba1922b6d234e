package compiler

import (
	"fmt"
	"strings"
	"testing"

	"chef/internal/bytecode"
	cheferrors "chef/internal/errors"
)

func compileOK(t *testing.T, source string) *bytecode.Function {
	t.Helper()
	fn, err := Compile(source)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return fn
}

func compileErrs(t *testing.T, source string) *cheferrors.CompileErrorList {
	t.Helper()
	_, err := Compile(source)
	if err == nil {
		t.Fatalf("expected compile error for %q", source)
	}
	list, ok := err.(*cheferrors.CompileErrorList)
	if !ok {
		t.Fatalf("error is %T, want *errors.CompileErrorList", err)
	}
	return list
}

func TestScriptFunctionShape(t *testing.T) {
	fn := compileOK(t, "taste 1 + 2;")
	if !fn.IsScript() {
		t.Error("top-level function must be the script")
	}
	if fn.Arity != 0 {
		t.Errorf("script arity = %d, want 0", fn.Arity)
	}

	want := []byte{
		byte(bytecode.OpConstant), 0,
		byte(bytecode.OpConstant), 1,
		byte(bytecode.OpAdd),
		byte(bytecode.OpPrint),
		byte(bytecode.OpNil),
		byte(bytecode.OpReturn),
	}
	if len(fn.Chunk.Code) != len(want) {
		t.Fatalf("code = %v, want %v", fn.Chunk.Code, want)
	}
	for i := range want {
		if fn.Chunk.Code[i] != want[i] {
			t.Fatalf("code = %v, want %v", fn.Chunk.Code, want)
		}
	}
}

func TestComparisonDesugaring(t *testing.T) {
	// != and >= and <= have no dedicated opcodes; they compile to the
	// complementary comparison followed by OP_NOT.
	tests := []struct {
		source string
		ops    []bytecode.OpCode
	}{
		{"1 != 2;", []bytecode.OpCode{bytecode.OpEqual, bytecode.OpNot}},
		{"1 >= 2;", []bytecode.OpCode{bytecode.OpLess, bytecode.OpNot}},
		{"1 <= 2;", []bytecode.OpCode{bytecode.OpGreater, bytecode.OpNot}},
	}
	for _, tt := range tests {
		fn := compileOK(t, tt.source)
		code := fn.Chunk.Code
		// constants occupy the first four bytes
		got := []bytecode.OpCode{bytecode.OpCode(code[4]), bytecode.OpCode(code[5])}
		if got[0] != tt.ops[0] || got[1] != tt.ops[1] {
			t.Errorf("%q: got %s %s, want %s %s", tt.source, got[0], got[1], tt.ops[0], tt.ops[1])
		}
	}
}

func TestConstantPoolDeduplication(t *testing.T) {
	fn := compileOK(t, `taste "soup"; taste "soup"; taste 7; taste 7;`)
	if n := len(fn.Chunk.Constants); n != 2 {
		t.Errorf("constant pool has %d entries, want 2: %v", n, fn.Chunk.Constants)
	}
}

func TestNestedFunctionCapturesUpvalue(t *testing.T) {
	fn := compileOK(t, `
Recipe outer() {
  ingredient pinch = 1;
  Recipe inner() {
    serve pinch;
  }
  serve inner;
}
`)
	var outer *bytecode.Function
	for _, c := range fn.Chunk.Constants {
		if f, ok := c.(*bytecode.Function); ok && f.Name == "outer" {
			outer = f
		}
	}
	if outer == nil {
		t.Fatal("outer function not in script constants")
	}
	var inner *bytecode.Function
	for _, c := range outer.Chunk.Constants {
		if f, ok := c.(*bytecode.Function); ok && f.Name == "inner" {
			inner = f
		}
	}
	if inner == nil {
		t.Fatal("inner function not in outer's constants")
	}
	if inner.UpvalueCount() != 1 {
		t.Fatalf("inner captures %d upvalues, want 1", inner.UpvalueCount())
	}
	if up := inner.Upvalues[0]; !up.IsLocal {
		t.Error("capture of an enclosing local must be flagged IsLocal")
	}
}

func TestTransitiveCaptureChains(t *testing.T) {
	fn := compileOK(t, `
Recipe a() {
  ingredient x = 1;
  Recipe b() {
    Recipe c() {
      serve x;
    }
    serve c;
  }
  serve b;
}
`)
	a := findFunction(t, fn, "a")
	b := findFunction(t, a, "b")
	c := findFunction(t, b, "c")
	if b.UpvalueCount() != 1 || !b.Upvalues[0].IsLocal {
		t.Errorf("b upvalues = %v, want one local capture", b.Upvalues)
	}
	if c.UpvalueCount() != 1 || c.Upvalues[0].IsLocal {
		t.Errorf("c upvalues = %v, want one capture threaded through b", c.Upvalues)
	}
}

func findFunction(t *testing.T, parent *bytecode.Function, name string) *bytecode.Function {
	t.Helper()
	for _, c := range parent.Chunk.Constants {
		if f, ok := c.(*bytecode.Function); ok && f.Name == name {
			return f
		}
	}
	t.Fatalf("function %s not found in %s", name, parent)
	return nil
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
	}{
		{"redeclare global", "ingredient a = 1; ingredient a = 2;",
			"Already an ingredient with this name in this scope."},
		{"redeclare local", "{ ingredient a = 1; ingredient a = 2; }",
			"Already an ingredient with this name in this scope."},
		{"self initializer", "{ ingredient a = 1; { ingredient a = a; } }",
			"Can't read ingredient in its own initializer."},
		{"serve at top level", "serve 1;",
			"Can't serve from top-level code."},
		{"invalid assignment target", "1 + 2 = 3;",
			"Invalid assignment target."},
		{"missing expression", "taste ;",
			"Expect expression."},
		{"reserved this", "this;",
			"Expect expression."},
		{"reserved Ingredients", "Ingredients;",
			"Expect expression."},
		{"missing then", "check true { taste 1; }",
			"Expect 'then' after check condition."},
		{"dangling otherwise", "otherwise { taste 1; }",
			"'otherwise' without a matching 'check'."},
		{"missing semicolon at end", "taste 1",
			"Expect ';' after value."},
		{"unterminated string", `taste "soup;`,
			"Unterminated string."},
		{"stray character", "taste 1 @ 2;",
			"Unexpected character '@'."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := compileErrs(t, tt.source)
			if !strings.Contains(list.Error(), tt.message) {
				t.Errorf("errors %q do not mention %q", list.Error(), tt.message)
			}
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	list := compileErrs(t, "taste 1 = 2;")
	if got := list.Error(); got != "[line 1] Error at '=': Invalid assignment target." {
		t.Errorf("formatted error = %q", got)
	}

	list = compileErrs(t, "taste 1 +")
	if got := list.Error(); got != "[line 1] Error at end of file: Expect expression." {
		t.Errorf("formatted error = %q", got)
	}
}

func TestMultipleIndependentErrors(t *testing.T) {
	list := compileErrs(t, "ingredient = 1;\ntaste 2;\nserve 3;\n")
	if len(list.Errors) != 2 {
		t.Fatalf("got %d errors, want 2:\n%s", len(list.Errors), list.Error())
	}
	if list.Errors[0].Line != 1 || list.Errors[1].Line != 3 {
		t.Errorf("error lines %d and %d, want 1 and 3",
			list.Errors[0].Line, list.Errors[1].Line)
	}
}

func TestShadowingInInnerScopeCompiles(t *testing.T) {
	compileOK(t, `
ingredient flavor = "outer";
{
  ingredient flavor = "inner";
  taste flavor;
}
taste flavor;
`)
}

func TestTooManyConstants(t *testing.T) {
	var sb strings.Builder
	for i := 0; i <= bytecode.MaxConstants; i++ {
		fmt.Fprintf(&sb, "taste %d.5;\n", i)
	}
	list := compileErrs(t, sb.String())
	if !strings.Contains(list.Error(), "Too many constants in one chunk.") {
		t.Errorf("errors %q do not mention the constant limit", list.Error())
	}
}

func TestTooManyParameters(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("Recipe wide(")
	for i := 0; i <= bytecode.MaxArity; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "p%d", i)
	}
	sb.WriteString(") { serve nil; }\n")
	list := compileErrs(t, sb.String())
	if !strings.Contains(list.Error(), "Can't have more than 255 parameters.") {
		t.Errorf("errors %q do not mention the parameter limit", list.Error())
	}
}
