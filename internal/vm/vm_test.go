package vm

import (
	"bytes"
	"strings"
	"testing"

	"chef/internal/bytecode"
	"chef/internal/compiler"
	cheferrors "chef/internal/errors"
)

// runSource compiles and executes source on a fresh VM, returning taste
// output joined as written.
func runSource(t *testing.T, source string) string {
	t.Helper()
	out, err := tryRun(t, source)
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return out
}

func tryRun(t *testing.T, source string) (string, error) {
	t.Helper()
	fn, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	machine := New()
	var out bytes.Buffer
	machine.SetOutput(&out, &out)
	runErr := machine.Interpret(fn)
	return out.String(), runErr
}

func runtimeErr(t *testing.T, source string) *cheferrors.RuntimeError {
	t.Helper()
	_, err := tryRun(t, source)
	if err == nil {
		t.Fatalf("expected runtime error for %q", source)
	}
	rtErr, ok := err.(*cheferrors.RuntimeError)
	if !ok {
		t.Fatalf("error is %T, want *errors.RuntimeError", err)
	}
	return rtErr
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"taste 2 + 3 * 4;", "14\n"},
		{"taste 2 - 6 / 3;", "0\n"},
		{"taste 2 * (6 - (2 + 2));", "4\n"},
		{"taste -4 + 6;", "2\n"},
		{"taste 1 - 2 - 3;", "-4\n"},
		{"taste 0.1 + 0.25;", "0.35\n"},
		{"taste 10 / 4;", "2.5\n"},
		{"taste 1 / 0;", "+Inf\n"},
	}
	for _, tt := range tests {
		if got := runSource(t, tt.source); got != tt.want {
			t.Errorf("%q printed %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestComparisonAndEquality(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"taste 1 < 2;", "true\n"},
		{"taste 2 <= 2;", "true\n"},
		{"taste 3 > 4;", "false\n"},
		{"taste 1 != 2;", "true\n"},
		{`taste "pie" == "pie";`, "true\n"},
		{`taste "pie" == "tart";`, "false\n"},
		// comparison binds tighter than equality
		{"taste false == 2 < 1;", "true\n"},
		// values of different types are never equal
		{`taste 1 == "1";`, "false\n"},
		{"taste nil == false;", "false\n"},
		{"taste nil == nil;", "true\n"},
	}
	for _, tt := range tests {
		if got := runSource(t, tt.source); got != tt.want {
			t.Errorf("%q printed %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestTruthinessAndNot(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"taste !nil;", "true\n"},
		{"taste !false;", "true\n"},
		{"taste !0;", "false\n"},
		{`taste !"";`, "false\n"},
		{"taste !true;", "false\n"},
	}
	for _, tt := range tests {
		if got := runSource(t, tt.source); got != tt.want {
			t.Errorf("%q printed %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestStringConcatenation(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`taste "one " + "pot";`, "one pot\n"},
		{`taste "scones: " + 4;`, "scones: 4\n"},
		{`taste 4 + " scones";`, "4 scones\n"},
		{`taste "done? " + true;`, "done? true\n"},
		{`taste "got " + nil;`, "got nil\n"},
	}
	for _, tt := range tests {
		if got := runSource(t, tt.source); got != tt.want {
			t.Errorf("%q printed %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestShortCircuitEvaluation(t *testing.T) {
	got := runSource(t, `
ingredient touched = false;
Recipe sideEffect() {
  touched = true;
  serve true;
}
taste 1 or sideEffect();
taste touched;
taste false and sideEffect();
taste touched;
taste nil or "fallback";
taste "first" and "second";
`)
	want := "1\nfalse\nfalse\nfalse\nfallback\nsecond\n"
	if got != want {
		t.Errorf("printed %q, want %q", got, want)
	}
}

func TestGlobalsAndAssignment(t *testing.T) {
	got := runSource(t, `
ingredient flour = 100;
flour = flour + 50;
taste flour;
ingredient unset;
taste unset;
`)
	if got != "150\nnil\n" {
		t.Errorf("printed %q", got)
	}
}

func TestBlockShadowing(t *testing.T) {
	got := runSource(t, `
ingredient flavor = "outer";
{
  ingredient flavor = "inner";
  taste flavor;
}
taste flavor;
`)
	if got != "inner\nouter\n" {
		t.Errorf("printed %q", got)
	}
}

func TestCheckStatement(t *testing.T) {
	got := runSource(t, `
check 1 > 2 then {
  taste "big";
} otherwise {
  taste "small";
}
check "truthy" then {
  taste "yes";
}
`)
	if got != "small\nyes\n" {
		t.Errorf("printed %q", got)
	}
}

func TestStirLoop(t *testing.T) {
	got := runSource(t, `
ingredient i = 0;
stir i < 3 {
  taste i;
  i = i + 1;
}
taste "done";
`)
	if got != "0\n1\n2\ndone\n" {
		t.Errorf("printed %q", got)
	}
}

func TestFunctionCallsAndReturns(t *testing.T) {
	got := runSource(t, `
Recipe combine(a, b) {
  serve a + b;
}
taste combine(2, 3);
taste combine("jam ", "tart");

Recipe noServe() {
  ingredient local = 1;
}
taste noServe();

Recipe bareServe() {
  serve;
}
taste bareServe();
`)
	if got != "5\njam tart\nnil\nnil\n" {
		t.Errorf("printed %q", got)
	}
}

func TestRecursion(t *testing.T) {
	got := runSource(t, `
Recipe fib(n) {
  check n < 2 then {
    serve n;
  }
  serve fib(n - 1) + fib(n - 2);
}
taste fib(10);
`)
	if got != "55\n" {
		t.Errorf("printed %q", got)
	}
}

func TestClosureCountersStayIndependent(t *testing.T) {
	got := runSource(t, `
Recipe makeCounter() {
  ingredient count = 0;
  Recipe increment() {
    count = count + 1;
    serve count;
  }
  serve increment;
}
ingredient first = makeCounter();
ingredient second = makeCounter();
taste first();
taste first();
taste second();
taste first();
`)
	if got != "1\n2\n1\n3\n" {
		t.Errorf("printed %q", got)
	}
}

func TestClosuresShareOneCell(t *testing.T) {
	got := runSource(t, `
ingredient getter = nil;
ingredient setter = nil;
{
  ingredient shared = "before";
  Recipe get() {
    serve shared;
  }
  Recipe set(val) {
    shared = val;
  }
  getter = get;
  setter = set;
}
setter("after");
taste getter();
`)
	if got != "after\n" {
		t.Errorf("printed %q", got)
	}
}

func TestUpvalueOutlivesLoopIteration(t *testing.T) {
	got := runSource(t, `
ingredient saved = nil;
ingredient i = 0;
stir i < 3 {
  ingredient here = i;
  check here == 1 then {
    Recipe remember() {
      serve here;
    }
    saved = remember;
  }
  i = i + 1;
}
taste saved();
`)
	if got != "1\n" {
		t.Errorf("printed %q", got)
	}
}

func TestNativeFunctions(t *testing.T) {
	got := runSource(t, `
taste len("souffle");
taste str(12.5) + "!";
taste clock() > 0;
`)
	if got != "7\n12.5!\ntrue\n" {
		t.Errorf("printed %q", got)
	}
}

func TestDeterministicOutput(t *testing.T) {
	source := `
Recipe mix(a, b) {
  serve a * 10 + b;
}
ingredient total = 0;
ingredient i = 0;
stir i < 5 {
  total = total + mix(i, i + 1);
  i = i + 1;
}
taste total;
`
	first := runSource(t, source)
	second := runSource(t, source)
	if first != second {
		t.Errorf("same program printed %q then %q", first, second)
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
	}{
		{"undefined global read", "taste missing;",
			"Undefined ingredient 'missing'."},
		{"undefined global write", "missing = 1;",
			"Undefined ingredient 'missing'."},
		{"subtract strings", `taste "a" - "b";`,
			"Operands must be numbers."},
		{"add number and nil", "taste 1 + nil;",
			"Operands must be numbers or strings."},
		{"negate string", `taste -"four";`,
			"Operand must be a number."},
		{"call a number", "ingredient n = 7; n();",
			"Can only call utensils."},
		{"wrong arity", "Recipe pair(a, b) { serve a; } pair(1);",
			"Expected 2 arguments but got 1."},
		{"native arity", "len();",
			"Expected 1 arguments but got 0."},
		{"native type check", "len(5);",
			"Argument to 'len' must be a string."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rtErr := runtimeErr(t, tt.source)
			if rtErr.Message != tt.message {
				t.Errorf("message = %q, want %q", rtErr.Message, tt.message)
			}
		})
	}
}

func TestRuntimeErrorTrace(t *testing.T) {
	rtErr := runtimeErr(t, `Recipe inner() {
  serve 1 + nil;
}
Recipe outer() {
  serve inner();
}
outer();
`)
	if len(rtErr.Trace) != 3 {
		t.Fatalf("trace has %d frames, want 3:\n%v", len(rtErr.Trace), rtErr)
	}
	if rtErr.Trace[0].Function != "inner" || rtErr.Trace[1].Function != "outer" {
		t.Errorf("trace order is %v, want innermost first", rtErr.Trace)
	}
	if rtErr.Trace[2].Function != "" {
		t.Errorf("outermost frame should be the script, got %q", rtErr.Trace[2].Function)
	}
	if rtErr.Trace[0].Line != 2 {
		t.Errorf("innermost frame at line %d, want 2", rtErr.Trace[0].Line)
	}
	formatted := rtErr.Error()
	if !strings.Contains(formatted, "[line 2] in inner()") ||
		!strings.Contains(formatted, "in script") {
		t.Errorf("formatted trace missing frames:\n%s", formatted)
	}
}

func TestStackOverflow(t *testing.T) {
	rtErr := runtimeErr(t, `
Recipe spiral() {
  serve spiral();
}
spiral();
`)
	if rtErr.Message != "Stack overflow." {
		t.Errorf("message = %q", rtErr.Message)
	}
}

func TestGlobalsSurviveAcrossInterpretCalls(t *testing.T) {
	machine := New()
	var out bytes.Buffer
	machine.SetOutput(&out, &out)

	fn, err := compiler.Compile("ingredient simmer = 40;")
	if err != nil {
		t.Fatal(err)
	}
	if err := machine.Interpret(fn); err != nil {
		t.Fatal(err)
	}

	fn, err = compiler.Compile("taste simmer + 2;")
	if err != nil {
		t.Fatal(err)
	}
	if err := machine.Interpret(fn); err != nil {
		t.Fatal(err)
	}
	if out.String() != "42\n" {
		t.Errorf("printed %q", out.String())
	}
}

func TestVMResetsAfterRuntimeError(t *testing.T) {
	machine := New()
	var out bytes.Buffer
	machine.SetOutput(&out, &out)

	fn, err := compiler.Compile("ingredient x = 1; taste missing;")
	if err != nil {
		t.Fatal(err)
	}
	if err := machine.Interpret(fn); err == nil {
		t.Fatal("expected runtime error")
	}

	fn, err = compiler.Compile("taste x;")
	if err != nil {
		t.Fatal(err)
	}
	if err := machine.Interpret(fn); err != nil {
		t.Fatalf("VM unusable after error: %v", err)
	}
	if out.String() != "1\n" {
		t.Errorf("printed %q", out.String())
	}
}

func TestValuesEqual(t *testing.T) {
	fn := bytecode.NewFunction("stir")
	closure := NewClosure(fn)
	tests := []struct {
		a, b Value
		want bool
	}{
		{float64(1), float64(1), true},
		{float64(1), float64(2), false},
		{"soup", "soup", true},
		{float64(1), "1", false},
		{nil, nil, true},
		{nil, false, false},
		{true, true, true},
		{closure, closure, true},
	}
	for _, tt := range tests {
		if got := ValuesEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("ValuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if ValuesEqual(NewClosure(fn), NewClosure(fn)) {
		t.Error("distinct closures must not compare equal")
	}
}

func TestToString(t *testing.T) {
	tests := []struct {
		val  Value
		want string
	}{
		{nil, "nil"},
		{true, "true"},
		{false, "false"},
		{float64(14), "14"},
		{float64(2.5), "2.5"},
		{float64(-0.5), "-0.5"},
		{"as is", "as is"},
		{&NativeFunction{Name: "clock"}, "<native fn>"},
	}
	for _, tt := range tests {
		if got := ToString(tt.val); got != tt.want {
			t.Errorf("ToString(%v) = %q, want %q", tt.val, got, tt.want)
		}
	}
}
