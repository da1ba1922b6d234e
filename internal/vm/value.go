package vm

import (
	"fmt"
	"strconv"

	"chef/internal/bytecode"
)

// Value is any Chef runtime value: nil, bool, float64, string, *Closure,
// *NativeFunction, or (inside constant pools) *bytecode.Function. Numbers,
// booleans and nil copy by value; everything else is shared by reference.
type Value interface{}

// Closure pairs a compiled function with its captured upvalue cells. One
// is created every time execution reaches the function's declaration, so
// each evaluation gets its own capture snapshot.
type Closure struct {
	Function *bytecode.Function
	Upvalues []*Upvalue
}

func NewClosure(fn *bytecode.Function) *Closure {
	return &Closure{
		Function: fn,
		Upvalues: make([]*Upvalue, fn.UpvalueCount()),
	}
}

func (c *Closure) String() string {
	return c.Function.String()
}

// NativeFunction is a host function exposed to Chef programs.
type NativeFunction struct {
	Name  string
	Arity int
	Fn    func(args []Value) (Value, error)
}

func (n *NativeFunction) String() string {
	return "<native fn>"
}

// IsFalsey reports Chef truthiness: nil and false are falsey, everything
// else, zero and the empty string included, is truthy.
func IsFalsey(val Value) bool {
	return val == nil || val == false
}

// ValuesEqual implements Chef equality: values of different types are
// never equal, strings compare by content, callables by identity. Go
// interface comparison gives exactly that for the value set above.
func ValuesEqual(a, b Value) bool {
	return a == b
}

// ToString renders a value the way taste prints it.
func ToString(val Value) string {
	switch v := val.(type) {
	case nil:
		return "nil"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case *Closure:
		return v.String()
	case *bytecode.Function:
		return v.String()
	case *NativeFunction:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// TypeName names a value's type for diagnostics.
func TypeName(val Value) string {
	switch val.(type) {
	case nil:
		return "nil"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case *Closure, *bytecode.Function:
		return "utensil"
	case *NativeFunction:
		return "native utensil"
	default:
		return "unknown"
	}
}
