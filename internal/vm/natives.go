package vm

import (
	"fmt"
	"time"
)

// declareNatives installs the host functions every VM starts with. They
// live in the global table like any other binding, so Chef code can
// shadow or pass them around freely.
func declareNatives(globals map[string]Value) {
	for _, native := range []*NativeFunction{
		{Name: "clock", Arity: 0, Fn: nativeClock},
		{Name: "len", Arity: 1, Fn: nativeLen},
		{Name: "str", Arity: 1, Fn: nativeStr},
	} {
		globals[native.Name] = native
	}
}

func nativeClock(_ []Value) (Value, error) {
	return float64(time.Now().UnixNano()) / float64(time.Second), nil
}

func nativeLen(args []Value) (Value, error) {
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("Argument to 'len' must be a string.")
	}
	return float64(len(s)), nil
}

func nativeStr(args []Value) (Value, error) {
	return ToString(args[0]), nil
}
