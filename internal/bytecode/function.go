package bytecode

import "fmt"

// UpvalueRef describes one captured variable of a function: either a local
// slot of the directly enclosing function (IsLocal) or an upvalue index of
// the enclosing function, for captures chained through several levels.
type UpvalueRef struct {
	IsLocal bool
	Index   byte
}

// Function is a compiled function: its chunk plus the metadata the VM
// needs to call it. Created once per declaration at compile time and
// shared read-only by every closure built from it. The top-level script
// compiles to a Function with an empty name.
type Function struct {
	Name     string
	Arity    int
	Chunk    *Chunk
	Upvalues []UpvalueRef
}

func NewFunction(name string) *Function {
	return &Function{
		Name:  name,
		Chunk: NewChunk(),
	}
}

// UpvalueCount is the number of cells a closure over this function carries.
func (f *Function) UpvalueCount() int {
	return len(f.Upvalues)
}

// IsScript reports whether this is top-level code rather than a declared
// utensil.
func (f *Function) IsScript() bool {
	return f.Name == ""
}

func (f *Function) String() string {
	if f.IsScript() {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name)
}
