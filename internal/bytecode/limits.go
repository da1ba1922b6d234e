package bytecode

// Fixed capacities of the bytecode format and the interpreter.
// The compiler reports an error when a program exceeds one of these;
// nothing ever wraps or truncates silently.
const (
	// MaxConstants is the number of constants one chunk can hold,
	// bounded by the one-byte constant-index operand.
	MaxConstants = 256

	// MaxLocals is the number of local slots per function, bounded by
	// the one-byte slot operand.
	MaxLocals = 256

	// MaxUpvalues is the number of captured variables per function.
	MaxUpvalues = 256

	// MaxArity is the largest declared parameter (and argument) count.
	MaxArity = 255

	// MaxFrames is the call-frame stack depth; exceeding it is a
	// stack-overflow runtime error.
	MaxFrames = 64

	// MaxStack is the operand-stack capacity.
	MaxStack = MaxFrames * MaxLocals

	// MaxJump is the largest forward or backward jump span, bounded by
	// the two-byte jump operand.
	MaxJump = 65535
)
