// Package vm executes compiled Chef bytecode on a stack machine with call
// frames, closures and upvalue cells.
package vm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"chef/internal/bytecode"
	cheferrors "chef/internal/errors"
)

var log = commonlog.GetLogger("chef.vm")

// CallFrame is the execution context of one active call: the closure
// being run, its instruction offset, and the stack slot its locals start
// at. It exists only while the call is active.
type CallFrame struct {
	closure *Closure
	ip      int
	base    int
}

// VM owns one operand stack, one frame stack and one global table. A VM is
// single-threaded; only the interpreter loop mutates its state. Globals
// persist across Interpret calls, which is what keeps REPL lines
// connected.
type VM struct {
	stack        []Value
	frames       []CallFrame
	globals      map[string]Value
	openUpvalues []*Upvalue

	stdout io.Writer
	stderr io.Writer
	trace  bool
}

func New() *VM {
	globals := make(map[string]Value)
	declareNatives(globals)
	return &VM{
		stack:   make([]Value, 0, bytecode.MaxStack),
		frames:  make([]CallFrame, 0, bytecode.MaxFrames),
		globals: globals,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// SetOutput redirects taste output and diagnostics, mainly for tests and
// the REPL.
func (vm *VM) SetOutput(stdout, stderr io.Writer) {
	vm.stdout = stdout
	vm.stderr = stderr
}

// EnableTrace logs every executed instruction through commonlog.
func (vm *VM) EnableTrace() {
	vm.trace = true
}

// Stderr exposes the diagnostics sink so callers report errors to the
// same channel the VM was configured with.
func (vm *VM) Stderr() io.Writer {
	return vm.stderr
}

// Interpret runs a compiled top-level function to completion. Runtime
// errors are fatal to this call: the VM resets its stacks (globals
// survive) and returns a *errors.RuntimeError carrying the frame trace.
func (vm *VM) Interpret(fn *bytecode.Function) error {
	closure := NewClosure(fn)
	vm.frames = append(vm.frames, CallFrame{closure: closure})
	if err := vm.run(); err != nil {
		vm.reset()
		return err
	}
	vm.reset()
	return nil
}

func (vm *VM) reset() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = vm.openUpvalues[:0]
}

func (vm *VM) run() error {
	frame := vm.currentFrame()
	chunk := frame.closure.Function.Chunk

	for {
		if vm.trace {
			var sb strings.Builder
			bytecode.DisassembleInstruction(&sb, chunk, frame.ip)
			log.Debugf("%s", strings.TrimRight(sb.String(), "\n"))
		}
		op := bytecode.OpCode(chunk.Code[frame.ip])
		frame.ip++

		switch op {
		case bytecode.OpConstant:
			vm.push(chunk.Constants[vm.readByte(frame)])

		case bytecode.OpNil:
			vm.push(nil)
		case bytecode.OpTrue:
			vm.push(true)
		case bytecode.OpFalse:
			vm.push(false)
		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.base+slot])

		case bytecode.OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.base+slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := chunk.Constants[vm.readByte(frame)].(string)
			val, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined ingredient '%s'.", name)
			}
			vm.push(val)

		case bytecode.OpDefineGlobal:
			name := chunk.Constants[vm.readByte(frame)].(string)
			vm.globals[name] = vm.pop()

		case bytecode.OpSetGlobal:
			name := chunk.Constants[vm.readByte(frame)].(string)
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined ingredient '%s'.", name)
			}
			vm.globals[name] = vm.peek(0)

		case bytecode.OpGetUpvalue:
			index := vm.readByte(frame)
			vm.push(frame.closure.Upvalues[index].get(vm.stack))

		case bytecode.OpSetUpvalue:
			index := vm.readByte(frame)
			frame.closure.Upvalues[index].set(vm.stack, vm.peek(0))

		case bytecode.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(ValuesEqual(a, b))

		case bytecode.OpGreater:
			bn, an, ok := vm.popNumericPair()
			if !ok {
				return vm.runtimeError("Operands must be numbers.")
			}
			vm.push(an > bn)

		case bytecode.OpLess:
			bn, an, ok := vm.popNumericPair()
			if !ok {
				return vm.runtimeError("Operands must be numbers.")
			}
			vm.push(an < bn)

		case bytecode.OpAdd:
			b, a := vm.pop(), vm.pop()
			if as, ok := a.(string); ok {
				vm.push(as + ToString(b))
			} else if bs, ok := b.(string); ok {
				vm.push(ToString(a) + bs)
			} else if an, aok := a.(float64); aok {
				bn, bok := b.(float64)
				if !bok {
					return vm.runtimeError("Operands must be numbers or strings.")
				}
				vm.push(an + bn)
			} else {
				return vm.runtimeError("Operands must be numbers or strings.")
			}

		case bytecode.OpSubtract:
			bn, an, ok := vm.popNumericPair()
			if !ok {
				return vm.runtimeError("Operands must be numbers.")
			}
			vm.push(an - bn)

		case bytecode.OpMultiply:
			bn, an, ok := vm.popNumericPair()
			if !ok {
				return vm.runtimeError("Operands must be numbers.")
			}
			vm.push(an * bn)

		case bytecode.OpDivide:
			// ordinary IEEE semantics; dividing by zero yields an infinity
			bn, an, ok := vm.popNumericPair()
			if !ok {
				return vm.runtimeError("Operands must be numbers.")
			}
			vm.push(an / bn)

		case bytecode.OpNot:
			vm.push(IsFalsey(vm.pop()))

		case bytecode.OpNegate:
			n, ok := vm.pop().(float64)
			if !ok {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(-n)

		case bytecode.OpPrint:
			io.WriteString(vm.stdout, ToString(vm.pop())+"\n")

		case bytecode.OpJump:
			frame.ip += vm.readShort(frame)

		case bytecode.OpJumpIfFalse:
			offset := vm.readShort(frame)
			if IsFalsey(vm.peek(0)) {
				frame.ip += offset
			}

		case bytecode.OpLoop:
			frame.ip -= vm.readShort(frame)

		case bytecode.OpCall:
			argCount := int(vm.readByte(frame))
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = vm.currentFrame()
			chunk = frame.closure.Function.Chunk

		case bytecode.OpClosure:
			fn := chunk.Constants[vm.readByte(frame)].(*bytecode.Function)
			closure := NewClosure(fn)
			for i := range closure.Upvalues {
				isLocal := vm.readByte(frame) == 1
				index := int(vm.readByte(frame))
				if isLocal {
					closure.Upvalues[i] = vm.captureUpvalue(frame.base + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
			vm.push(closure)

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			base := frame.base
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return nil
			}
			vm.stack = vm.stack[:base]
			vm.push(result)
			frame = vm.currentFrame()
			chunk = frame.closure.Function.Chunk
		}
	}
}

// --- calls ---

func (vm *VM) callValue(callee Value, argCount int) error {
	switch fn := callee.(type) {
	case *Closure:
		return vm.call(fn, argCount)
	case *NativeFunction:
		if argCount != fn.Arity {
			return vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
		}
		args := make([]Value, argCount)
		copy(args, vm.stack[len(vm.stack)-argCount:])
		vm.stack = vm.stack[:len(vm.stack)-argCount-1]
		result, err := fn.Fn(args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.push(result)
		return nil
	default:
		return vm.runtimeError("Can only call utensils.")
	}
}

// call removes the callee from under its arguments and pushes a frame
// whose base points at the first argument, so parameters occupy the first
// local slots of the callee.
func (vm *VM) call(closure *Closure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.",
			closure.Function.Arity, argCount)
	}
	if len(vm.frames) == bytecode.MaxFrames {
		return vm.runtimeError("Stack overflow.")
	}
	calleeIndex := len(vm.stack) - argCount - 1
	copy(vm.stack[calleeIndex:], vm.stack[calleeIndex+1:])
	vm.stack = vm.stack[:len(vm.stack)-1]
	vm.frames = append(vm.frames, CallFrame{
		closure: closure,
		base:    len(vm.stack) - argCount,
	})
	return nil
}

// --- upvalues ---

// captureUpvalue returns the open cell for a stack slot, creating one if
// none exists yet. The list stays ordered by slot so closing a frame's
// region walks only its tail; capturing the same slot twice yields the
// same cell.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	insert := len(vm.openUpvalues)
	for i := len(vm.openUpvalues) - 1; i >= 0; i-- {
		existing, _ := vm.openUpvalues[i].Slot()
		if existing == slot {
			return vm.openUpvalues[i]
		}
		if existing < slot {
			break
		}
		insert = i
	}
	cell := newUpvalue(slot)
	vm.openUpvalues = append(vm.openUpvalues, nil)
	copy(vm.openUpvalues[insert+1:], vm.openUpvalues[insert:])
	vm.openUpvalues[insert] = cell
	return cell
}

// closeUpvalues promotes every open cell at or above from, then drops
// them from the open list.
func (vm *VM) closeUpvalues(from int) {
	i := len(vm.openUpvalues)
	for i > 0 {
		slot, _ := vm.openUpvalues[i-1].Slot()
		if slot < from {
			break
		}
		i--
		vm.openUpvalues[i].close(vm.stack)
	}
	vm.openUpvalues = vm.openUpvalues[:i]
}

// --- stack and decoding helpers ---

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[len(vm.frames)-1]
}

func (vm *VM) push(val Value) {
	vm.stack = append(vm.stack, val)
}

func (vm *VM) pop() Value {
	val := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return val
}

func (vm *VM) peek(depth int) Value {
	return vm.stack[len(vm.stack)-1-depth]
}

func (vm *VM) popNumericPair() (b, a float64, ok bool) {
	bv, bok := vm.peek(0).(float64)
	av, aok := vm.peek(1).(float64)
	if !bok || !aok {
		return 0, 0, false
	}
	vm.pop()
	vm.pop()
	return bv, av, true
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.closure.Function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readShort(frame *CallFrame) int {
	code := frame.closure.Function.Chunk.Code
	hi := int(code[frame.ip])
	lo := int(code[frame.ip+1])
	frame.ip += 2
	return hi<<8 | lo
}

// runtimeError builds the fatal error for this interpret call, with one
// trace entry per active frame, innermost first.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	runtimeErr := &cheferrors.RuntimeError{
		Message: fmt.Sprintf(format, args...),
	}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		frame := vm.frames[i]
		fn := frame.closure.Function
		runtimeErr.Trace = append(runtimeErr.Trace, cheferrors.StackFrame{
			Function: fn.Name,
			Line:     fn.Chunk.Line(frame.ip - 1),
		})
	}
	return runtimeErr
}
