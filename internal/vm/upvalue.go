package vm

// Upvalue is the cell through which closures reach a variable from an
// enclosing scope. It is an explicit two-state variant: open, pointing at
// a live stack slot, or closed, owning a promoted copy. The transition
// runs open to closed exactly once, when the slot's frame or block is
// about to go away, and never reverses.
type Upvalue struct {
	open   bool
	slot   int
	closed Value
}

func newUpvalue(slot int) *Upvalue {
	return &Upvalue{open: true, slot: slot}
}

// Slot returns the referenced stack slot; only meaningful while open.
func (u *Upvalue) Slot() (int, bool) {
	return u.slot, u.open
}

func (u *Upvalue) get(stack []Value) Value {
	if u.open {
		return stack[u.slot]
	}
	return u.closed
}

func (u *Upvalue) set(stack []Value, val Value) {
	if u.open {
		stack[u.slot] = val
		return
	}
	u.closed = val
}

// close promotes the referenced slot's value into the cell itself, so
// closures escaping the frame keep a live, shared binding.
func (u *Upvalue) close(stack []Value) {
	if !u.open {
		return
	}
	u.closed = stack[u.slot]
	u.open = false
}
