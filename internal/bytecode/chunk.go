package bytecode

import "errors"

// ErrTooManyConstants is reported when a chunk's constant pool is full.
var ErrTooManyConstants = errors.New("too many constants in one chunk")

// Chunk is one compiled function's instruction stream, constant pool and
// line table. Lines runs parallel to Code: Lines[i] is the source line of
// the byte at Code[i]. A chunk is built during compilation of its function
// and never mutated afterwards.
type Chunk struct {
	Code      []byte
	Constants []interface{}
	Lines     []int
}

func NewChunk() *Chunk {
	return &Chunk{}
}

func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

func (c *Chunk) WriteOp(op OpCode, line int) {
	c.Write(byte(op), line)
}

// AddConstant appends val to the constant pool and returns its index.
// String and number constants are deduplicated so repeated literals and
// identifier names share one slot.
func (c *Chunk) AddConstant(val interface{}) (int, error) {
	switch val.(type) {
	case string, float64:
		for i, existing := range c.Constants {
			if existing == val {
				return i, nil
			}
		}
	}
	if len(c.Constants) >= MaxConstants {
		return 0, ErrTooManyConstants
	}
	c.Constants = append(c.Constants, val)
	return len(c.Constants) - 1, nil
}

// Line returns the source line for the instruction at offset ip.
func (c *Chunk) Line(ip int) int {
	if ip >= 0 && ip < len(c.Lines) {
		return c.Lines[ip]
	}
	return 0
}
