package value

import "strings"

// Array is the materialized in-memory array counterpart of a raw array.
// Element order is significant and preserved.
type Array struct {
	values []Value
}

func NewArray() *Array {
	return &Array{}
}

// Reserve pre-sizes the array for n elements.
func (a *Array) Reserve(n int) {
	if cap(a.values) < n {
		values := make([]Value, len(a.values), n)
		copy(values, a.values)
		a.values = values
	}
}

func (a *Array) Push(v Value) {
	a.values = append(a.values, v)
}

func (a *Array) Len() int {
	return len(a.values)
}

func (a *Array) At(i int) Value {
	return a.values[i]
}

// Copy returns a deep copy of the array.
func (a *Array) Copy() *Array {
	c := &Array{values: make([]Value, len(a.values))}
	for i, v := range a.values {
		c.values[i] = v.Copy()
	}
	return c
}

func (a *Array) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range a.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
