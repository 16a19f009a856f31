package value

import "strings"

// Object is an insertion-ordered keyed-field container, the materialized
// counterpart of a raw document. Field order is significant and preserved.
//
// Lookup is a linear scan: objects built by the engine are small (one
// projection level's worth of fields), and the construction path looks keys
// up in a dedicated map, not here.
type Object struct {
	names  []string
	values []Value
}

func NewObject() *Object {
	return &Object{}
}

// Reserve pre-sizes the object for n fields.
func (o *Object) Reserve(n int) {
	if cap(o.names) < n {
		names := make([]string, len(o.names), n)
		copy(names, o.names)
		o.names = names
		values := make([]Value, len(o.values), n)
		copy(values, o.values)
		o.values = values
	}
}

// Push appends a field. The caller is responsible for name uniqueness; the
// object does not check it.
func (o *Object) Push(name string, v Value) {
	o.names = append(o.names, name)
	o.values = append(o.values, v)
}

func (o *Object) Len() int {
	return len(o.names)
}

func (o *Object) Name(i int) string {
	return o.names[i]
}

func (o *Object) ValueAt(i int) Value {
	return o.values[i]
}

// Get returns the value for name, or Nothing if absent.
func (o *Object) Get(name string) (Value, bool) {
	for i, n := range o.names {
		if n == name {
			return o.values[i], true
		}
	}
	return Nothing(), false
}

// Copy returns a deep copy of the object.
func (o *Object) Copy() *Object {
	c := &Object{
		names:  append([]string(nil), o.names...),
		values: make([]Value, len(o.values)),
	}
	for i, v := range o.values {
		c.values[i] = v.Copy()
	}
	return c
}

func (o *Object) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, n := range o.names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(n)
		sb.WriteString(": ")
		sb.WriteString(o.values[i].String())
	}
	sb.WriteByte('}')
	return sb.String()
}
