// Package value defines the tagged value model flowing between plan stages:
// scalars, raw (lazily-navigable, length-prefixed) documents and arrays in
// BSON encoding, and their fully-materialized in-memory counterparts.
package value

import (
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/pallasdb/pallas/common"
)

type Tag uint8

const (
	// TagNothing is the missing-value sentinel. It is distinct from Null:
	// Nothing means "no value exists", Null is a present null value.
	TagNothing Tag = iota
	TagNull
	TagBoolean
	TagInt32
	TagInt64
	TagDouble
	TagString
	// TagRawDocument wraps an encoded document: 4-byte little-endian length,
	// a sequence of (type, name, value) entries, a zero terminator byte.
	TagRawDocument
	// TagRawArray wraps an encoded array (same layout, index-string keys).
	TagRawArray
	// TagRawValue wraps a single encoded value of any other type, kept
	// undecoded so it can be copied verbatim into an output document.
	TagRawValue
	// TagObject is the materialized in-memory counterpart of a raw document.
	TagObject
	// TagArray is the materialized in-memory counterpart of a raw array.
	TagArray
)

func (t Tag) String() string {
	switch t {
	case TagNothing:
		return "Nothing"
	case TagNull:
		return "Null"
	case TagBoolean:
		return "Boolean"
	case TagInt32:
		return "Int32"
	case TagInt64:
		return "Int64"
	case TagDouble:
		return "Double"
	case TagString:
		return "String"
	case TagRawDocument:
		return "RawDocument"
	case TagRawArray:
		return "RawArray"
	case TagRawValue:
		return "RawValue"
	case TagObject:
		return "Object"
	case TagArray:
		return "Array"
	}
	return "unknown"
}

// Value is a discriminated union over the engine's value types.
//
// Raw values constructed from storage buffers are VIEWS: they alias memory the
// engine does not own, and become invalid once the underlying snapshot is
// released. Call Copy to decouple a view before it outlives its source; the
// Owned method reports whether that is necessary.
type Value struct {
	tag     Tag
	owned   bool
	num     int64
	str     string
	raw     []byte
	rawType bsontype.Type
	obj     *Object
	arr     *Array
}

// Nothing returns the missing-value sentinel.
func Nothing() Value {
	return Value{tag: TagNothing, owned: true}
}

// Null returns a present null value.
func Null() Value {
	return Value{tag: TagNull, owned: true}
}

func NewBool(v bool) Value {
	var n int64
	if v {
		n = 1
	}
	return Value{tag: TagBoolean, owned: true, num: n}
}

func NewInt32(v int32) Value {
	return Value{tag: TagInt32, owned: true, num: int64(v)}
}

func NewInt64(v int64) Value {
	return Value{tag: TagInt64, owned: true, num: v}
}

func NewDouble(v float64) Value {
	return Value{tag: TagDouble, owned: true, num: int64(math.Float64bits(v))}
}

func NewString(v string) Value {
	return Value{tag: TagString, owned: true, str: v}
}

// NewRawDocument wraps encoded document bytes as a view. The bytes are not
// copied; the caller retains ownership.
func NewRawDocument(d bsoncore.Document) Value {
	return Value{tag: TagRawDocument, raw: d}
}

// NewOwnedRawDocument wraps encoded document bytes the caller relinquishes,
// typically a freshly-built buffer. The value owns the bytes.
func NewOwnedRawDocument(d []byte) Value {
	return Value{tag: TagRawDocument, owned: true, raw: d}
}

// NewRawArray wraps encoded array bytes as a view.
func NewRawArray(a []byte) Value {
	return Value{tag: TagRawArray, raw: a}
}

// NewRawValue wraps one encoded value of an arbitrary type as a view.
func NewRawValue(t bsontype.Type, data []byte) Value {
	return Value{tag: TagRawValue, rawType: t, raw: data}
}

// NewObjectValue wraps a materialized object. The object must be fully owned
// by the caller; engine code always deep-copies contents into objects it
// builds, so object values are treated as owned.
func NewObjectValue(o *Object) Value {
	return Value{tag: TagObject, owned: true, obj: o}
}

// NewArrayValue wraps a materialized array; same ownership contract as
// NewObjectValue.
func NewArrayValue(a *Array) Value {
	return Value{tag: TagArray, owned: true, arr: a}
}

func (v Value) Tag() Tag { return v.tag }

func (v Value) IsNothing() bool { return v.tag == TagNothing }

// IsDocument reports whether the value is a document in either representation.
func (v Value) IsDocument() bool {
	return v.tag == TagRawDocument || v.tag == TagObject
}

// IsArray reports whether the value is an array in either representation.
func (v Value) IsArray() bool {
	return v.tag == TagRawArray || v.tag == TagArray
}

// Owned reports whether the value is decoupled from any storage buffer. Owned
// values survive a storage yield; views must be copied first.
func (v Value) Owned() bool {
	return v.owned || v.tag == TagNothing
}

func (v Value) Boolean() bool {
	common.Assert(v.tag == TagBoolean, "type mismatch in Boolean: %s", v.tag)
	return v.num != 0
}

func (v Value) Int32() int32 {
	common.Assert(v.tag == TagInt32, "type mismatch in Int32: %s", v.tag)
	return int32(v.num)
}

func (v Value) Int64() int64 {
	common.Assert(v.tag == TagInt64, "type mismatch in Int64: %s", v.tag)
	return v.num
}

func (v Value) Double() float64 {
	common.Assert(v.tag == TagDouble, "type mismatch in Double: %s", v.tag)
	return math.Float64frombits(uint64(v.num))
}

func (v Value) StringValue() string {
	common.Assert(v.tag == TagString, "type mismatch in StringValue: %s", v.tag)
	return v.str
}

func (v Value) RawDocument() bsoncore.Document {
	common.Assert(v.tag == TagRawDocument, "type mismatch in RawDocument: %s", v.tag)
	return bsoncore.Document(v.raw)
}

func (v Value) RawArray() []byte {
	common.Assert(v.tag == TagRawArray, "type mismatch in RawArray: %s", v.tag)
	return v.raw
}

func (v Value) RawValue() (bsontype.Type, []byte) {
	common.Assert(v.tag == TagRawValue, "type mismatch in RawValue: %s", v.tag)
	return v.rawType, v.raw
}

func (v Value) Object() *Object {
	common.Assert(v.tag == TagObject, "type mismatch in Object: %s", v.tag)
	return v.obj
}

func (v Value) Array() *Array {
	common.Assert(v.tag == TagArray, "type mismatch in Array: %s", v.tag)
	return v.arr
}

// Copy returns a deep, fully-owned copy of the value, decoupled from any
// storage buffer. Scalars are returned as-is; raw bytes are cloned; in-memory
// containers are copied recursively.
func (v Value) Copy() Value {
	switch v.tag {
	case TagRawDocument, TagRawArray, TagRawValue:
		if v.owned {
			return v
		}
		c := v
		c.raw = append([]byte(nil), v.raw...)
		c.owned = true
		return c
	case TagObject:
		c := v
		c.obj = v.obj.Copy()
		return c
	case TagArray:
		c := v
		c.arr = v.arr.Copy()
		return c
	default:
		v.owned = true
		return v
	}
}

func (v Value) String() string {
	switch v.tag {
	case TagNothing:
		return "Nothing"
	case TagNull:
		return "null"
	case TagBoolean:
		return fmt.Sprintf("%t", v.num != 0)
	case TagInt32, TagInt64:
		return fmt.Sprintf("%d", v.num)
	case TagDouble:
		return fmt.Sprintf("%g", v.Double())
	case TagString:
		return fmt.Sprintf("%q", v.str)
	case TagRawDocument:
		return bsoncore.Document(v.raw).String()
	case TagRawArray:
		return bsoncore.Document(v.raw).String()
	case TagRawValue:
		return fmt.Sprintf("rawValue(%s)", v.rawType)
	case TagObject:
		return v.obj.String()
	case TagArray:
		return v.arr.String()
	}
	return "unknown"
}
