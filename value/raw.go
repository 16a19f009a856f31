package value

import (
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/pallasdb/pallas/common"
)

// DocIter streams a raw document's (name, value) entries in declaration order
// without decoding values eagerly. Values returned by Next are views into the
// source buffer.
type DocIter struct {
	rem []byte
}

// IterateRawDocument validates the length prefix and terminator of d and
// returns an iterator over its field entries. The same layout is shared by
// raw arrays, so this is also the array element iterator.
func IterateRawDocument(d []byte) (DocIter, error) {
	length, _, ok := bsoncore.ReadLength(d)
	if !ok || int(length) != len(d) || length < 5 || d[len(d)-1] != 0 {
		return DocIter{}, common.Errorf(common.CorruptDocumentError,
			"malformed document: length prefix %d, buffer %d bytes", length, len(d))
	}
	return DocIter{rem: d[4 : len(d)-1]}, nil
}

// Next advances to the next field entry. The returned key and value alias the
// source buffer. ok is false at the end of the document or on a malformed
// entry; the two cases are distinguished by Valid.
func (it *DocIter) Next() (key []byte, val bsoncore.Value, ok bool) {
	if len(it.rem) == 0 {
		return nil, bsoncore.Value{}, false
	}
	t, rem, ok := bsoncore.ReadType(it.rem)
	if !ok {
		return nil, bsoncore.Value{}, false
	}
	key, rem, ok = bsoncore.ReadKeyBytes(rem)
	if !ok {
		it.rem = nil
		return nil, bsoncore.Value{}, false
	}
	val, rem, ok = bsoncore.ReadValue(rem, t)
	if !ok {
		it.rem = nil
		return nil, bsoncore.Value{}, false
	}
	it.rem = rem
	return key, val, true
}

// Valid reports whether the iterator consumed the document without hitting a
// malformed entry. Meaningful only after Next returned false.
func (it *DocIter) Valid() bool {
	return it.rem != nil && len(it.rem) == 0
}

// FromRaw decodes one encoded value into the tagged value model. Documents,
// arrays and types without a dedicated tag stay encoded; the result is a view
// into v's buffer.
func FromRaw(v bsoncore.Value) Value {
	switch v.Type {
	case bsontype.Double:
		return NewDouble(v.Double())
	case bsontype.String:
		return NewString(v.StringValue())
	case bsontype.EmbeddedDocument:
		return NewRawDocument(bsoncore.Document(v.Data))
	case bsontype.Array:
		return NewRawArray(v.Data)
	case bsontype.Boolean:
		return NewBool(v.Boolean())
	case bsontype.Int32:
		return NewInt32(v.Int32())
	case bsontype.Int64:
		return NewInt64(v.Int64())
	case bsontype.Null:
		return Null()
	default:
		return NewRawValue(v.Type, v.Data)
	}
}

// LookupField finds the named field in a document of either representation.
// The result is Nothing when the input is not a document or lacks the field;
// for raw documents it is a view into the input's buffer.
func LookupField(v Value, name string) (Value, error) {
	switch v.tag {
	case TagRawDocument:
		it, err := IterateRawDocument(v.raw)
		if err != nil {
			return Nothing(), err
		}
		for {
			key, raw, ok := it.Next()
			if !ok {
				break
			}
			if string(key) == name {
				return FromRaw(raw), nil
			}
		}
		return Nothing(), nil
	case TagObject:
		f, _ := v.obj.Get(name)
		return f, nil
	}
	return Nothing(), nil
}

// AppendToDocument appends the value under key to a document being encoded
// into dst. Nothing appends nothing. Materialized containers are re-encoded
// recursively.
func (v Value) AppendToDocument(dst []byte, key string) []byte {
	switch v.tag {
	case TagNothing:
		return dst
	case TagNull:
		return bsoncore.AppendNullElement(dst, key)
	case TagBoolean:
		return bsoncore.AppendBooleanElement(dst, key, v.num != 0)
	case TagInt32:
		return bsoncore.AppendInt32Element(dst, key, int32(v.num))
	case TagInt64:
		return bsoncore.AppendInt64Element(dst, key, v.num)
	case TagDouble:
		return bsoncore.AppendDoubleElement(dst, key, v.Double())
	case TagString:
		return bsoncore.AppendStringElement(dst, key, v.str)
	case TagRawDocument:
		return bsoncore.AppendDocumentElement(dst, key, v.raw)
	case TagRawArray:
		return bsoncore.AppendArrayElement(dst, key, v.raw)
	case TagRawValue:
		return bsoncore.AppendValueElement(dst, key, bsoncore.Value{Type: v.rawType, Data: v.raw})
	case TagObject:
		idx, dst := bsoncore.AppendDocumentElementStart(dst, key)
		for i := 0; i < v.obj.Len(); i++ {
			dst = v.obj.ValueAt(i).AppendToDocument(dst, v.obj.Name(i))
		}
		dst, _ = bsoncore.AppendDocumentEnd(dst, idx)
		return dst
	case TagArray:
		idx, dst := bsoncore.AppendArrayElementStart(dst, key)
		for i := 0; i < v.arr.Len(); i++ {
			dst = v.arr.At(i).AppendToDocument(dst, arrayIndexKey(i))
		}
		dst, _ = bsoncore.AppendArrayEnd(dst, idx)
		return dst
	}
	common.Assert(false, "AppendToDocument: unknown tag %d", v.tag)
	return dst
}
