package value

import (
	"bytes"
	"strconv"
)

func arrayIndexKey(i int) string {
	return strconv.Itoa(i)
}

// DocumentFields materializes a document's field names and values in
// declaration order, regardless of representation. ok is false if v is not a
// document or is malformed.
func DocumentFields(v Value) (names []string, values []Value, ok bool) {
	switch v.tag {
	case TagObject:
		for i := 0; i < v.obj.Len(); i++ {
			names = append(names, v.obj.Name(i))
			values = append(values, v.obj.ValueAt(i))
		}
		return names, values, true
	case TagRawDocument:
		it, err := IterateRawDocument(v.raw)
		if err != nil {
			return nil, nil, false
		}
		for {
			key, raw, more := it.Next()
			if !more {
				break
			}
			names = append(names, string(key))
			values = append(values, FromRaw(raw))
		}
		return names, values, it.Valid()
	}
	return nil, nil, false
}

// ArrayElements materializes an array's elements in order, regardless of
// representation. ok is false if v is not an array or is malformed.
func ArrayElements(v Value) (values []Value, ok bool) {
	switch v.tag {
	case TagArray:
		for i := 0; i < v.arr.Len(); i++ {
			values = append(values, v.arr.At(i))
		}
		return values, true
	case TagRawArray:
		it, err := IterateRawDocument(v.raw)
		if err != nil {
			return nil, false
		}
		for {
			_, raw, more := it.Next()
			if !more {
				break
			}
			values = append(values, FromRaw(raw))
		}
		return values, it.Valid()
	}
	return nil, false
}

// Equal reports logical equality of two values, ignoring representation
// differences: a raw document and a materialized object with the same fields
// in the same order compare equal, and numeric types compare by value.
func Equal(a, b Value) bool {
	switch {
	case a.IsDocument() && b.IsDocument():
		an, av, aok := DocumentFields(a)
		bn, bv, bok := DocumentFields(b)
		if !aok || !bok || len(an) != len(bn) {
			return false
		}
		for i := range an {
			if an[i] != bn[i] || !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case a.IsArray() && b.IsArray():
		av, aok := ArrayElements(a)
		bv, bok := ArrayElements(b)
		if !aok || !bok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case isNumeric(a) && isNumeric(b):
		return asDouble(a) == asDouble(b)
	}
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNothing, TagNull:
		return true
	case TagBoolean:
		return a.num == b.num
	case TagString:
		return a.str == b.str
	case TagRawValue:
		return a.rawType == b.rawType && bytes.Equal(a.raw, b.raw)
	}
	return false
}

func isNumeric(v Value) bool {
	return v.tag == TagInt32 || v.tag == TagInt64 || v.tag == TagDouble
}

func asDouble(v Value) float64 {
	if v.tag == TagDouble {
		return v.Double()
	}
	return float64(v.num)
}
