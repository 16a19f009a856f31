package expr

import (
	"fmt"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/value"
)

// GetField extracts one field from a document value. A raw document is
// scanned lazily and the result is a view into its buffer; a non-document
// input or an absent field yields Nothing.
type GetField struct {
	Input Expr
	Field string
}

func NewGetField(input Expr, field string) *GetField {
	return &GetField{Input: input, Field: field}
}

func (e *GetField) Prepare(r SlotResolver) error {
	return e.Input.Prepare(r)
}

func (e *GetField) Eval() (value.Value, error) {
	in, err := e.Input.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	return value.LookupField(in, e.Field)
}

func (e *GetField) Clone() Expr {
	return &GetField{Input: e.Input.Clone(), Field: e.Field}
}

func (e *GetField) String() string {
	return fmt.Sprintf("getField(%s, %q)", e.Input, e.Field)
}

// IsObject tests whether the input is a document in either representation.
type IsObject struct {
	Input Expr
}

func NewIsObject(input Expr) *IsObject { return &IsObject{Input: input} }

func (e *IsObject) Prepare(r SlotResolver) error { return e.Input.Prepare(r) }

func (e *IsObject) Eval() (value.Value, error) {
	in, err := e.Input.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	return value.NewBool(in.IsDocument()), nil
}

func (e *IsObject) Clone() Expr { return &IsObject{Input: e.Input.Clone()} }

func (e *IsObject) String() string { return fmt.Sprintf("isObject(%s)", e.Input) }

// IsArray tests whether the input is an array in either representation.
type IsArray struct {
	Input Expr
}

func NewIsArray(input Expr) *IsArray { return &IsArray{Input: input} }

func (e *IsArray) Prepare(r SlotResolver) error { return e.Input.Prepare(r) }

func (e *IsArray) Eval() (value.Value, error) {
	in, err := e.Input.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	return value.NewBool(in.IsArray()), nil
}

func (e *IsArray) Clone() Expr { return &IsArray{Input: e.Input.Clone()} }

func (e *IsArray) String() string { return fmt.Sprintf("isArray(%s)", e.Input) }

// IsArrayEmpty tests whether an array input has no elements; a non-array
// input yields Nothing.
type IsArrayEmpty struct {
	Input Expr
}

func NewIsArrayEmpty(input Expr) *IsArrayEmpty { return &IsArrayEmpty{Input: input} }

func (e *IsArrayEmpty) Prepare(r SlotResolver) error { return e.Input.Prepare(r) }

func (e *IsArrayEmpty) Eval() (value.Value, error) {
	in, err := e.Input.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if !in.IsArray() {
		return value.Nothing(), nil
	}
	elems, ok := value.ArrayElements(in)
	if !ok {
		return value.Nothing(), common.Errorf(common.CorruptDocumentError, "malformed array")
	}
	return value.NewBool(len(elems) == 0), nil
}

func (e *IsArrayEmpty) Clone() Expr { return &IsArrayEmpty{Input: e.Input.Clone()} }

func (e *IsArrayEmpty) String() string { return fmt.Sprintf("isArrayEmpty(%s)", e.Input) }

// Exists tests whether the input is a present value (not Nothing).
type Exists struct {
	Input Expr
}

func NewExists(input Expr) *Exists { return &Exists{Input: input} }

func (e *Exists) Prepare(r SlotResolver) error { return e.Input.Prepare(r) }

func (e *Exists) Eval() (value.Value, error) {
	in, err := e.Input.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	return value.NewBool(!in.IsNothing()), nil
}

func (e *Exists) Clone() Expr { return &Exists{Input: e.Input.Clone()} }

func (e *Exists) String() string { return fmt.Sprintf("exists(%s)", e.Input) }

// CompareOp enumerates the comparison operators.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	}
	return "?"
}

// Compare evaluates a comparison between two values. Numerics compare across
// numeric types; strings and booleans compare within their type; any other
// combination yields Nothing.
type Compare struct {
	Op          CompareOp
	Left, Right Expr
}

func NewCompare(op CompareOp, l, r Expr) *Compare {
	return &Compare{Op: op, Left: l, Right: r}
}

func (e *Compare) Prepare(r SlotResolver) error {
	return prepareAll(r, e.Left, e.Right)
}

func (e *Compare) Eval() (value.Value, error) {
	l, err := e.Left.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	r, err := e.Right.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	cmp, ok := CompareValues(l, r)
	if !ok {
		return value.Nothing(), nil
	}
	var res bool
	switch e.Op {
	case OpEq:
		res = cmp == 0
	case OpNe:
		res = cmp != 0
	case OpLt:
		res = cmp < 0
	case OpLte:
		res = cmp <= 0
	case OpGt:
		res = cmp > 0
	case OpGte:
		res = cmp >= 0
	}
	return value.NewBool(res), nil
}

func (e *Compare) Clone() Expr {
	return &Compare{Op: e.Op, Left: e.Left.Clone(), Right: e.Right.Clone()}
}

func (e *Compare) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// CompareValues orders two scalar values. ok is false when the pair is not
// comparable (mixed non-numeric types, containers, missing values).
func CompareValues(l, r value.Value) (cmp int, ok bool) {
	switch {
	case isNumericTag(l.Tag()) && isNumericTag(r.Tag()):
		lf, rf := numericAsDouble(l), numericAsDouble(r)
		switch {
		case lf < rf:
			return -1, true
		case lf > rf:
			return 1, true
		}
		return 0, true
	case l.Tag() == value.TagString && r.Tag() == value.TagString:
		ls, rs := l.StringValue(), r.StringValue()
		switch {
		case ls < rs:
			return -1, true
		case ls > rs:
			return 1, true
		}
		return 0, true
	case l.Tag() == value.TagBoolean && r.Tag() == value.TagBoolean:
		lb, rb := l.Boolean(), r.Boolean()
		switch {
		case lb == rb:
			return 0, true
		case !lb:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func isNumericTag(t value.Tag) bool {
	return t == value.TagInt32 || t == value.TagInt64 || t == value.TagDouble
}

func numericAsDouble(v value.Value) float64 {
	switch v.Tag() {
	case value.TagInt32:
		return float64(v.Int32())
	case value.TagInt64:
		return float64(v.Int64())
	default:
		return v.Double()
	}
}
