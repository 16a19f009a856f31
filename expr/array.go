package expr

import (
	"fmt"
	"strings"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/value"
)

// Slice implements the one-level array-slicing operator. An array input is
// reduced to a contiguous sub-array; any other input passes through
// unchanged. With no skip, a negative limit selects from the end of the
// array. With a skip, the limit must be non-negative and a negative skip is
// an offset from the end.
type Slice struct {
	Input Expr
	Limit int32
	Skip  *int32
}

func NewSlice(input Expr, limit int32, skip *int32) *Slice {
	common.Assert(skip == nil || limit >= 0, "slice with skip requires a non-negative limit")
	return &Slice{Input: input, Limit: limit, Skip: skip}
}

func (e *Slice) Prepare(r SlotResolver) error { return e.Input.Prepare(r) }

func (e *Slice) Eval() (value.Value, error) {
	in, err := e.Input.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if !in.IsArray() {
		return in, nil
	}
	elems, ok := value.ArrayElements(in)
	if !ok {
		return value.Nothing(), common.Errorf(common.CorruptDocumentError, "malformed array")
	}
	n := len(elems)
	var start, end int
	if e.Skip == nil {
		if e.Limit >= 0 {
			start, end = 0, min(int(e.Limit), n)
		} else {
			start, end = max(n+int(e.Limit), 0), n
		}
	} else {
		start = int(*e.Skip)
		if start < 0 {
			start = max(n+start, 0)
		} else {
			start = min(start, n)
		}
		end = min(start+int(e.Limit), n)
	}
	out := value.NewArray()
	out.Reserve(end - start)
	for _, el := range elems[start:end] {
		out.Push(el.Copy())
	}
	return value.NewArrayValue(out), nil
}

func (e *Slice) Clone() Expr {
	var skip *int32
	if e.Skip != nil {
		s := *e.Skip
		skip = &s
	}
	return &Slice{Input: e.Input.Clone(), Limit: e.Limit, Skip: skip}
}

func (e *Slice) String() string {
	if e.Skip != nil {
		return fmt.Sprintf("slice(%s, %d, %d)", e.Input, e.Limit, *e.Skip)
	}
	return fmt.Sprintf("slice(%s, %d)", e.Input, e.Limit)
}

// ApplyPositional extracts the single array element selected by a previously
// recorded match index. A non-array input yields Nothing (the operator does
// not apply). An array input with no recorded index, or an index outside the
// array, is an evaluation failure: positional projection requires a match.
type ApplyPositional struct {
	Input Expr
	Index Expr
}

func NewApplyPositional(input, index Expr) *ApplyPositional {
	return &ApplyPositional{Input: input, Index: index}
}

func (e *ApplyPositional) Prepare(r SlotResolver) error {
	return prepareAll(r, e.Input, e.Index)
}

func (e *ApplyPositional) Eval() (value.Value, error) {
	in, err := e.Input.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if !in.IsArray() {
		return value.Nothing(), nil
	}
	idx, err := e.Index.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if idx.IsNothing() {
		return value.Nothing(), common.Errorf(common.PositionalNoMatchError,
			"positional operator '.$' couldn't find a matching element in the array")
	}
	elems, ok := value.ArrayElements(in)
	if !ok {
		return value.Nothing(), common.Errorf(common.CorruptDocumentError, "malformed array")
	}
	i := int(idx.Int32())
	if i < 0 || i >= len(elems) {
		return value.Nothing(), common.Errorf(common.PositionalMismatchError,
			"positional operator '.$' element mismatch")
	}
	out := value.NewArray()
	out.Reserve(1)
	out.Push(elems[i].Copy())
	return value.NewArrayValue(out), nil
}

func (e *ApplyPositional) Clone() Expr {
	return &ApplyPositional{Input: e.Input.Clone(), Index: e.Index.Clone()}
}

func (e *ApplyPositional) String() string {
	return fmt.Sprintf("applyPositional(%s, %s)", e.Input, e.Index)
}

// FirstMatchIndex scans an array input and yields the index of the first
// element for which the comparison holds, or Nothing when the input is not an
// array or no element matches. Path navigates from each element to the value
// actually compared; an empty path compares the element itself. This is the
// index-tracking half of the positional-projection machinery.
type FirstMatchIndex struct {
	Input   Expr
	Path    []string
	Op      CompareOp
	Operand value.Value
}

func NewFirstMatchIndex(input Expr, path []string, op CompareOp, operand value.Value) *FirstMatchIndex {
	return &FirstMatchIndex{Input: input, Path: path, Op: op, Operand: operand}
}

func (e *FirstMatchIndex) Prepare(r SlotResolver) error { return e.Input.Prepare(r) }

func (e *FirstMatchIndex) Eval() (value.Value, error) {
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
	for i, el := range elems {
		target := el
		for _, seg := range e.Path {
			target, err = value.LookupField(target, seg)
			if err != nil {
				return value.Nothing(), err
			}
		}
		cmp, comparable := CompareValues(target, e.Operand)
		if !comparable {
			continue
		}
		var match bool
		switch e.Op {
		case OpEq:
			match = cmp == 0
		case OpNe:
			match = cmp != 0
		case OpLt:
			match = cmp < 0
		case OpLte:
			match = cmp <= 0
		case OpGt:
			match = cmp > 0
		case OpGte:
			match = cmp >= 0
		}
		if match {
			return value.NewInt32(int32(i)), nil
		}
	}
	return value.Nothing(), nil
}

func (e *FirstMatchIndex) Clone() Expr {
	return &FirstMatchIndex{
		Input:   e.Input.Clone(),
		Path:    append([]string(nil), e.Path...),
		Op:      e.Op,
		Operand: e.Operand,
	}
}

func (e *FirstMatchIndex) String() string {
	return fmt.Sprintf("firstMatchIndex(%s, %s %s %s)",
		e.Input, strings.Join(e.Path, "."), e.Op, e.Operand)
}
