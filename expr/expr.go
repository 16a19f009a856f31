// Package expr implements the expression evaluator consumed by plan stages:
// slot references, constants, conditionals, and the small set of builtins the
// projection compiler emits. Expressions are prepared once against a slot
// resolver before evaluation, mirroring the stage prepare phase.
package expr

import (
	"fmt"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/value"
)

// SlotResolver resolves a slot id to a read accessor. Stages implement this
// during their prepare phase; resolution outside that phase is not allowed.
type SlotResolver interface {
	ResolveSlot(slot value.SlotID) (value.SlotAccessor, error)
}

// Expr is a node of an expression tree. An expression is stateless between
// rows: Prepare binds slot references to accessors once, Eval computes the
// current value. Clone returns an unprepared deep copy for plan cloning.
type Expr interface {
	Prepare(r SlotResolver) error
	Eval() (value.Value, error)
	Clone() Expr
	String() string
}

// Variable reads the current value of a slot.
type Variable struct {
	Slot value.SlotID

	acc value.SlotAccessor
}

func NewVariable(slot value.SlotID) *Variable {
	return &Variable{Slot: slot}
}

func (e *Variable) Prepare(r SlotResolver) error {
	acc, err := r.ResolveSlot(e.Slot)
	if err != nil {
		return err
	}
	e.acc = acc
	return nil
}

func (e *Variable) Eval() (value.Value, error) {
	return e.acc.View(), nil
}

func (e *Variable) Clone() Expr {
	return &Variable{Slot: e.Slot}
}

func (e *Variable) String() string {
	return fmt.Sprintf("s%d", e.Slot)
}

// Constant evaluates to a fixed value.
type Constant struct {
	Val value.Value
}

func NewConstant(v value.Value) *Constant {
	return &Constant{Val: v}
}

func (e *Constant) Prepare(SlotResolver) error { return nil }

func (e *Constant) Eval() (value.Value, error) {
	return e.Val, nil
}

func (e *Constant) Clone() Expr {
	return &Constant{Val: e.Val}
}

func (e *Constant) String() string {
	return e.Val.String()
}

// If evaluates Then or Else depending on the condition. A non-boolean
// condition yields Nothing.
type If struct {
	Cond, Then, Else Expr
}

func NewIf(cond, then, els Expr) *If {
	return &If{Cond: cond, Then: then, Else: els}
}

func (e *If) Prepare(r SlotResolver) error {
	return prepareAll(r, e.Cond, e.Then, e.Else)
}

func (e *If) Eval() (value.Value, error) {
	cond, err := e.Cond.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if cond.Tag() != value.TagBoolean {
		return value.Nothing(), nil
	}
	if cond.Boolean() {
		return e.Then.Eval()
	}
	return e.Else.Eval()
}

func (e *If) Clone() Expr {
	return &If{Cond: e.Cond.Clone(), Then: e.Then.Clone(), Else: e.Else.Clone()}
}

func (e *If) String() string {
	return fmt.Sprintf("if(%s, %s, %s)", e.Cond, e.Then, e.Else)
}

// And is short-circuiting logical and; a non-boolean operand yields Nothing.
type And struct {
	Left, Right Expr
}

func NewAnd(l, r Expr) *And { return &And{Left: l, Right: r} }

func (e *And) Prepare(r SlotResolver) error {
	return prepareAll(r, e.Left, e.Right)
}

func (e *And) Eval() (value.Value, error) {
	l, err := e.Left.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if l.Tag() != value.TagBoolean {
		return value.Nothing(), nil
	}
	if !l.Boolean() {
		return value.NewBool(false), nil
	}
	r, err := e.Right.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if r.Tag() != value.TagBoolean {
		return value.Nothing(), nil
	}
	return r, nil
}

func (e *And) Clone() Expr {
	return &And{Left: e.Left.Clone(), Right: e.Right.Clone()}
}

func (e *And) String() string {
	return fmt.Sprintf("(%s && %s)", e.Left, e.Right)
}

// Or is short-circuiting logical or; a non-boolean operand yields Nothing.
type Or struct {
	Left, Right Expr
}

func NewOr(l, r Expr) *Or { return &Or{Left: l, Right: r} }

func (e *Or) Prepare(r SlotResolver) error {
	return prepareAll(r, e.Left, e.Right)
}

func (e *Or) Eval() (value.Value, error) {
	l, err := e.Left.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if l.Tag() != value.TagBoolean {
		return value.Nothing(), nil
	}
	if l.Boolean() {
		return value.NewBool(true), nil
	}
	r, err := e.Right.Eval()
	if err != nil {
		return value.Nothing(), err
	}
	if r.Tag() != value.TagBoolean {
		return value.Nothing(), nil
	}
	return r, nil
}

func (e *Or) Clone() Expr {
	return &Or{Left: e.Left.Clone(), Right: e.Right.Clone()}
}

func (e *Or) String() string {
	return fmt.Sprintf("(%s || %s)", e.Left, e.Right)
}

// Fail unconditionally raises an evaluation error when evaluated. Used for
// plan shapes that are known at build time to be unsatisfiable at runtime.
type Fail struct {
	Code common.ErrorCode
	Msg  string
}

func NewFail(code common.ErrorCode, msg string) *Fail {
	return &Fail{Code: code, Msg: msg}
}

func (e *Fail) Prepare(SlotResolver) error { return nil }

func (e *Fail) Eval() (value.Value, error) {
	return value.Nothing(), common.Errorf(e.Code, "%s", e.Msg)
}

func (e *Fail) Clone() Expr {
	return &Fail{Code: e.Code, Msg: e.Msg}
}

func (e *Fail) String() string {
	return fmt.Sprintf("fail(%s)", e.Code)
}

func prepareAll(r SlotResolver, exprs ...Expr) error {
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if err := e.Prepare(r); err != nil {
			return err
		}
	}
	return nil
}
