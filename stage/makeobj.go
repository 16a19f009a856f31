package stage

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/value"
)

// FieldBehavior selects how a MakeObj root's fields are filtered.
type FieldBehavior int

const (
	// FieldBehaviorKeep copies only the listed fields (a whitelist).
	FieldBehaviorKeep FieldBehavior = iota
	// FieldBehaviorDrop copies everything except the listed fields.
	FieldBehaviorDrop
)

func (b FieldBehavior) String() string {
	if b == FieldBehaviorKeep {
		return "keep"
	}
	return "drop"
}

// OutputType selects the representation MakeObj builds.
type OutputType int

const (
	// OutputObject builds a materialized in-memory object.
	OutputObject OutputType = iota
	// OutputBSON builds an encoded document buffer.
	OutputBSON
)

// MakeObjStage builds one document per input row. The document starts from an
// optional root document whose fields are filtered by the keep/drop list,
// with computed fields spliced in: a computed field whose name matches a root
// field replaces it in place, and the remaining computed fields are appended
// afterwards in declaration order. A computed field evaluating to Nothing is
// omitted, and under keep behavior still suppresses the root's field of that
// name.
//
// When the root value is not a document the non-object policy applies: with
// forceNewObject a fresh document holding only the computed fields is built,
// otherwise with returnOldObject the root value passes through untouched,
// otherwise the output is Nothing.
type MakeObjStage struct {
	stageBase
	child PlanStage

	objSlot  value.SlotID
	rootSlot *value.SlotID
	behavior FieldBehavior

	fields        []string
	projectFields []string
	projectSlots  []value.SlotID

	forceNewObject  bool
	returnOldObject bool
	outputType      OutputType

	root     value.SlotAccessor
	projects []value.SlotAccessor
	out      *value.OwnedAccessor

	fieldSet   map[string]struct{}
	projectMap map[string]int

	// fieldsNeeded is the keep-behavior early-exit budget: the number of
	// distinct field names the output can still absorb from the root scan.
	fieldsNeeded     int
	alreadyProjected []bool
	sink             objSink
}

func NewMakeObj(child PlanStage, objSlot value.SlotID, rootSlot *value.SlotID,
	behavior FieldBehavior, fields, projectFields []string, projectSlots []value.SlotID,
	forceNewObject, returnOldObject bool, outputType OutputType, nodeID int) *MakeObjStage {

	common.Assert(len(projectFields) == len(projectSlots),
		"makeobj: %d computed names for %d slots", len(projectFields), len(projectSlots))
	common.Assert(rootSlot != nil || len(fields) == 0,
		"makeobj: keep/drop list without a root")

	name := "mkobj"
	if outputType == OutputBSON {
		name = "mkbson"
	}
	return &MakeObjStage{
		stageBase:       newStageBase(name, nodeID),
		child:           child,
		objSlot:         objSlot,
		rootSlot:        rootSlot,
		behavior:        behavior,
		fields:          fields,
		projectFields:   projectFields,
		projectSlots:    projectSlots,
		forceNewObject:  forceNewObject,
		returnOldObject: returnOldObject,
		outputType:      outputType,
		out:             &value.OwnedAccessor{},
	}
}

func (s *MakeObjStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	if err := s.child.Prepare(ctx); err != nil {
		return err
	}
	s.fieldSet = make(map[string]struct{}, len(s.fields))
	for _, f := range s.fields {
		if _, dup := s.fieldSet[f]; dup {
			return common.Errorf(common.DuplicateFieldError,
				"duplicate field name %q in keep/drop list", f)
		}
		s.fieldSet[f] = struct{}{}
	}
	s.projectMap = make(map[string]int, len(s.projectFields))
	for i, f := range s.projectFields {
		if _, dup := s.projectMap[f]; dup {
			return common.Errorf(common.DuplicateFieldError,
				"duplicate computed field name %q", f)
		}
		s.projectMap[f] = i
	}
	// Names shared between the two lists are counted once in the budget.
	s.fieldsNeeded = len(s.fields) + len(s.projectFields)
	for f := range s.projectMap {
		if _, overlap := s.fieldSet[f]; overlap {
			s.fieldsNeeded--
		}
	}
	s.alreadyProjected = make([]bool, len(s.projectFields))

	// Slots usually come from the child, but in correlated subtrees the
	// root may live on an enclosing stage; fall back to the context.
	resolve := func(slot value.SlotID) (value.SlotAccessor, error) {
		if acc, ok := s.child.GetAccessor(slot); ok {
			return acc, nil
		}
		return ctx.Resolve(slot)
	}
	if s.rootSlot != nil {
		acc, err := resolve(*s.rootSlot)
		if err != nil {
			return err
		}
		s.root = acc
	}
	s.projects = make([]value.SlotAccessor, len(s.projectSlots))
	for i, slot := range s.projectSlots {
		acc, err := resolve(slot)
		if err != nil {
			return err
		}
		s.projects[i] = acc
	}
	if s.outputType == OutputBSON {
		s.sink = &bsonSink{}
	} else {
		s.sink = &objectSink{}
	}
	return nil
}

func (s *MakeObjStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	if slot == s.objSlot {
		return s.out, true
	}
	return s.child.GetAccessor(slot)
}

func (s *MakeObjStage) Open(reOpen bool) error {
	if err := s.child.Open(reOpen); err != nil {
		return err
	}
	s.trackOpen()
	return nil
}

func (s *MakeObjStage) GetNext() (PlanState, error) {
	// The output slot refers to the previous row's document while the child
	// advances underneath it.
	s.slotsAccessible = false
	st, err := s.child.GetNext()
	if err != nil || st == EOF {
		return s.trackResult(EOF), err
	}
	if err := s.produceObject(); err != nil {
		return s.trackResult(EOF), err
	}
	return s.trackResult(Advanced), nil
}

func (s *MakeObjStage) produceObject() error {
	for i := range s.alreadyProjected {
		s.alreadyProjected[i] = false
	}
	sink := s.sink
	sink.reset()

	if s.root != nil {
		root := s.root.View()
		if !root.IsDocument() {
			// Computed fields are emitted even without a document to merge
			// into. Only when none of them produced a value does the
			// non-object policy decide between the old root and Nothing.
			s.appendRemainingProjects(sink)
			switch {
			case s.forceNewObject || !sink.empty():
				s.out.Reset(sink.finish())
			case s.returnOldObject:
				s.out.Reset(root)
			default:
				s.out.Reset(value.Nothing())
			}
			return nil
		}
		if err := s.filterRoot(sink, root); err != nil {
			return err
		}
	}
	s.appendRemainingProjects(sink)
	s.out.Reset(sink.finish())
	return nil
}

// filterRoot streams the root document's fields through the keep/drop filter,
// substituting computed values in place.
func (s *MakeObjStage) filterRoot(sink objSink, root value.Value) error {
	fieldsNeeded := s.fieldsNeeded

	appendField := func(name string, raw *bsoncore.Value, materialized value.Value) {
		if idx, computed := lookupProject(s.projectMap, name); computed {
			s.alreadyProjected[idx] = true
			fieldsNeeded--
			sink.appendValue(name, s.projects[idx].View())
			return
		}
		if s.isRestricted(name) {
			return
		}
		if s.behavior == FieldBehaviorKeep {
			fieldsNeeded--
		}
		if raw != nil {
			sink.appendRaw(name, *raw)
		} else {
			sink.appendValue(name, materialized)
		}
	}

	if root.Tag() == value.TagRawDocument {
		it, err := value.IterateRawDocument(root.RawDocument())
		if err != nil {
			return err
		}
		for {
			// The budget only bounds the scan under keep behavior; under
			// drop every remaining field may still be wanted.
			if s.behavior == FieldBehaviorKeep && fieldsNeeded == 0 {
				break
			}
			key, raw, ok := it.Next()
			if !ok {
				if !it.Valid() {
					return common.Errorf(common.CorruptDocumentError, "malformed document")
				}
				break
			}
			appendField(string(key), &raw, value.Value{})
		}
		return nil
	}

	obj := root.Object()
	for i := 0; i < obj.Len(); i++ {
		if s.behavior == FieldBehaviorKeep && fieldsNeeded == 0 {
			break
		}
		appendField(obj.Name(i), nil, obj.ValueAt(i))
	}
	return nil
}

// isRestricted reports whether a root field of this name is filtered out:
// under keep, any name off the list; under drop, any name on it.
func (s *MakeObjStage) isRestricted(name string) bool {
	_, listed := s.fieldSet[name]
	if s.behavior == FieldBehaviorKeep {
		return !listed
	}
	return listed
}

func (s *MakeObjStage) appendRemainingProjects(sink objSink) {
	for i, name := range s.projectFields {
		if s.alreadyProjected[i] {
			continue
		}
		sink.appendValue(name, s.projects[i].View())
	}
}

// lookupProject avoids the map access on the hot path when there are no
// computed fields at all.
func lookupProject(m map[string]int, name string) (int, bool) {
	if len(m) == 0 {
		return 0, false
	}
	idx, ok := m[name]
	return idx, ok
}

func (s *MakeObjStage) Close() error {
	err := s.child.Close()
	s.trackClose()
	return err
}

func (s *MakeObjStage) Children() []PlanStage { return []PlanStage{s.child} }

func (s *MakeObjStage) Clone() PlanStage {
	var rootSlot *value.SlotID
	if s.rootSlot != nil {
		slot := *s.rootSlot
		rootSlot = &slot
	}
	return NewMakeObj(s.child.Clone(), s.objSlot, rootSlot, s.behavior,
		append([]string(nil), s.fields...),
		append([]string(nil), s.projectFields...),
		append([]value.SlotID(nil), s.projectSlots...),
		s.forceNewObject, s.returnOldObject, s.outputType, s.nodeID)
}

func (s *MakeObjStage) DoSaveState() {
	s.out.MakeOwned()
}

func (s *MakeObjStage) DoRestoreState() error { return nil }

func (s *MakeObjStage) DebugExplain() *Explain {
	d := map[string]string{
		"objSlot": fmt.Sprintf("%d", s.objSlot),
	}
	if s.rootSlot != nil {
		d["rootSlot"] = fmt.Sprintf("%d", *s.rootSlot)
		d["fieldBehavior"] = s.behavior.String()
		d["fields"] = "[" + strings.Join(s.fields, ", ") + "]"
	}
	if len(s.projectFields) > 0 {
		var sb strings.Builder
		for i, name := range s.projectFields {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s = %d", name, s.projectSlots[i])
		}
		d["projectFields"] = sb.String()
	}
	d["forceNewObject"] = fmt.Sprintf("%t", s.forceNewObject)
	d["returnOldObject"] = fmt.Sprintf("%t", s.returnOldObject)
	return &Explain{Detail: d}
}
