package stage

import (
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/pallasdb/pallas/value"
)

// objSink is where the document-construction algorithm writes its output
// fields. One implementation per output representation; the filtering and
// substitution logic is shared and never needs to know which one it feeds.
// Appending a Nothing value is a no-op, which is how suppressed fields fall
// out of the document.
type objSink interface {
	reset()
	appendRaw(name string, v bsoncore.Value)
	appendValue(name string, v value.Value)
	empty() bool
	finish() value.Value
}

// objectSink accumulates a materialized object. Objects always hold owned
// values, so views coming from the root's buffer or from computed slots are
// copied on the way in.
type objectSink struct {
	obj *value.Object
}

func (s *objectSink) reset() {
	s.obj = value.NewObject()
}

func (s *objectSink) appendRaw(name string, v bsoncore.Value) {
	s.obj.Push(name, value.FromRaw(v).Copy())
}

func (s *objectSink) appendValue(name string, v value.Value) {
	if v.IsNothing() {
		return
	}
	s.obj.Push(name, v.Copy())
}

func (s *objectSink) empty() bool {
	return s.obj.Len() == 0
}

func (s *objectSink) finish() value.Value {
	return value.NewObjectValue(s.obj)
}

// bsonSink accumulates an encoded document buffer. Each row gets a fresh
// buffer because finish hands the bytes to the output value, which stays
// readable until the next GetNext.
type bsonSink struct {
	buf []byte
	idx int32
}

func (s *bsonSink) reset() {
	s.idx, s.buf = bsoncore.AppendDocumentStart(nil)
}

func (s *bsonSink) appendRaw(name string, v bsoncore.Value) {
	s.buf = bsoncore.AppendValueElement(s.buf, name, v)
}

func (s *bsonSink) appendValue(name string, v value.Value) {
	s.buf = v.AppendToDocument(s.buf, name)
}

func (s *bsonSink) empty() bool {
	// AppendDocumentStart reserved the four length bytes; anything past them
	// is an appended element.
	return len(s.buf) == int(s.idx)+4
}

func (s *bsonSink) finish() value.Value {
	s.buf, _ = bsoncore.AppendDocumentEnd(s.buf, s.idx)
	return value.NewOwnedRawDocument(s.buf)
}
