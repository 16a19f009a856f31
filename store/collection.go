package store

import (
	"sync"

	"github.com/tidwall/btree"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/pallasdb/pallas/common"
)

// Record is one stored document, keyed for ordered scans. Doc is an encoded
// document buffer owned by the collection.
type Record struct {
	Key string
	Doc bsoncore.Document
}

func recordLess(a, b Record) bool { return a.Key < b.Key }

// Collection is an ordered set of records. Every mutation bumps the epoch;
// detached cursors compare epochs on resume and fail retryably on any
// mismatch rather than guessing what moved.
type Collection struct {
	name string

	mu    sync.RWMutex
	tree  *btree.BTreeG[Record]
	epoch int64
}

func newCollection(name string) *Collection {
	return &Collection{
		name: name,
		tree: btree.NewBTreeG(recordLess),
	}
}

func (c *Collection) Name() string { return c.name }

// Insert stores a document under key, replacing any previous record.
func (c *Collection) Insert(key string, doc []byte) error {
	if err := bsoncore.Document(doc).Validate(); err != nil {
		return common.Errorf(common.CorruptDocumentError, "insert into %s: %v", c.name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.Set(Record{Key: key, Doc: append([]byte(nil), doc...)})
	c.epoch++
	return nil
}

// Delete removes the record under key, if any.
func (c *Collection) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, deleted := c.tree.Delete(Record{Key: key})
	if deleted {
		c.epoch++
	}
	return deleted
}

// Get returns the record under key.
func (c *Collection) Get(key string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Get(Record{Key: key})
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Len()
}

func (c *Collection) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
}

func (c *Collection) currentEpoch() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Cursor streams a collection's records in key order. It pins no snapshot:
// between Detach and Resume the collection may change, in which case Resume
// reports a retryable storage conflict.
type Cursor struct {
	coll    *Collection
	iter    btree.IterG[Record]
	epoch   int64
	started bool
	hasIter bool

	lastKey string
	hasLast bool
}

// OpenCursor positions a new cursor before the first record.
func (c *Collection) OpenCursor() *Cursor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Cursor{
		coll:    c,
		iter:    c.tree.Iter(),
		epoch:   c.epoch,
		hasIter: true,
	}
}

// Next advances to the next record. The returned document aliases collection
// memory and is only valid until the cursor detaches or closes.
func (cur *Cursor) Next() (Record, bool) {
	common.Assert(cur.hasIter, "cursor used while detached")
	var ok bool
	if !cur.started {
		ok = cur.iter.First()
		cur.started = true
	} else {
		ok = cur.iter.Next()
	}
	if !ok {
		return Record{}, false
	}
	rec := cur.iter.Item()
	cur.lastKey = rec.Key
	cur.hasLast = true
	return rec, true
}

// Detach releases the iterator so the collection can move on while the plan
// yields. The cursor remembers its position by key.
func (cur *Cursor) Detach() {
	if cur.hasIter {
		cur.iter.Release()
		cur.hasIter = false
	}
}

// Resume re-acquires an iterator at the remembered position. Any epoch change
// since the cursor opened is a retryable conflict.
func (cur *Cursor) Resume() error {
	if cur.hasIter {
		return nil
	}
	cur.coll.mu.RLock()
	defer cur.coll.mu.RUnlock()
	if cur.coll.epoch != cur.epoch {
		return common.Errorf(common.StorageConflictError,
			"collection %s changed during yield", cur.coll.name)
	}
	cur.iter = cur.coll.tree.Iter()
	cur.hasIter = true
	if cur.hasLast {
		// Reposition on the last record handed out; Next then moves past it.
		cur.iter.Seek(Record{Key: cur.lastKey})
		cur.started = true
	} else {
		cur.started = false
	}
	return nil
}

func (cur *Cursor) Close() {
	cur.Detach()
}
