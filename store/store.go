// Package store is the in-memory document store the execution engine scans.
// Collections are ordered by record key; cursors detach around yields and
// refuse to resume when the collection changed underneath them, forcing the
// caller down the retry path.
package store

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store is a registry of named collections, safe for concurrent use.
type Store struct {
	collections *xsync.MapOf[string, *Collection]
	logger      log.Logger
}

func New(logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Store{
		collections: xsync.NewMapOf[string, *Collection](),
		logger:      logger,
	}
}

// Collection returns the named collection, creating it on first use.
func (s *Store) Collection(name string) *Collection {
	coll, loaded := s.collections.LoadOrCompute(name, func() *Collection {
		return newCollection(name)
	})
	if !loaded {
		level.Debug(s.logger).Log("msg", "collection created", "collection", name)
	}
	return coll
}

// Lookup returns the named collection without creating it.
func (s *Store) Lookup(name string) (*Collection, bool) {
	return s.collections.Load(name)
}

// Drop removes a collection. Outstanding cursors observe the conflict on
// their next resume.
func (s *Store) Drop(name string) {
	if coll, ok := s.collections.LoadAndDelete(name); ok {
		coll.invalidate()
		level.Debug(s.logger).Log("msg", "collection dropped", "collection", name)
	}
}
