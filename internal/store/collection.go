package store

import (
	"FolioDb/internal/store/transaction"

	"github.com/google/uuid"
)

// BatchListener observes the batched change notification a collection
// fires once per commit that touched it.
type BatchListener func(changes []transaction.ChangeDescriptor)

// Collection groups the documents sharing a path prefix and keeps them
// in commit order. byID also holds referenced-but-never-written
// documents, which stay out of docs until an Added commits.
type Collection struct {
	store     *Store
	path      string
	docs      []*Document
	byID      map[string]*Document
	listeners map[string]BatchListener
}

func (c *Collection) Path() string {
	return c.path
}

func (c *Collection) Len() int {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return len(c.docs)
}

// Snapshot returns the collection's documents in commit order.
func (c *Collection) Snapshot() []transaction.Snapshot {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	snaps := make([]transaction.Snapshot, 0, len(c.docs))
	for _, doc := range c.docs {
		snaps = append(snaps, transaction.Snapshot{
			Ref:    doc,
			Data:   copyData(doc.data),
			Exists: doc.exists,
		})
	}
	return snaps
}

// NotifyBatchChange fans one commit's ordered changes for this
// collection out to its snapshot listeners.
func (c *Collection) NotifyBatchChange(changes []transaction.ChangeDescriptor) {
	c.store.mu.RLock()
	listeners := make([]BatchListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.store.mu.RUnlock()

	for _, fn := range listeners {
		fn(changes)
	}
}

// OnSnapshot registers a batch listener and returns its unsubscribe
// func.
func (c *Collection) OnSnapshot(fn BatchListener) func() {
	c.store.mu.Lock()
	id := uuid.NewString()
	c.listeners[id] = fn
	c.store.mu.Unlock()

	return func() {
		c.store.mu.Lock()
		delete(c.listeners, id)
		c.store.mu.Unlock()
	}
}

// indexOf and removeAt expect the store mutex to be held.
func (c *Collection) indexOf(doc *Document) int {
	for i, d := range c.docs {
		if d == doc {
			return i
		}
	}
	return -1
}

func (c *Collection) removeAt(i int) {
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
}
