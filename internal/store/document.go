package store

import (
	"FolioDb/internal/store/transaction"
	"fmt"

	"github.com/google/uuid"
)

// ChangeListener observes committed changes to a single document.
type ChangeListener func(snap transaction.Snapshot, kind transaction.OperationKind, oldIndex int, fromCache bool)

// Document is a handle on one document. It implements
// transaction.DocumentHandle; the zero data state represents a document
// that has been referenced but never written.
type Document struct {
	collection *Collection
	path       string
	data       map[string]any
	exists     bool
	listeners  map[string]ChangeListener
}

func (d *Document) Path() string {
	return d.path
}

// CurrentData returns a shallow copy of the document's stored data, or
// nil when the document does not exist.
func (d *Document) CurrentData() (map[string]any, bool) {
	s := d.collection.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !d.exists {
		return nil, false
	}
	return copyData(d.data), true
}

// Snapshot is CurrentData packaged with the handle.
func (d *Document) Snapshot() transaction.Snapshot {
	data, exists := d.CurrentData()
	return transaction.Snapshot{Ref: d, Data: data, Exists: exists}
}

// StageAsSet materializes a staged set: a copy of the payload, or with
// merge the payload laid over base, top-level keys only. The receiver's
// stored data is untouched.
func (d *Document) StageAsSet(base, payload map[string]any, merge bool) map[string]any {
	if !merge {
		return copyData(payload)
	}
	return overlay(base, payload)
}

// StageAsUpdate materializes a staged partial update: base with the
// partial payload laid over it, top-level keys only.
func (d *Document) StageAsUpdate(base, partial map[string]any) map[string]any {
	return overlay(base, partial)
}

// CommitChange applies a staged operation authoritatively. It returns
// the resulting snapshot data, the effective change kind (an Added of a
// document already present commits as Modified and vice versa) and the
// document's index in its collection's ordered view before the change.
func (d *Document) CommitChange(kind transaction.OperationKind, data map[string]any) (transaction.ChangeDescriptor, error) {
	s := d.collection.store
	s.mu.Lock()

	oldIndex := d.collection.indexOf(d)
	effective := kind

	switch kind {
	case transaction.Removed:
		d.data = nil
		d.exists = false
		if oldIndex >= 0 {
			d.collection.removeAt(oldIndex)
		}
	default:
		if data == nil {
			s.mu.Unlock()
			return transaction.ChangeDescriptor{}, fmt.Errorf("store: cannot commit %s to %s without data", kind, d.path)
		}
		d.data = copyData(data)
		d.exists = true
		if oldIndex < 0 {
			d.collection.docs = append(d.collection.docs, d)
			effective = transaction.Added
		} else {
			effective = transaction.Modified
		}
	}

	// Removals report absent data, not an empty document.
	var snap map[string]any
	if d.exists {
		snap = copyData(d.data)
	}
	s.mu.Unlock()

	return transaction.ChangeDescriptor{
		Doc:      d,
		Data:     snap,
		Kind:     effective,
		OldIndex: oldIndex,
	}, nil
}

// NotifyChange fans a committed change out to the document's listeners.
func (d *Document) NotifyChange(kind transaction.OperationKind, oldIndex int, fromCache bool) {
	s := d.collection.store
	s.mu.RLock()
	listeners := make([]ChangeListener, 0, len(d.listeners))
	for _, fn := range d.listeners {
		listeners = append(listeners, fn)
	}
	snap := transaction.Snapshot{Ref: d, Exists: d.exists}
	if d.exists {
		snap.Data = copyData(d.data)
	}
	s.mu.RUnlock()

	// Listeners run outside the lock so they may call back into the store.
	for _, fn := range listeners {
		fn(snap, kind, oldIndex, fromCache)
	}
}

// OnChange registers a listener for this document's committed changes
// and returns its unsubscribe func.
func (d *Document) OnChange(fn ChangeListener) func() {
	s := d.collection.store
	s.mu.Lock()
	id := uuid.NewString()
	d.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(d.listeners, id)
		s.mu.Unlock()
	}
}

func overlay(base, payload map[string]any) map[string]any {
	merged := copyData(base)
	for k, v := range payload {
		merged[k] = v
	}
	return merged
}
